// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexdaiii/lfq-proteomics/internal/config"
	"github.com/alexdaiii/lfq-proteomics/internal/dag"
	"github.com/alexdaiii/lfq-proteomics/internal/engine"
	"github.com/alexdaiii/lfq-proteomics/internal/ledger"
	"github.com/alexdaiii/lfq-proteomics/internal/report"
	"github.com/alexdaiii/lfq-proteomics/pkg/types"
)

// fakeEngine writes the files the R scripts would write and records calls.
type fakeEngine struct {
	mu    sync.Mutex
	calls []string
	empty map[string]bool
	fail  map[string]bool

	// inputs maps a contrast name to the counts files limma was given.
	inputs map[string][]string

	// tables replaces the limma results table for a contrast.
	tables map[string]string
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeEngine) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// countsFiles returns the counts files limma ran on for contrast, sorted.
func (f *fakeEngine) countsFiles(contrast string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.inputs[contrast]...)
	sort.Strings(out)
	return out
}

const limmaTable = `"","logFC","AveExpr","t","P.Value","adj.P.Val","B"
"g1",2.1,10,5,0.001,0.01,3
"g2",0.1,10,0.2,0.8,0.9,-5
"g3",-1.5,9,-4,0.0001,0.001,2
"g4",NA,9,NA,NA,NA,NA
`

func (f *fakeEngine) RunLimma(_ context.Context, req engine.LimmaRequest) (types.AnalysisOutcome, error) {
	f.record("limma:" + req.Contrast)
	f.mu.Lock()
	if f.inputs == nil {
		f.inputs = make(map[string][]string)
	}
	f.inputs[req.Contrast] = append(f.inputs[req.Contrast], req.Counts)
	f.mu.Unlock()
	if f.fail[req.Contrast] {
		return types.AnalysisOutcome{}, fmt.Errorf("%w: limma.R exited with status 1", engine.ErrEngine)
	}
	if f.empty[req.Contrast] {
		return types.EmptyOutcome("no results file"), nil
	}
	path := filepath.Join(req.OutputDir, req.Contrast+"_limma.csv")
	table := limmaTable
	if t, ok := f.tables[req.Contrast]; ok {
		table = t
	}
	if err := os.WriteFile(path, []byte(table), 0o644); err != nil {
		return types.AnalysisOutcome{}, err
	}
	return types.ResultOutcome(path), nil
}

func (f *fakeEngine) RunVolcano(_ context.Context, req engine.VolcanoRequest) (string, error) {
	f.record("volcano:" + req.Experiment)
	return writePNG(req.OutputDir, "volcano.png")
}

func (f *fakeEngine) RunHeatmap(_ context.Context, req engine.HeatmapRequest) (string, error) {
	f.record("heatmap:" + req.Experiment)
	if _, err := os.Stat(req.Matrix); err != nil {
		return "", err
	}
	return writePNG(req.OutputDir, "heatmap.png")
}

func (f *fakeEngine) RunEnrichment(_ context.Context, req engine.EnrichmentRequest) ([]string, error) {
	f.record("enrichment:" + req.Experiment)
	files := map[string]string{
		"gene_ids.csv":    "SYMBOL,ENTREZID\nAbc,1\nDef,2\n",
		"KEGG_enrich.csv": "ID,Description,GeneRatio,BgRatio,geneID\nmmu1,Pathway,2/10,5/100,1/2/33\n",
		"GO_BP.csv":       "ID,Description,GeneRatio,BgRatio,geneID\nGO:1,Process,3/10,7/100,Abc/Def\n",
		"dotplot.png":     "png",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(req.OutputDir, name), []byte(body), 0o644); err != nil {
			return nil, err
		}
	}
	p := func(name string) string { return filepath.Join(req.OutputDir, name) }
	return []string{
		"Loading required package: clusterProfiler",
		fmt.Sprintf(`{"file_path": %q, "ont": null, "result_type": "geneIds"}`, p("gene_ids.csv")),
		fmt.Sprintf(`enrichResult:{"file_path": %q, "ont": "KEGG", "result_type": "enrichResult"}`, p("KEGG_enrich.csv")),
		fmt.Sprintf(`{"file_path": %q, "ont": "BP", "result_type": "enrichResult"}`, p("GO_BP.csv")),
		fmt.Sprintf(`{"file_path": %q, "ont": "None", "result_type": "plot"}`, p("dotplot.png")),
	}, nil
}

func writePNG(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	return path, os.WriteFile(path, []byte("png"), 0o644)
}

type fixture struct {
	cfg    types.PipelineConfig
	engine *fakeEngine
	ledger *ledger.Ledger
	out    *bytes.Buffer
}

func newFixture(t *testing.T, contrasts ...[2]string) *fixture {
	t.Helper()
	dir := t.TempDir()
	counts := "Gene,s1,s2,s3,s4,s5,s6\n" +
		"g1,100,120,30,35,60,64\n" +
		"g2,50,52,49,51,50,48\n" +
		"g3,10,12,40,44,20,22\n" +
		"g4,70,71,69,72,80,75\n"
	meta := "Sample,Condition\ns1,MUT\ns2,MUT\ns3,WT\ns4,WT\ns5,KO\ns6,KO\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "counts.csv"), []byte(counts), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.csv"), []byte(meta), 0o644))

	cfg := config.Defaults()
	cfg.OutputDir = filepath.Join(dir, "out")
	cfg.Input.CountsFile = filepath.Join(dir, "counts.csv")
	cfg.Input.MetadataFile = filepath.Join(dir, "metadata.csv")
	for _, c := range contrasts {
		cfg.Preprocess.Contrasts = append(cfg.Preprocess.Contrasts, types.ContrastRequest{Conditions: c})
	}
	require.NoError(t, config.Validate(cfg))

	l, err := ledger.Open(context.Background(), filepath.Join(cfg.OutputDir, ledger.FileName))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	return &fixture{
		cfg:    cfg,
		engine: &fakeEngine{empty: map[string]bool{}, fail: map[string]bool{}},
		ledger: l,
		out:    &bytes.Buffer{},
	}
}

func (f *fixture) run(t *testing.T) (*RunResult, error) {
	t.Helper()
	p := New(f.cfg, f.engine, f.ledger, f.out)
	p.newID = func() string { return "run1" }
	return p.Run(context.Background())
}

func (f *fixture) path(parts ...string) string {
	return filepath.Join(append([]string{f.cfg.OutputDir, "run1"}, parts...)...)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func state(res *RunResult, unit, branch string) dag.TaskState {
	return res.Graph.States[dag.NodeID{Unit: unit, Branch: branch}]
}

func TestRunFansOutAndJoins(t *testing.T) {
	f := newFixture(t, [2]string{"MUT", "WT"})
	res, err := f.run(t)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Failed())
	assert.Equal(t, 0, res.Skipped())
	assert.Equal(t, dag.TaskCompleted, state(res, "", branchPCA))
	for _, b := range []string{branchPrimary, branchHeatmap, branchVolcano, branchEnrichment, branchKegg, branchJoin} {
		assert.Equal(t, dag.TaskCompleted, state(res, "MUT_vs_WT", b), b)
	}

	for _, call := range []string{"limma:", "heatmap:", "volcano:", "enrichment:"} {
		assert.Equal(t, 1, f.engine.count(call), call)
	}

	de := readFile(t, f.path("MUT_vs_WT", heatmapDir, deMatrixFile))
	assert.Contains(t, de, "g1,")
	assert.Contains(t, de, "g3,")
	assert.NotContains(t, de, "g2,")
	assert.NotContains(t, de, "g4,")

	fixed := readFile(t, f.path("MUT_vs_WT", keggFixedDir, "KEGG_enrich.csv"))
	assert.Contains(t, fixed, "Abc/Def/33")
	_, err = os.Stat(f.path("MUT_vs_WT", keggFixedDir, "GO_BP.csv"))
	assert.True(t, os.IsNotExist(err), "only KEGG tables are fixed up")

	md := readFile(t, f.path("MUT_vs_WT", reportFile))
	assert.Contains(t, md, "# MUT_vs_WT")
	assert.Contains(t, md, "![heatmap.png](heatmap/heatmap.png)")
	assert.Contains(t, md, "![volcano.png](volcano/volcano.png)")
	assert.Contains(t, md, "### KEGG_enrich.csv (KEGG)")
	assert.True(t, strings.Index(md, "## Heatmap") < strings.Index(md, "## Volcano"))

	for _, name := range []string{"before.csv", "after.csv", "normalized.csv"} {
		assert.FileExists(t, f.path(normalizationDir, name))
	}
	assert.FileExists(t, f.path(pcaDir, "pca.csv"))
	assert.FileExists(t, f.path(limmaInputsDir, "MUT_vs_WT_counts.csv"))

	sum, err := report.ReadSummary(f.path(report.SummaryFile))
	require.NoError(t, err)
	require.Len(t, sum.Contrasts, 1)
	assert.Equal(t, types.ContrastJoined, sum.Contrasts[0].State)
	assert.Equal(t, types.OutcomeResult, sum.Contrasts[0].Outcome.Status)
	require.NotNil(t, sum.PCA)

	d, err := f.ledger.Detail(context.Background(), "run1")
	require.NoError(t, err)
	assert.Equal(t, ledger.RunCompleted, d.Run.Status)
	require.Len(t, d.Contrasts, 1)
	assert.Equal(t, types.ContrastJoined, d.Contrasts[0].State)
	assert.Equal(t, 4, d.Enrichments["MUT_vs_WT"])

	assert.Contains(t, f.out.String(), "skipped: MUT_vs_WT enrichment line (not a JSON record)")
	assert.Contains(t, f.out.String(), "joined:  MUT_vs_WT")
}

func TestEmptyOutcomeSkipsBranchWork(t *testing.T) {
	f := newFixture(t, [2]string{"MUT", "WT"}, [2]string{"KO", "WT"})
	f.engine.empty["KO_vs_WT"] = true

	res, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Failed())

	for _, b := range []string{branchPrimary, branchHeatmap, branchVolcano, branchEnrichment, branchKegg, branchJoin} {
		assert.Equal(t, dag.TaskCompleted, state(res, "KO_vs_WT", b), b)
	}
	assert.Equal(t, 2, f.engine.count("limma:"))
	for _, call := range []string{"heatmap:", "volcano:", "enrichment:"} {
		assert.Equal(t, 0, f.engine.count(call+"KO_vs_WT"), call)
		assert.Equal(t, 1, f.engine.count(call+"MUT_vs_WT"), call)
	}

	md := readFile(t, f.path("KO_vs_WT", reportFile))
	assert.Contains(t, md, "No DEG result found for heatmap plot (no results file).")
	assert.Contains(t, md, "No DEG result found for volcano plot")
	assert.Contains(t, md, "No DEG result found for enrichment analysis")
	assert.Contains(t, md, "No KEGG tables to fix up.")

	sum, err := report.ReadSummary(f.path(report.SummaryFile))
	require.NoError(t, err)
	require.Len(t, sum.Contrasts, 2)
	assert.Equal(t, types.OutcomeEmpty, sum.Contrasts[1].Outcome.Status)
	assert.Equal(t, types.ContrastJoined, sum.Contrasts[1].State)
}

func TestPrimaryFailureIsolatedToItsContrast(t *testing.T) {
	f := newFixture(t, [2]string{"MUT", "WT"}, [2]string{"KO", "WT"})
	f.engine.fail["MUT_vs_WT"] = true

	res, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed())

	assert.Equal(t, dag.TaskFailed, state(res, "MUT_vs_WT", branchPrimary))
	for _, b := range []string{branchHeatmap, branchVolcano, branchEnrichment, branchKegg} {
		assert.Equal(t, dag.TaskSkipped, state(res, "MUT_vs_WT", b), b)
	}
	assert.Equal(t, dag.TaskCompleted, state(res, "MUT_vs_WT", branchJoin))
	assert.ErrorIs(t, res.Graph.Errors[dag.NodeID{Unit: "MUT_vs_WT", Branch: branchPrimary}], engine.ErrEngine)

	for _, b := range []string{branchPrimary, branchHeatmap, branchVolcano, branchEnrichment, branchKegg, branchJoin} {
		assert.Equal(t, dag.TaskCompleted, state(res, "KO_vs_WT", b), b)
	}

	md := readFile(t, f.path("MUT_vs_WT", reportFile))
	assert.Contains(t, md, "primary failed:")
	assert.Contains(t, md, "heatmap skipped")

	d, err := f.ledger.Detail(context.Background(), "run1")
	require.NoError(t, err)
	assert.Equal(t, ledger.RunFailed, d.Run.Status)
	var failed []string
	for _, tk := range d.Tasks {
		if tk.State == string(dag.TaskFailed) {
			failed = append(failed, tk.Unit+"/"+tk.Branch)
			assert.Contains(t, tk.Error, "limma.R exited")
		}
	}
	assert.Equal(t, []string{"MUT_vs_WT/primary"}, failed)
}

func TestPrepareRejectsUnknownCondition(t *testing.T) {
	f := newFixture(t, [2]string{"MUT", "WT"}, [2]string{"MUT", "DKO"})
	_, err := f.run(t)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
	assert.Equal(t, 0, f.engine.count(""))

	d, err := f.ledger.Detail(context.Background(), "run1")
	require.NoError(t, err)
	assert.Equal(t, ledger.RunFailed, d.Run.Status)
}

func TestDuplicateContrastsGetOwnDirectories(t *testing.T) {
	f := newFixture(t, [2]string{"MUT", "WT"}, [2]string{"MUT", "WT"})
	res, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Failed())
	assert.Equal(t, 2, f.engine.count("limma:MUT_vs_WT"))

	assert.FileExists(t, f.path("MUT_vs_WT", reportFile))
	assert.FileExists(t, f.path("MUT_vs_WT_2", reportFile))
	assert.FileExists(t, f.path(limmaInputsDir, "MUT_vs_WT_counts.csv"))
	assert.FileExists(t, f.path(limmaInputsDir, "MUT_vs_WT_2_counts.csv"))
	assert.Equal(t, []string{
		f.path(limmaInputsDir, "MUT_vs_WT_counts.csv"),
		f.path(limmaInputsDir, "MUT_vs_WT_2_counts.csv"),
	}, f.engine.countsFiles("MUT_vs_WT"))
}

func TestHeatmapNotesGenesMissingFromCounts(t *testing.T) {
	f := newFixture(t, [2]string{"MUT", "WT"}, [2]string{"KO", "WT"})
	f.engine.tables = map[string]string{
		"MUT_vs_WT": limmaTable + `"g.9",3,9,6,0.001,0.002,4` + "\n",
		"KO_vs_WT":  `"","logFC","AveExpr","t","P.Value","adj.P.Val","B"` + "\n" + `"X-1",3,9,6,0.001,0.002,4` + "\n",
	}
	res, err := f.run(t)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Failed())

	md := readFile(t, f.path("MUT_vs_WT", reportFile))
	assert.Contains(t, md, "1 significant genes not found in the contrast counts: g.9")
	de := readFile(t, f.path("MUT_vs_WT", heatmapDir, deMatrixFile))
	assert.Contains(t, de, "g1,")
	assert.NotContains(t, de, "g.9")
	assert.Contains(t, f.out.String(), "dropped: MUT_vs_WT heatmap (1 significant genes not in counts)")

	md = readFile(t, f.path("KO_vs_WT", reportFile))
	assert.Contains(t, md, "1 significant genes not found in the contrast counts: X-1")
	assert.Contains(t, md, "No significant gene matches the contrast counts.")
	assert.NoFileExists(t, f.path("KO_vs_WT", heatmapDir, deMatrixFile))
	assert.Equal(t, 0, f.engine.count("heatmap:KO_vs_WT"))
}

func TestSignificantGenes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limma.csv")
	require.NoError(t, os.WriteFile(path, []byte(limmaTable), 0o644))

	cfg := config.Defaults().Heatmap.PlotConfig
	genes, err := significantGenes(path, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g3"}, genes)

	cfg.FCThreshold = 4
	genes, err = significantGenes(path, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, genes)

	cfg.PvalColumn = "padj"
	_, err = significantGenes(path, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "padj")
}
