// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alexdaiii/lfq-proteomics/internal/dag"
	"github.com/alexdaiii/lfq-proteomics/internal/engine"
	"github.com/alexdaiii/lfq-proteomics/internal/enrichment"
	"github.com/alexdaiii/lfq-proteomics/internal/matrix"
	"github.com/alexdaiii/lfq-proteomics/internal/pca"
	"github.com/alexdaiii/lfq-proteomics/internal/report"
	"github.com/alexdaiii/lfq-proteomics/pkg/types"
)

const deMatrixFile = "de_matrix.csv"

func (ex *execution) runPCA(ctx context.Context) error {
	res, err := pca.Compute(ex.plan.Matrix, ex.plan.Conditions)
	if err != nil {
		return fmt.Errorf("pca: %w", err)
	}
	dir := runPath(ex.plan.RunDir, pcaDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating pca directory: %w", err)
	}
	points := filepath.Join(dir, "pca.csv")
	if err := matrix.WriteCSVTable(points, res.PointsTable()); err != nil {
		return err
	}
	if err := matrix.WriteCSVTable(filepath.Join(dir, "scree.csv"), res.ScreeTable()); err != nil {
		return err
	}

	s := &report.PCASummary{File: filepath.Join(pcaDir, "pca.csv")}
	if len(res.Explained) > 0 {
		s.PC1 = res.Explained[0]
	}
	if len(res.Explained) > 1 {
		s.PC2 = res.Explained[1]
	}
	ex.mu.Lock()
	ex.pca = s
	ex.mu.Unlock()
	fmt.Fprintf(ex.p.w, "pca:     PC1+PC2 explain %.1f%% of variance\n", 100*res.PC12())
	return nil
}

func (ex *execution) primary(u *unit) dag.Task {
	return func(ctx context.Context) error {
		if err := mkdirs(u.path, limmaOutputsDir, limmaSigDir); err != nil {
			return fmt.Errorf("creating %s directories: %w", u.dir, err)
		}
		o, err := ex.p.engine.RunLimma(ctx, engine.LimmaRequest{
			Counts:       u.artifact.CountsFile,
			Metadata:     u.artifact.MetadataFile,
			OutputDir:    filepath.Join(u.path, limmaOutputsDir),
			SigOutputDir: filepath.Join(u.path, limmaSigDir),
			Contrast:     u.name,
			GroupA:       u.contrast.GroupA(),
			GroupB:       u.contrast.GroupB(),
		})
		if err != nil {
			return fmt.Errorf("primary analysis %s: %w", u.name, err)
		}
		u.setOutcome(o)

		if o.IsEmpty() {
			u.setState(types.ContrastPrimaryEmpty)
			u.report.Note(secPrimary, "The engine produced no DEG results (%s).", o.Reason)
			fmt.Fprintf(ex.p.w, "empty:   %s (%s)\n", u.dir, o.Reason)
		} else {
			u.setState(types.ContrastPrimaryOK)
			u.report.Table(secPrimary, "DEG results", o.ResultPath)
			fmt.Fprintf(ex.p.w, "primary: %s\n", u.dir)
		}
		ex.recordContrast(ctx, u)
		return nil
	}
}

func (ex *execution) heatmap(u *unit) dag.Task {
	return func(ctx context.Context) error {
		results, ok := u.primaryResult(secHeatmap, "heatmap plot")
		if !ok {
			return nil
		}
		dir := filepath.Join(u.path, heatmapDir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating heatmap directory: %w", err)
		}

		cfg := ex.p.cfg.Heatmap
		genes, err := significantGenes(results, cfg.PlotConfig)
		if err != nil {
			u.report.Note(secHeatmap, "Could not read DEG results: %v", err)
			return nil
		}
		if len(genes) == 0 {
			u.report.Note(secHeatmap, "No genes pass |logFC| >= log2(%g) and %s <= %g.",
				cfg.FCThreshold, cfg.PvalColumn, cfg.PvalThreshold)
			return nil
		}

		counts, err := matrix.ReadCSV(u.artifact.CountsFile)
		if err != nil {
			u.report.Note(secHeatmap, "Could not read contrast counts: %v", err)
			return nil
		}
		de, missing := counts.SelectRows(genes)
		if len(missing) > 0 {
			u.report.Note(secHeatmap, "%d significant genes not found in the contrast counts: %s",
				len(missing), strings.Join(missing, ", "))
			fmt.Fprintf(ex.p.w, "dropped: %s heatmap (%d significant genes not in counts)\n", u.dir, len(missing))
		}
		if n, _ := de.Dims(); n == 0 {
			u.report.Note(secHeatmap, "No significant gene matches the contrast counts.")
			return nil
		}
		dePath := filepath.Join(dir, deMatrixFile)
		if err := de.WriteCSV(dePath); err != nil {
			return err
		}
		n, _ := de.Dims()
		u.report.Note(secHeatmap, "%d significant genes.", n)

		img, err := ex.p.engine.RunHeatmap(ctx, engine.HeatmapRequest{
			Matrix:     dePath,
			Metadata:   u.artifact.MetadataFile,
			OutputDir:  dir,
			Experiment: u.name,
			Heatmap:    cfg,
		})
		if err != nil {
			return fmt.Errorf("heatmap %s: %w", u.name, err)
		}
		if img == "" {
			u.report.Note(secHeatmap, "The engine reported no heatmap image.")
			return nil
		}
		u.report.Image(secHeatmap, img)
		fmt.Fprintf(ex.p.w, "heatmap: %s\n", u.dir)
		return nil
	}
}

func (ex *execution) volcano(u *unit) dag.Task {
	return func(ctx context.Context) error {
		results, ok := u.primaryResult(secVolcano, "volcano plot")
		if !ok {
			return nil
		}
		dir := filepath.Join(u.path, volcanoDir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating volcano directory: %w", err)
		}
		img, err := ex.p.engine.RunVolcano(ctx, engine.VolcanoRequest{
			Input:      results,
			OutputDir:  dir,
			Experiment: u.name,
			Volcano:    ex.p.cfg.Volcano,
		})
		if err != nil {
			return fmt.Errorf("volcano %s: %w", u.name, err)
		}
		if img == "" {
			u.report.Note(secVolcano, "The engine reported no volcano image.")
			return nil
		}
		u.report.Image(secVolcano, img)
		fmt.Fprintf(ex.p.w, "volcano: %s\n", u.dir)
		return nil
	}
}

func (ex *execution) enrichment(u *unit) dag.Task {
	return func(ctx context.Context) error {
		results, ok := u.primaryResult(secEnrichment, "enrichment analysis")
		if !ok {
			return nil
		}
		dir := filepath.Join(u.path, enrichmentDir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating enrichment directory: %w", err)
		}
		lines, err := ex.p.engine.RunEnrichment(ctx, engine.EnrichmentRequest{
			Input:      results,
			OutputDir:  dir,
			Experiment: u.name,
			Enrichment: ex.p.cfg.Enrichment,
		})
		if err != nil {
			return fmt.Errorf("enrichment %s: %w", u.name, err)
		}

		c := enrichment.Classify(lines)
		for _, s := range c.Skipped {
			fmt.Fprintf(ex.p.w, "skipped: %s enrichment line (%s): %.80s\n", u.dir, s.Skip, s.Line)
		}
		if len(c.Tables) == 0 && len(c.Plots) == 0 {
			u.report.Note(secEnrichment, "The engine reported no enrichment results.")
		}
		for _, t := range c.Tables {
			if err := enrichment.FixRatioColumns(t.FilePath); err != nil {
				u.report.Note(secEnrichment, "Could not quote ratio columns of %s: %v", filepath.Base(t.FilePath), err)
			}
			u.report.Table(secEnrichment, tableTitle(t), t.FilePath)
		}
		for _, p := range c.Plots {
			u.report.Image(secEnrichment, p.FilePath)
		}
		for _, r := range c.Unrecognized {
			u.report.Note(secEnrichment, "Unrecognized enrichment output %s (%s).", filepath.Base(r.FilePath), r.Kind)
		}

		if ex.p.ledger != nil {
			var recs []types.EnrichmentRecord
			recs = append(recs, c.Tables...)
			recs = append(recs, c.Plots...)
			if c.GeneIDs != nil {
				recs = append(recs, *c.GeneIDs)
			}
			recs = append(recs, c.Unrecognized...)
			if err := ex.p.ledger.RecordEnrichment(context.WithoutCancel(ctx), ex.plan.RunID, u.dir, recs); err != nil {
				fmt.Fprintf(ex.p.w, "ledger:  %v\n", err)
			}
		}

		if job, ok := c.FixupJob(); ok {
			u.setJob(job)
		}
		fmt.Fprintf(ex.p.w, "enriched: %s (%d tables, %d plots)\n", u.dir, len(c.Tables), len(c.Plots))
		return nil
	}
}

func (ex *execution) keggFixup(u *unit) dag.Task {
	return func(ctx context.Context) error {
		job := u.getJob()
		if job == nil {
			u.report.Note(secKegg, "No KEGG tables to fix up.")
			return nil
		}
		dir := filepath.Join(u.path, keggFixedDir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating kegg directory: %w", err)
		}
		written, err := job.Run(dir)
		if errors.Is(err, enrichment.ErrJobConsumed) {
			return err
		}
		if err != nil {
			u.report.Note(secKegg, "Some tables could not be fixed: %v", err)
		}
		for _, f := range written {
			u.report.Table(secKegg, filepath.Base(f), f)
		}
		fmt.Fprintf(ex.p.w, "kegg:    %s (%d tables)\n", u.dir, len(written))
		return nil
	}
}

func (ex *execution) join(u *unit) dag.Task {
	return func(ctx context.Context) error {
		path := filepath.Join(u.path, reportFile)
		if err := os.MkdirAll(u.path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", u.dir, err)
		}
		if err := u.report.Write(path); err != nil {
			return err
		}
		u.setState(types.ContrastJoined)
		ex.recordContrast(ctx, u)
		fmt.Fprintf(ex.p.w, "joined:  %s -> %s\n", u.dir, path)
		return nil
	}
}

func tableTitle(r types.EnrichmentRecord) string {
	base := filepath.Base(r.FilePath)
	if r.Ontology == types.OntologyNone {
		return base
	}
	return fmt.Sprintf("%s (%s)", base, r.Ontology)
}

// significantGenes reads a DEG results table and returns the genes with
// |logFC| >= log2(fc threshold) and adjusted p-value <= p threshold, in
// table order. Rows with unparsable numbers (NA) are ignored.
func significantGenes(path string, cfg types.PlotConfig) ([]string, error) {
	t, err := matrix.ReadCSVTable(path)
	if err != nil {
		return nil, err
	}
	gene := t.Column(cfg.GeneColumn)
	if gene < 0 && len(t.Header) > 0 && t.Header[0] == "" {
		// Row names written by R carry an empty header, read back as "X".
		gene = 0
	}
	lfc, pval := t.Column(cfg.LFCColumn), t.Column(cfg.PvalColumn)
	var missing []string
	for i, col := range []int{gene, lfc, pval} {
		if col < 0 {
			missing = append(missing, []string{cfg.GeneColumn, cfg.LFCColumn, cfg.PvalColumn}[i])
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s: missing columns %s", filepath.Base(path), strings.Join(missing, ", "))
	}

	minLFC := math.Log2(cfg.FCThreshold)
	var genes []string
	for _, row := range t.Rows {
		l, err1 := strconv.ParseFloat(strings.TrimSpace(row[lfc]), 64)
		p, err2 := strconv.ParseFloat(strings.TrimSpace(row[pval]), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		if math.Abs(l) >= minLFC && p <= cfg.PvalThreshold {
			genes = append(genes, row[gene])
		}
	}
	return genes, nil
}
