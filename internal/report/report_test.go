// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexdaiii/lfq-proteomics/pkg/types"
)

func TestMarkdownSectionOrder(t *testing.T) {
	r := New("MUT_vs_WT", "Primary", "Heatmap", "Volcano")

	var wg sync.WaitGroup
	for _, sec := range []string{"Volcano", "Heatmap", "Primary"} {
		wg.Add(1)
		go func(sec string) {
			defer wg.Done()
			r.Note(sec, "%s done", sec)
		}(sec)
	}
	wg.Wait()

	md := r.Markdown("")
	p, h, v := strings.Index(md, "## Primary"), strings.Index(md, "## Heatmap"), strings.Index(md, "## Volcano")
	assert.True(t, p < h && h < v, md)
	assert.Contains(t, md, "- Heatmap done")
	assert.Equal(t, []string{"Volcano done"}, r.Notes("Volcano"))
}

func TestMarkdownEmptySectionAndExtraSection(t *testing.T) {
	r := New("x", "Primary")
	r.Note("Other", "late")
	md := r.Markdown("")
	assert.Contains(t, md, "## Primary\n\n_Nothing recorded._")
	assert.Contains(t, md, "## Other\n\n- late")
}

func TestTablePreview(t *testing.T) {
	dir := t.TempDir()
	var rows strings.Builder
	rows.WriteString("ID,Description\n")
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&rows, "mmu%d,path|way %d\n", i, i)
	}
	path := filepath.Join(dir, "enrichment", "KEGG_enrich.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(rows.String()), 0o644))

	r := New("x", "Enrichment")
	r.Table("Enrichment", "KEGG", path)
	r.Table("Enrichment", "Missing", filepath.Join(dir, "nope.csv"))
	r.Image("Enrichment", filepath.Join(dir, "enrichment", "dotplot.png"))

	out := filepath.Join(dir, "report.md")
	require.NoError(t, r.Write(out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	md := string(data)

	assert.Contains(t, md, "Source: `enrichment/KEGG_enrich.csv`")
	assert.Contains(t, md, "| ID | Description |")
	assert.Contains(t, md, `| mmu4 | path\|way 4 |`)
	assert.NotContains(t, md, "mmu5")
	assert.Contains(t, md, "Could not preview table")
	assert.Contains(t, md, "![dotplot.png](enrichment/dotplot.png)")
}

func TestSummaryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), SummaryFile)
	s := &Summary{
		RunID:      "abc",
		StartedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		NormMethod: types.NormCenterMedian,
		PCA:        &PCASummary{PC1: 0.6, PC2: 0.2, File: "pca/pca.csv"},
		Contrasts: []ContrastSummary{{
			Name:    "MUT_vs_WT",
			State:   types.ContrastJoined,
			Outcome: types.EmptyOutcome("no significant genes"),
			Tasks:   map[string]string{"primary": "COMPLETED"},
		}},
	}
	require.NoError(t, WriteSummary(path, s))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "state: JOINED")

	back, err := ReadSummary(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", back.RunID)
	assert.True(t, back.StartedAt.Equal(s.StartedAt))
	assert.Equal(t, types.OutcomeEmpty, back.Contrasts[0].Outcome.Status)
	assert.Equal(t, "COMPLETED", back.Contrasts[0].Tasks["primary"])
}
