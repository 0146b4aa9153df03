// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package contrast

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexdaiii/lfq-proteomics/internal/matrix"
	"github.com/alexdaiii/lfq-proteomics/pkg/types"
)

const (
	countsSuffix   = "_counts.csv"
	metadataSuffix = "_metadata.csv"

	// Label table columns read by the engine.
	sampleHeader = "Sample"
	groupHeader  = "Group"
)

// MissingGenesError reports genes requested for a contrast subset that are
// absent from the intensity matrix.
type MissingGenesError struct {
	Contrast string
	Genes    []string
}

func (e *MissingGenesError) Error() string {
	return fmt.Sprintf("contrast %s: %d requested genes not in the intensity matrix: %v",
		e.Contrast, len(e.Genes), e.Genes)
}

func (e *MissingGenesError) Unwrap() error { return types.ErrValidation }

// GeneListSource returns the gene identifiers listed in one column of one
// sheet of the gene input file.
type GeneListSource interface {
	GeneList(sheet, column string) ([]string, error)
}

// WorkbookGeneLists reads gene lists from an xlsx (or csv) file.
type WorkbookGeneLists struct {
	Path string
}

// GeneList returns the distinct non-blank cells of column in sheet, in
// first-seen order.
func (w WorkbookGeneLists) GeneList(sheet, column string) ([]string, error) {
	t, err := matrix.ReadTable(w.Path, sheet)
	if err != nil {
		return nil, err
	}
	col := t.Column(column)
	if col < 0 {
		return nil, fmt.Errorf("gene list column %q not found in sheet %q of %s", column, sheet, w.Path)
	}
	seen := make(map[string]bool)
	var genes []string
	for _, v := range t.Values(col) {
		g := strings.TrimSpace(v)
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		genes = append(genes, g)
	}
	return genes, nil
}

// Options controls Export.
type Options struct {
	// Dir receives the per-contrast files. It is created if missing.
	Dir string

	// GeneFile is the optional gene input file. Subsetting applies only when
	// GeneFile and the contrast's sheet and column are all set.
	GeneFile string

	// MissingGenes decides whether requested genes absent from the matrix
	// fail the export or are dropped. Empty means MissingGenesError.
	MissingGenes types.MissingGenePolicy

	// GeneLists overrides the gene list reader; nil reads GeneFile.
	GeneLists GeneListSource
}

// Export writes the counts and label files for every contrast and returns
// one artifact per contrast in input order. Files are named after Stems, so
// repeated contrasts never share a file; artifact Name is the stem. Files are
// overwritten, so re-exporting the same input produces identical files.
func Export(m *matrix.Matrix, contrasts []types.ResolvedContrast, opts Options, w io.Writer) ([]types.ContrastArtifact, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	genes := opts.GeneLists
	if genes == nil && opts.GeneFile != "" {
		genes = WorkbookGeneLists{Path: opts.GeneFile}
	}

	names := make([]string, len(contrasts))
	for i, c := range contrasts {
		names[i] = c.Name()
	}
	stems := Stems(names)

	artifacts := make([]types.ContrastArtifact, 0, len(contrasts))
	for i, c := range contrasts {
		a, err := exportOne(m, c, stems[i], opts, genes, w)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

func exportOne(m *matrix.Matrix, c types.ResolvedContrast, name string, opts Options, genes GeneListSource, w io.Writer) (types.ContrastArtifact, error) {
	counts, err := m.SelectColumns(c.Columns())
	if err != nil {
		return types.ContrastArtifact{}, fmt.Errorf("contrast %s: %w", name, err)
	}

	if subsetRequested(opts.GeneFile, c) && genes != nil {
		list, err := genes.GeneList(c.GenesSheet, c.GeneListCol)
		if err != nil {
			return types.ContrastArtifact{}, fmt.Errorf("contrast %s: %w", name, err)
		}
		before := len(counts.Genes)
		sub, missing := counts.SelectRows(list)
		if len(missing) > 0 {
			if opts.MissingGenes != types.MissingGenesDrop {
				return types.ContrastArtifact{}, &MissingGenesError{Contrast: name, Genes: missing}
			}
			fmt.Fprintf(w, "dropped: %s (%d requested genes not in matrix)\n", name, len(missing))
		}
		counts = sub
		fmt.Fprintf(w, "subset:  %s (%d of %d genes)\n", name, len(counts.Genes), before)
	}

	countsPath := filepath.Join(opts.Dir, name+countsSuffix)
	if err := counts.WriteCSV(countsPath); err != nil {
		return types.ContrastArtifact{}, fmt.Errorf("contrast %s: %w", name, err)
	}

	metaPath := filepath.Join(opts.Dir, name+metadataSuffix)
	if err := matrix.WriteCSVTable(metaPath, labelTable(c, counts.Samples)); err != nil {
		return types.ContrastArtifact{}, fmt.Errorf("contrast %s: %w", name, err)
	}

	fmt.Fprintf(w, "exported: %s (%d genes, %d samples)\n", name, len(counts.Genes), len(counts.Samples))
	return types.ContrastArtifact{
		Name:         name,
		GroupA:       c.GroupA(),
		GroupB:       c.GroupB(),
		CountsFile:   countsPath,
		MetadataFile: metaPath,
		Genes:        len(counts.Genes),
		Samples:      len(counts.Samples),
	}, nil
}

// Stems returns one unique file and directory stem per contrast name.
// Repeated names get _2, _3, ... suffixes.
func Stems(names []string) []string {
	taken := make(map[string]bool, len(names))
	stems := make([]string, len(names))
	for i, n := range names {
		stem := n
		for k := 2; taken[stem]; k++ {
			stem = fmt.Sprintf("%s_%d", n, k)
		}
		taken[stem] = true
		stems[i] = stem
	}
	return stems
}

// subsetRequested reports whether gene file, sheet and column are all set.
// A partial specification means no subsetting.
func subsetRequested(geneFile string, c types.ResolvedContrast) bool {
	return geneFile != "" && c.GenesSheet != "" && c.GeneListCol != ""
}

// labelTable pairs each exported sample column with its group label.
func labelTable(c types.ResolvedContrast, columns []string) *matrix.Table {
	inA := make(map[string]bool, len(c.GroupASamples))
	for _, s := range c.GroupASamples {
		inA[s] = true
	}
	t := &matrix.Table{Header: []string{sampleHeader, groupHeader}}
	for _, s := range columns {
		group := c.GroupB()
		if inA[s] {
			group = c.GroupA()
		}
		t.Rows = append(t.Rows, []string{s, group})
	}
	return t
}
