// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package matrix

import (
	"fmt"
	"strconv"
	"strings"
)

// Matrix is a dense gene-by-sample intensity matrix. Values[i][j] is the
// intensity of Genes[i] in Samples[j].
type Matrix struct {
	// IndexName is the header of the gene identifier column.
	IndexName string
	Genes     []string
	Samples   []string
	Values    [][]float64

	geneIdx map[string]int
}

// Load reads an intensity matrix from a .csv or .xlsx file. indexCol is the
// zero-based column holding gene identifiers; every other column is a sample.
func Load(path, sheet string, indexCol int) (*Matrix, error) {
	t, err := ReadTable(path, sheet)
	if err != nil {
		return nil, err
	}
	m, err := FromTable(t, indexCol)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return m, nil
}

// ReadCSV reads a matrix written by WriteCSV (gene identifiers first).
func ReadCSV(path string) (*Matrix, error) {
	return Load(path, "", 0)
}

// FromTable parses t into a Matrix. Every cell outside the index column must
// be a number: the input is an imputed matrix, so blanks are an error.
func FromTable(t *Table, indexCol int) (*Matrix, error) {
	if indexCol < 0 || indexCol >= len(t.Header) {
		return nil, fmt.Errorf("index column %d out of range (%d columns)", indexCol, len(t.Header))
	}

	m := &Matrix{IndexName: t.Header[indexCol]}
	cols := make([]int, 0, len(t.Header)-1)
	for j, h := range t.Header {
		if j == indexCol {
			continue
		}
		m.Samples = append(m.Samples, h)
		cols = append(cols, j)
	}

	m.geneIdx = make(map[string]int, len(t.Rows))
	var missing int
	for _, row := range t.Rows {
		gene := strings.TrimSpace(row[indexCol])
		if gene == "" {
			return nil, fmt.Errorf("row %d has an empty gene identifier", len(m.Genes)+1)
		}
		if _, dup := m.geneIdx[gene]; dup {
			return nil, fmt.Errorf("duplicate gene identifier %q", gene)
		}
		vals := make([]float64, len(cols))
		for k, j := range cols {
			cell := strings.TrimSpace(row[j])
			if cell == "" {
				missing++
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("parsing value for %q in sample %q: %w", gene, m.Samples[k], err)
			}
			vals[k] = v
		}
		m.geneIdx[gene] = len(m.Genes)
		m.Genes = append(m.Genes, gene)
		m.Values = append(m.Values, vals)
	}
	if missing > 0 {
		return nil, fmt.Errorf("%d missing values in the intensity matrix", missing)
	}
	return m, nil
}

// New builds a matrix from its parts. values must be len(genes) rows of
// len(samples) values.
func New(indexName string, genes, samples []string, values [][]float64) *Matrix {
	m := &Matrix{
		IndexName: indexName,
		Genes:     genes,
		Samples:   samples,
		Values:    values,
	}
	m.index()
	return m
}

func (m *Matrix) index() {
	m.geneIdx = make(map[string]int, len(m.Genes))
	for i, g := range m.Genes {
		m.geneIdx[g] = i
	}
}

// Dims returns the number of genes and samples.
func (m *Matrix) Dims() (genes, samples int) {
	return len(m.Genes), len(m.Samples)
}

// Column returns a copy of sample column j.
func (m *Matrix) Column(j int) []float64 {
	out := make([]float64, len(m.Genes))
	for i := range m.Genes {
		out[i] = m.Values[i][j]
	}
	return out
}

// HasGene reports whether gene is a row of the matrix.
func (m *Matrix) HasGene(gene string) bool {
	if m.geneIdx == nil {
		m.index()
	}
	_, ok := m.geneIdx[gene]
	return ok
}

// SelectColumns returns a new matrix with the given sample columns in the
// given order. Unknown samples are an error.
func (m *Matrix) SelectColumns(samples []string) (*Matrix, error) {
	pos := make(map[string]int, len(m.Samples))
	for j, s := range m.Samples {
		pos[s] = j
	}
	idx := make([]int, len(samples))
	for k, s := range samples {
		j, ok := pos[s]
		if !ok {
			return nil, fmt.Errorf("sample %q not in matrix", s)
		}
		idx[k] = j
	}

	values := make([][]float64, len(m.Genes))
	for i, row := range m.Values {
		out := make([]float64, len(idx))
		for k, j := range idx {
			out[k] = row[j]
		}
		values[i] = out
	}
	return New(m.IndexName, append([]string(nil), m.Genes...), append([]string(nil), samples...), values), nil
}

// SelectRows returns a new matrix restricted to genes, in the order given.
// Genes not present in m are skipped and returned in missing.
func (m *Matrix) SelectRows(genes []string) (sub *Matrix, missing []string) {
	if m.geneIdx == nil {
		m.index()
	}
	var kept []string
	var values [][]float64
	for _, g := range genes {
		i, ok := m.geneIdx[g]
		if !ok {
			missing = append(missing, g)
			continue
		}
		kept = append(kept, g)
		values = append(values, append([]float64(nil), m.Values[i]...))
	}
	return New(m.IndexName, kept, append([]string(nil), m.Samples...), values), missing
}

// Table renders the matrix as a string table with the gene column first.
func (m *Matrix) Table() *Table {
	t := &Table{Header: append([]string{m.IndexName}, m.Samples...)}
	for i, g := range m.Genes {
		row := make([]string, 0, len(m.Samples)+1)
		row = append(row, g)
		for _, v := range m.Values[i] {
			row = append(row, FormatFloat(v))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// WriteCSV writes the matrix to path with the gene column first.
func (m *Matrix) WriteCSV(path string) error {
	return WriteCSVTable(path, m.Table())
}

// FormatFloat formats v with the shortest representation that round-trips.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
