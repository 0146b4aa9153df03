// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package matrix reads and writes the tabular files exchanged between the
// pipeline stages and the analysis engine: string tables (metadata, engine
// result tables) and numeric gene-by-sample matrices.
package matrix

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Table is a header row plus data rows. Every row has len(Header) cells.
type Table struct {
	Header []string
	Rows   [][]string
}

// Column returns the index of the named column, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Values returns the cells of column col in row order.
func (t *Table) Values(col int) []string {
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[col]
	}
	return out
}

// Head returns a copy of the table limited to its first n rows.
func (t *Table) Head(n int) *Table {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	out := &Table{Header: append([]string(nil), t.Header...)}
	for _, row := range t.Rows[:n] {
		out.Rows = append(out.Rows, append([]string(nil), row...))
	}
	return out
}

// ReadTable reads a .csv or .xlsx file. For workbooks, sheet selects the
// worksheet; an empty sheet means the first one.
func ReadTable(path, sheet string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSVTable(path)
	case ".xlsx":
		return ReadSheet(path, sheet)
	default:
		return nil, fmt.Errorf("unsupported table format %q: use .csv or .xlsx", path)
	}
}

// ReadCSVTable reads a comma-separated file with a header row.
func ReadCSVTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("reading %s: empty file", path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return newTable(header, records), nil
}

// ReadSheet reads one worksheet of an xlsx workbook. Cell values are read
// raw so numbers keep their full precision.
func ReadSheet(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", path)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q of %s: %w", sheet, path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q of %s is empty", sheet, path)
	}
	return newTable(rows[0], rows[1:]), nil
}

// newTable trims header cells and pads or truncates rows to the header width.
// Workbooks drop trailing empty cells, so short rows are expected.
func newTable(header []string, records [][]string) *Table {
	t := &Table{Header: make([]string, len(header))}
	for i, h := range header {
		t.Header[i] = strings.TrimSpace(h)
	}
	for _, rec := range records {
		if isBlank(rec) {
			continue
		}
		row := make([]string, len(header))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// WriteCSVTable writes t to path, replacing any existing file.
func WriteCSVTable(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(t.Header); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
