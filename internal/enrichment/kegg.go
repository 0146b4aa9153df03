// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enrichment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/alexdaiii/lfq-proteomics/internal/matrix"
)

// ErrJobConsumed is returned when a KeggFixupJob is run a second time.
var ErrJobConsumed = errors.New("kegg fix-up job already consumed")

// Columns read and rewritten by the fix-up.
const (
	GeneIDColumn = "geneID"
	SymbolColumn = "SYMBOL"
	EntrezColumn = "ENTREZID"
)

// KeggFixupJob rewrites the ENTREZ ids of KEGG and comparison tables as
// gene symbols using the gene-id lookup table. A job runs at most once.
type KeggFixupJob struct {
	GeneIDs string
	Files   []string

	mu       sync.Mutex
	consumed bool
}

// Run writes a fixed copy of every file to dir under its base name and
// returns the written paths. Ids missing from the lookup table are kept.
// Files that cannot be fixed are reported together; the others are still
// written.
func (j *KeggFixupJob) Run(dir string) ([]string, error) {
	j.mu.Lock()
	if j.consumed {
		j.mu.Unlock()
		return nil, ErrJobConsumed
	}
	j.consumed = true
	j.mu.Unlock()

	symbols, err := loadSymbols(j.GeneIDs)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating kegg output directory: %w", err)
	}

	var written []string
	var errs []error
	for _, f := range j.Files {
		out := filepath.Join(dir, filepath.Base(f))
		if err := fixFile(f, out, symbols); err != nil {
			errs = append(errs, err)
			continue
		}
		written = append(written, out)
	}
	return written, errors.Join(errs...)
}

// loadSymbols maps ENTREZ id to gene symbol.
func loadSymbols(path string) (map[string]string, error) {
	t, err := matrix.ReadCSVTable(path)
	if err != nil {
		return nil, fmt.Errorf("reading gene id table: %w", err)
	}
	sym, ent := t.Column(SymbolColumn), t.Column(EntrezColumn)
	if sym < 0 || ent < 0 {
		return nil, fmt.Errorf("gene id table %s needs %s and %s columns", path, SymbolColumn, EntrezColumn)
	}
	m := make(map[string]string, len(t.Rows))
	for _, row := range t.Rows {
		id := strings.TrimSpace(row[ent])
		if id != "" {
			m[id] = strings.TrimSpace(row[sym])
		}
	}
	return m, nil
}

func fixFile(in, out string, symbols map[string]string) error {
	t, err := matrix.ReadCSVTable(in)
	if err != nil {
		return fmt.Errorf("reading %s: %w", in, err)
	}
	col := t.Column(GeneIDColumn)
	if col < 0 {
		return fmt.Errorf("%s has no %s column", in, GeneIDColumn)
	}
	for _, row := range t.Rows {
		row[col] = mapIDs(row[col], symbols)
	}
	if err := matrix.WriteCSVTable(out, t); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	return nil
}

// mapIDs rewrites a "/"-separated id list.
func mapIDs(v string, symbols map[string]string) string {
	ids := strings.Split(v, "/")
	for i, id := range ids {
		if s, ok := symbols[strings.TrimSpace(id)]; ok && s != "" {
			ids[i] = s
		}
	}
	return strings.Join(ids, "/")
}
