// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enrichment

import (
	"fmt"
	"strings"

	"github.com/alexdaiii/lfq-proteomics/internal/matrix"
)

// RatioColumns hold "k/n" values that spreadsheet programs read as dates.
var RatioColumns = []string{"GeneRatio", "BgRatio"}

// FixRatioColumns rewrites every RatioColumns value of the CSV table at path
// as a quoted literal such as "3/10". Values already quoted are left as is.
// A table missing either column is an error and is not rewritten.
func FixRatioColumns(path string) error {
	t, err := matrix.ReadCSVTable(path)
	if err != nil {
		return fmt.Errorf("fixing ratio columns: %w", err)
	}

	cols := make([]int, 0, len(RatioColumns))
	for _, name := range RatioColumns {
		j := t.Column(name)
		if j < 0 {
			return fmt.Errorf("fixing ratio columns: %s has no %s column", path, name)
		}
		cols = append(cols, j)
	}

	for _, row := range t.Rows {
		for _, j := range cols {
			row[j] = quote(row[j])
		}
	}
	if err := matrix.WriteCSVTable(path, t); err != nil {
		return fmt.Errorf("fixing ratio columns: %w", err)
	}
	return nil
}

func quote(v string) string {
	if len(v) >= 2 && strings.HasPrefix(v, `"`) && strings.HasSuffix(v, `"`) {
		return v
	}
	return `"` + v + `"`
}
