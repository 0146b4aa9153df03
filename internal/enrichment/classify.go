// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package enrichment

import (
	"strings"

	"github.com/alexdaiii/lfq-proteomics/pkg/types"
)

// Classification is the routed output of one enrichment run.
type Classification struct {
	// Tables are statistical and comparison results, in output order.
	Tables []types.EnrichmentRecord

	// Plots are images forwarded for display.
	Plots []types.EnrichmentRecord

	// GeneIDs is the SYMBOL/ENTREZID lookup table. When the engine reports
	// more than one, the last wins.
	GeneIDs *types.EnrichmentRecord

	// KeggCandidates are the distinct table paths that carry ENTREZ ids.
	KeggCandidates []string

	// Unrecognized are records whose kind is not known.
	Unrecognized []types.EnrichmentRecord

	// Skipped are the non-blank lines that did not parse.
	Skipped []ParseResult
}

// Classify parses every line and routes the records by kind. Lines holding
// several newline-separated records are split first.
func Classify(lines []string) Classification {
	var c Classification
	seen := make(map[string]bool)
	for _, chunk := range lines {
		for _, line := range strings.Split(chunk, "\n") {
			res := ParseLine(line)
			if !res.Parsed() {
				if res.Skip != SkipBlank {
					c.Skipped = append(c.Skipped, res)
				}
				continue
			}
			c.route(res.Record, seen)
		}
	}
	return c
}

func (c *Classification) route(rec types.EnrichmentRecord, seen map[string]bool) {
	switch {
	case rec.IsTable():
		c.Tables = append(c.Tables, rec)
		if rec.NeedsKeggFixup() && !seen[rec.FilePath] {
			seen[rec.FilePath] = true
			c.KeggCandidates = append(c.KeggCandidates, rec.FilePath)
		}
	case rec.Kind == types.KindPlot:
		c.Plots = append(c.Plots, rec)
	case rec.Kind == types.KindGeneIDs:
		r := rec
		c.GeneIDs = &r
	default:
		c.Unrecognized = append(c.Unrecognized, rec)
	}
}

// FixupJob returns the KEGG fix-up job for this run. It returns false when
// the run produced no gene-id table or no KEGG candidate; that is not an
// error.
func (c Classification) FixupJob() (*KeggFixupJob, bool) {
	if c.GeneIDs == nil || len(c.KeggCandidates) == 0 {
		return nil, false
	}
	return &KeggFixupJob{
		GeneIDs: c.GeneIDs.FilePath,
		Files:   append([]string(nil), c.KeggCandidates...),
	}, true
}
