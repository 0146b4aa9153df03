// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package enrichment parses the structured lines printed by the enrichment
// engine, routes each record by kind, and post-processes the tables it
// points at.
package enrichment

import (
	"os"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/alexdaiii/lfq-proteomics/pkg/types"
)

// SkipReason explains why a line did not yield a record.
type SkipReason string

const (
	SkipBlank           SkipReason = "blank line"
	SkipNotJSON         SkipReason = "not a JSON record"
	SkipUnknownOntology SkipReason = "unknown ontology"
	SkipEmptyKind       SkipReason = "empty result_type"
	SkipMissingPath     SkipReason = "missing file_path"
	SkipFileNotFound    SkipReason = "file does not exist"
)

// ParseResult is the outcome of parsing one line: either a record or the
// reason the line was skipped.
type ParseResult struct {
	Line   string
	Record types.EnrichmentRecord
	Skip   SkipReason
}

// Parsed reports whether the line yielded a record.
func (p ParseResult) Parsed() bool { return p.Skip == "" }

// kindPrefix matches the optional "KIND:" label before the JSON object.
var kindPrefix = regexp.MustCompile(`^[A-Za-z_]+:\s*$`)

// ParseLine parses "{json}" or "KIND:{json}". It never fails; lines that
// are not records come back with a SkipReason.
func ParseLine(line string) ParseResult {
	res := ParseResult{Line: line}
	s := strings.TrimSpace(line)
	if s == "" {
		res.Skip = SkipBlank
		return res
	}

	brace := strings.IndexByte(s, '{')
	if brace < 0 || (brace > 0 && !kindPrefix.MatchString(s[:brace])) {
		res.Skip = SkipNotJSON
		return res
	}
	body := s[brace:]
	if !gjson.Valid(body) || !gjson.Parse(body).IsObject() {
		res.Skip = SkipNotJSON
		return res
	}

	fields := gjson.GetMany(body, "file_path", "ont", "result_type")
	ont, ok := parseOntology(fields[1])
	if !ok {
		res.Skip = SkipUnknownOntology
		return res
	}
	kind := strings.TrimSpace(fields[2].String())
	if kind == "" {
		res.Skip = SkipEmptyKind
		return res
	}
	path := strings.TrimSpace(fields[0].String())
	if path == "" {
		res.Skip = SkipMissingPath
		return res
	}
	if _, err := os.Stat(path); err != nil {
		res.Skip = SkipFileNotFound
		return res
	}

	res.Record = types.EnrichmentRecord{FilePath: path, Ontology: ont, Kind: types.ResultKind(kind)}
	return res
}

// parseOntology maps the "ont" field; absent, null, "" and "None" are all
// OntologyNone.
func parseOntology(v gjson.Result) (types.Ontology, bool) {
	if !v.Exists() || v.Type == gjson.Null {
		return types.OntologyNone, true
	}
	switch o := types.Ontology(strings.TrimSpace(v.String())); o {
	case "", types.OntologyNone:
		return types.OntologyNone, true
	case types.OntologyBP, types.OntologyCC, types.OntologyMF, types.OntologyKEGG:
		return o, true
	}
	return "", false
}
