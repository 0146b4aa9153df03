// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metadata maps experimental conditions to sample identifiers and
// checks that the mapping agrees with the intensity matrix.
package metadata

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alexdaiii/lfq-proteomics/internal/matrix"
	"github.com/alexdaiii/lfq-proteomics/pkg/types"
)

// ValidationError reports a metadata precondition failure. When the sample
// sets disagree, OnlyInCounts and OnlyInMetadata hold the differing samples.
type ValidationError struct {
	Msg            string
	OnlyInCounts   []string
	OnlyInMetadata []string
}

func (e *ValidationError) Error() string {
	if len(e.OnlyInCounts) == 0 && len(e.OnlyInMetadata) == 0 {
		return e.Msg
	}
	return fmt.Sprintf("%s: only in counts %v, only in metadata %v", e.Msg, e.OnlyInCounts, e.OnlyInMetadata)
}

func (e *ValidationError) Unwrap() error { return types.ErrValidation }

// Load reads the metadata table named by cfg and builds the condition maps.
func Load(cfg types.InputConfig) (types.SampleConditions, error) {
	t, err := matrix.ReadTable(cfg.MetadataFile, cfg.MetadataSheet)
	if err != nil {
		return types.SampleConditions{}, err
	}
	return Build(t, cfg.MetadataIndexCol, cfg.ConditionCol)
}

// Build maps conditions to samples. indexCol is the column of sample
// identifiers. The condition column must exist and be filled for every row;
// both are checked before any map is built.
func Build(t *matrix.Table, indexCol int, conditionCol string) (types.SampleConditions, error) {
	if indexCol < 0 || indexCol >= len(t.Header) {
		return types.SampleConditions{}, &ValidationError{
			Msg: fmt.Sprintf("metadata index column %d out of range (%d columns)", indexCol, len(t.Header)),
		}
	}
	condCol := t.Column(conditionCol)
	if condCol < 0 {
		return types.SampleConditions{}, &ValidationError{
			Msg: fmt.Sprintf("condition column %q not found in metadata", conditionCol),
		}
	}

	var blank []string
	for i, row := range t.Rows {
		if strings.TrimSpace(row[condCol]) == "" {
			blank = append(blank, rowLabel(row[indexCol], i))
		}
	}
	if len(blank) > 0 {
		return types.SampleConditions{}, &ValidationError{
			Msg: fmt.Sprintf("condition column %q has missing values for samples %v", conditionCol, blank),
		}
	}

	sc := types.SampleConditions{
		ConditionToSamples: make(map[string][]string),
		SampleToCondition:  make(map[string]string, len(t.Rows)),
	}
	for i, row := range t.Rows {
		sample := strings.TrimSpace(row[indexCol])
		if sample == "" {
			return types.SampleConditions{}, &ValidationError{
				Msg: fmt.Sprintf("metadata row %d has an empty sample identifier", i+1),
			}
		}
		if _, dup := sc.SampleToCondition[sample]; dup {
			return types.SampleConditions{}, &ValidationError{
				Msg: fmt.Sprintf("sample %q appears more than once in metadata", sample),
			}
		}
		cond := strings.TrimSpace(row[condCol])
		sc.SampleToCondition[sample] = cond
		if _, seen := sc.ConditionToSamples[cond]; !seen {
			sc.Conditions = append(sc.Conditions, cond)
		}
		sc.ConditionToSamples[cond] = append(sc.ConditionToSamples[cond], sample)
	}
	sort.Strings(sc.Conditions)
	return sc, nil
}

func rowLabel(sample string, i int) string {
	if s := strings.TrimSpace(sample); s != "" {
		return s
	}
	return fmt.Sprintf("row %d", i+1)
}

// Validate checks that the counts matrix samples and the metadata samples
// are the same set. Order does not matter.
func Validate(countsSamples []string, sc types.SampleConditions) error {
	inCounts := make(map[string]bool, len(countsSamples))
	for _, s := range countsSamples {
		inCounts[s] = true
	}

	var onlyCounts, onlyMeta []string
	for s := range inCounts {
		if _, ok := sc.SampleToCondition[s]; !ok {
			onlyCounts = append(onlyCounts, s)
		}
	}
	for s := range sc.SampleToCondition {
		if !inCounts[s] {
			onlyMeta = append(onlyMeta, s)
		}
	}
	if len(onlyCounts) == 0 && len(onlyMeta) == 0 {
		return nil
	}

	sort.Strings(onlyCounts)
	sort.Strings(onlyMeta)
	return &ValidationError{
		Msg:            "samples in the counts data do not match samples in the metadata",
		OnlyInCounts:   onlyCounts,
		OnlyInMetadata: onlyMeta,
	}
}
