// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package contrast resolves requested condition pairs into sample groups and
// exports the per-contrast input files read by the analysis engine.
package contrast

import (
	"fmt"

	"github.com/alexdaiii/lfq-proteomics/pkg/types"
)

// UnknownConditionError reports a contrast request naming a condition that
// is not in the metadata.
type UnknownConditionError struct {
	Index     int
	Contrast  string
	Condition string
}

func (e *UnknownConditionError) Error() string {
	return fmt.Sprintf("contrast %d (%s): condition %q not found in metadata", e.Index, e.Contrast, e.Condition)
}

func (e *UnknownConditionError) Unwrap() error { return types.ErrValidation }

// Build resolves every request against sc. The output has one entry per
// request, in request order; duplicates are kept. If any request names an
// unknown condition, no contrast is returned.
func Build(requests []types.ContrastRequest, sc types.SampleConditions) ([]types.ResolvedContrast, error) {
	for i, req := range requests {
		for _, cond := range req.Conditions {
			if _, ok := sc.ConditionToSamples[cond]; !ok {
				return nil, &UnknownConditionError{Index: i, Contrast: req.Name(), Condition: cond}
			}
		}
	}

	out := make([]types.ResolvedContrast, 0, len(requests))
	for _, req := range requests {
		out = append(out, types.ResolvedContrast{
			ContrastRequest: req,
			GroupASamples:   append([]string(nil), sc.ConditionToSamples[req.GroupA()]...),
			GroupBSamples:   append([]string(nil), sc.ConditionToSamples[req.GroupB()]...),
		})
	}
	return out, nil
}
