// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "errors"

// ErrValidation marks precondition failures (bad metadata, unknown contrast
// conditions, invalid configuration). They abort a run before any
// per-contrast work starts.
var ErrValidation = errors.New("validation failed")

// OutcomeStatus distinguishes a produced result from an explicit absence.
type OutcomeStatus string

const (
	OutcomeResult OutcomeStatus = "result"
	OutcomeEmpty  OutcomeStatus = "empty"
)

// AnalysisOutcome is the primary engine result for one contrast. An empty
// outcome is a normal result that downstream branches must branch on.
type AnalysisOutcome struct {
	Status     OutcomeStatus `json:"status" yaml:"status"`
	ResultPath string        `json:"result_path,omitempty" yaml:"result_path,omitempty"`
	Reason     string        `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// ResultOutcome returns an outcome pointing at a results table.
func ResultOutcome(path string) AnalysisOutcome {
	return AnalysisOutcome{Status: OutcomeResult, ResultPath: path}
}

// EmptyOutcome returns the "no result" outcome with the reason recorded.
func EmptyOutcome(reason string) AnalysisOutcome {
	return AnalysisOutcome{Status: OutcomeEmpty, Reason: reason}
}

// IsEmpty reports whether the outcome carries no results table.
func (o AnalysisOutcome) IsEmpty() bool {
	return o.Status != OutcomeResult || o.ResultPath == ""
}
