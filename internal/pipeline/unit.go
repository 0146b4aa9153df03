// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"sync"

	"github.com/alexdaiii/lfq-proteomics/internal/enrichment"
	"github.com/alexdaiii/lfq-proteomics/internal/report"
	"github.com/alexdaiii/lfq-proteomics/pkg/types"
)

// unit is the per-contrast state shared by the branches of one contrast.
// Branch tasks of the same unit may run concurrently, so every mutable
// field sits behind mu.
type unit struct {
	name     string
	dir      string
	path     string
	contrast types.ResolvedContrast
	artifact types.ContrastArtifact
	report   *report.Report

	mu      sync.Mutex
	state   types.ContrastState
	outcome types.AnalysisOutcome
	job     *enrichment.KeggFixupJob
	tasks   map[string]string
}

func newUnit(c types.ResolvedContrast, a types.ContrastArtifact, dir, path string) *unit {
	return &unit{
		name:     c.Name(),
		dir:      dir,
		path:     path,
		contrast: c,
		artifact: a,
		report:   report.New(c.Name(), reportSections...),
		state:    types.ContrastExported,
		tasks:    make(map[string]string),
	}
}

func (u *unit) setState(s types.ContrastState) {
	u.mu.Lock()
	u.state = s
	u.mu.Unlock()
}

func (u *unit) getState() types.ContrastState {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

func (u *unit) setOutcome(o types.AnalysisOutcome) {
	u.mu.Lock()
	u.outcome = o
	u.mu.Unlock()
}

func (u *unit) getOutcome() types.AnalysisOutcome {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.outcome
}

func (u *unit) setJob(j *enrichment.KeggFixupJob) {
	u.mu.Lock()
	u.job = j
	u.mu.Unlock()
}

func (u *unit) getJob() *enrichment.KeggFixupJob {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.job
}

func (u *unit) setTask(branch, state string) {
	u.mu.Lock()
	u.tasks[branch] = state
	u.mu.Unlock()
}

func (u *unit) taskStates() map[string]string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[string]string, len(u.tasks))
	for k, v := range u.tasks {
		out[k] = v
	}
	return out
}

// primaryResult returns the primary outcome when it carries a results
// table. Otherwise it records why the branch has nothing to do.
func (u *unit) primaryResult(sec, what string) (string, bool) {
	o := u.getOutcome()
	if o.IsEmpty() {
		if o.Reason != "" {
			u.report.Note(sec, "No DEG result found for %s (%s).", what, o.Reason)
		} else {
			u.report.Note(sec, "No DEG result found for %s.", what)
		}
		return "", false
	}
	return o.ResultPath, true
}
