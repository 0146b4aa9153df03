// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/alexdaiii/lfq-proteomics/internal/dag"
	"github.com/alexdaiii/lfq-proteomics/internal/ledger"
	"github.com/alexdaiii/lfq-proteomics/internal/report"
	"github.com/alexdaiii/lfq-proteomics/pkg/types"
)

// RunResult is the outcome of one executed run.
type RunResult struct {
	RunID   string
	RunDir  string
	Summary *report.Summary

	// Graph is the final state of every task-graph node.
	Graph *dag.Result
}

// Failed returns the number of failed task-graph nodes.
func (r *RunResult) Failed() int { return r.Graph.Count(dag.TaskFailed) }

// Skipped returns the number of skipped task-graph nodes.
func (r *RunResult) Skipped() int { return r.Graph.Count(dag.TaskSkipped) }

// execution is the state of one Execute call.
type execution struct {
	p     *Pipeline
	plan  *Plan
	units []*unit
	byDir map[string]*unit

	mu  sync.Mutex
	pca *report.PCASummary
}

// Execute builds the task graph for plan and runs it. Every contrast gets
// its own branch nodes; no contrast waits on another.
func (p *Pipeline) Execute(ctx context.Context, plan *Plan) (*RunResult, error) {
	ex := &execution{p: p, plan: plan, byDir: make(map[string]*unit)}
	for i, a := range plan.Artifacts {
		// The export stem keeps repeated contrasts apart on disk.
		dir := a.Name
		u := newUnit(plan.Contrasts[i], plan.Artifacts[i], dir, runPath(plan.RunDir, dir))
		u.report.Header("%s (%d samples) vs %s (%d samples), %d genes.",
			u.contrast.GroupA(), len(u.contrast.GroupASamples),
			u.contrast.GroupB(), len(u.contrast.GroupBSamples), u.artifact.Genes)
		ex.units = append(ex.units, u)
		ex.byDir[dir] = u
		ex.recordContrast(ctx, u)
	}

	g, err := ex.graph()
	if err != nil {
		p.finishRun(ctx, plan.RunID, ledger.RunFailed)
		return nil, err
	}

	res, err := dag.Run(ctx, g, dag.Options{
		Concurrency: p.cfg.Concurrency,
		Observer:    ex.observe(ctx),
	})
	if err != nil {
		p.finishRun(ctx, plan.RunID, ledger.RunFailed)
		return nil, fmt.Errorf("executing task graph: %w", err)
	}

	out := &RunResult{RunID: plan.RunID, RunDir: plan.RunDir, Graph: res}
	out.Summary = ex.summary()
	if err := report.WriteSummary(runPath(plan.RunDir, report.SummaryFile), out.Summary); err != nil {
		fmt.Fprintf(p.w, "failed:  summary (%v)\n", err)
	}

	status := ledger.RunCompleted
	if out.Failed() > 0 || ctx.Err() != nil {
		status = ledger.RunFailed
	}
	p.finishRun(ctx, plan.RunID, status)
	fmt.Fprintf(p.w, "\nRun summary: %d contrasts, %d tasks completed, %d failed, %d skipped (run: %s)\n",
		len(ex.units), res.Count(dag.TaskCompleted), out.Failed(), out.Skipped(), plan.RunID)
	return out, nil
}

// graph wires the run-level PCA node and, per contrast:
//
//	primary -> heatmap, volcano, enrichment
//	enrichment -> kegg_fixup
//	heatmap, volcano, kegg_fixup -> join
//
// join is a barrier: it runs however its dependencies ended.
func (ex *execution) graph() (*dag.Graph, error) {
	nodes := []dag.Node{{ID: dag.NodeID{Branch: branchPCA}, Task: ex.runPCA}}
	var edges []dag.Edge
	for _, u := range ex.units {
		id := func(branch string) dag.NodeID { return dag.NodeID{Unit: u.dir, Branch: branch} }
		nodes = append(nodes,
			dag.Node{ID: id(branchPrimary), Task: ex.primary(u)},
			dag.Node{ID: id(branchHeatmap), Task: ex.heatmap(u)},
			dag.Node{ID: id(branchVolcano), Task: ex.volcano(u)},
			dag.Node{ID: id(branchEnrichment), Task: ex.enrichment(u)},
			dag.Node{ID: id(branchKegg), Task: ex.keggFixup(u)},
			dag.Node{ID: id(branchJoin), Task: ex.join(u), Barrier: true},
		)
		edges = append(edges,
			dag.Edge{From: id(branchPrimary), To: id(branchHeatmap)},
			dag.Edge{From: id(branchPrimary), To: id(branchVolcano)},
			dag.Edge{From: id(branchPrimary), To: id(branchEnrichment)},
			dag.Edge{From: id(branchEnrichment), To: id(branchKegg)},
			dag.Edge{From: id(branchHeatmap), To: id(branchJoin)},
			dag.Edge{From: id(branchVolcano), To: id(branchJoin)},
			dag.Edge{From: id(branchKegg), To: id(branchJoin)},
		)
	}
	return dag.NewGraph(nodes, edges)
}

// observe records node state changes in the unit, the report and the
// ledger. The executor calls it from a single goroutine.
func (ex *execution) observe(ctx context.Context) dag.Observer {
	return func(id dag.NodeID, state dag.TaskState, err error) {
		ex.recordTask(ctx, id, state, err)
		u, ok := ex.byDir[id.Unit]
		if !ok {
			if state == dag.TaskFailed {
				fmt.Fprintf(ex.p.w, "failed:  %s (%v)\n", id, err)
			}
			return
		}
		u.setTask(id.Branch, string(state))

		switch state {
		case dag.TaskFailed:
			fmt.Fprintf(ex.p.w, "failed:  %s (%v)\n", id, err)
			u.report.Note(sectionFor(id.Branch), "%s failed: %v", id.Branch, err)
		case dag.TaskSkipped:
			u.report.Note(sectionFor(id.Branch), "%s skipped: an upstream task did not complete.", id.Branch)
		}

		if id.Branch != branchPrimary {
			return
		}
		switch state {
		case dag.TaskRunning:
			u.setState(types.ContrastPrimaryRun)
			ex.recordContrast(ctx, u)
		case dag.TaskFailed:
			u.setState(types.ContrastPrimaryFailed)
			ex.recordContrast(ctx, u)
			u.setState(types.ContrastFannedOut)
		case dag.TaskCompleted:
			u.setState(types.ContrastFannedOut)
		}
	}
}

func (ex *execution) recordTask(ctx context.Context, id dag.NodeID, state dag.TaskState, err error) {
	if ex.p.ledger == nil {
		return
	}
	t := ledger.Task{Unit: id.Unit, Branch: id.Branch, State: string(state)}
	if err != nil {
		t.Error = err.Error()
	}
	if lerr := ex.p.ledger.RecordTask(context.WithoutCancel(ctx), ex.plan.RunID, t); lerr != nil {
		fmt.Fprintf(ex.p.w, "ledger:  %v\n", lerr)
	}
}

func (ex *execution) recordContrast(ctx context.Context, u *unit) {
	if ex.p.ledger == nil {
		return
	}
	c := ledger.Contrast{
		Name:    u.name,
		Dir:     u.dir,
		GroupA:  u.contrast.GroupA(),
		GroupB:  u.contrast.GroupB(),
		State:   u.getState(),
		Outcome: string(u.getOutcome().Status),
	}
	if c.State == types.ContrastJoined {
		c.Report = filepath.Join(u.path, reportFile)
	}
	if err := ex.p.ledger.RecordContrast(context.WithoutCancel(ctx), ex.plan.RunID, c); err != nil {
		fmt.Fprintf(ex.p.w, "ledger:  %v\n", err)
	}
}

func (ex *execution) summary() *report.Summary {
	genes, samples := ex.plan.Matrix.Dims()
	s := &report.Summary{
		RunID:      ex.plan.RunID,
		StartedAt:  ex.plan.StartedAt,
		FinishedAt: ex.p.now(),
		RunDir:     ex.plan.RunDir,
		NormMethod: ex.p.cfg.Preprocess.NormMethod,
		Genes:      genes,
		Samples:    samples,
	}
	ex.mu.Lock()
	s.PCA = ex.pca
	ex.mu.Unlock()
	for _, u := range ex.units {
		cs := report.ContrastSummary{
			Name:     u.name,
			Dir:      u.dir,
			State:    u.getState(),
			Outcome:  u.getOutcome(),
			Artifact: u.artifact,
			Tasks:    u.taskStates(),
		}
		if cs.State == types.ContrastJoined {
			cs.Report = filepath.Join(u.dir, reportFile)
		}
		s.Contrasts = append(s.Contrasts, cs)
	}
	return s
}

func mkdirs(base string, dirs ...string) error {
	var errs []error
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(base, d), 0o755); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
