// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs the DEG analysis: it prepares the normalized matrix
// and per-contrast engine inputs, then executes the per-contrast task graph
// (primary analysis fanned out to heatmap, volcano and enrichment, with the
// KEGG fix-up after enrichment and a join that writes the report).
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/alexdaiii/lfq-proteomics/internal/contrast"
	"github.com/alexdaiii/lfq-proteomics/internal/engine"
	"github.com/alexdaiii/lfq-proteomics/internal/ledger"
	"github.com/alexdaiii/lfq-proteomics/internal/matrix"
	"github.com/alexdaiii/lfq-proteomics/internal/metadata"
	"github.com/alexdaiii/lfq-proteomics/internal/normalize"
	"github.com/alexdaiii/lfq-proteomics/pkg/types"
)

// Pipeline runs one configuration against an analysis engine.
type Pipeline struct {
	cfg    types.PipelineConfig
	engine engine.Engine
	ledger *ledger.Ledger
	w      *syncWriter

	// ParamsFile is recorded in the ledger when set.
	ParamsFile string

	now   func() time.Time
	newID func() string
}

// New returns a pipeline writing progress to w. l may be nil, in which case
// nothing is recorded.
func New(cfg types.PipelineConfig, eng engine.Engine, l *ledger.Ledger, w io.Writer) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		engine: eng,
		ledger: l,
		w:      newSyncWriter(w),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Plan is the prepared input of the task graph.
type Plan struct {
	RunID     string
	RunDir    string
	StartedAt time.Time

	// Matrix is the normalized intensity matrix.
	Matrix     *matrix.Matrix
	Conditions types.SampleConditions
	Contrasts  []types.ResolvedContrast
	Artifacts  []types.ContrastArtifact

	// Normalization holds the before and after distribution summaries.
	Normalization *normalize.Result
}

// Prepare loads and validates the inputs, normalizes the matrix and exports
// the engine inputs of every contrast. Any error here aborts the run before
// per-contrast work starts.
func (p *Pipeline) Prepare(ctx context.Context) (_ *Plan, err error) {
	plan := &Plan{RunID: p.newID(), StartedAt: p.now()}
	plan.RunDir = filepath.Join(p.cfg.OutputDir, plan.RunID)
	if err := os.MkdirAll(plan.RunDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}
	fmt.Fprintf(p.w, "run:     %s\n", plan.RunID)

	if p.ledger != nil {
		if err := p.ledger.StartRun(ctx, ledger.Run{
			ID:         plan.RunID,
			StartedAt:  plan.StartedAt,
			OutputDir:  plan.RunDir,
			ParamsFile: p.ParamsFile,
		}); err != nil {
			return nil, err
		}
		defer func() {
			if err != nil {
				p.finishRun(ctx, plan.RunID, ledger.RunFailed)
			}
		}()
	}

	in := p.cfg.Input
	counts, err := matrix.Load(in.CountsFile, in.CountsSheet, in.IndexCol)
	if err != nil {
		return nil, fmt.Errorf("loading intensity matrix: %w", err)
	}
	sc, err := metadata.Load(in)
	if err != nil {
		return nil, fmt.Errorf("loading metadata: %w", err)
	}
	if err := metadata.Validate(counts.Samples, sc); err != nil {
		return nil, err
	}
	genes, samples := counts.Dims()
	fmt.Fprintf(p.w, "loaded:  %d genes, %d samples, %d conditions\n", genes, samples, len(sc.Conditions))
	plan.Conditions = sc

	norm, err := normalize.Run(counts, p.cfg.Preprocess.NormMethod)
	if err != nil {
		return nil, fmt.Errorf("normalizing: %w", err)
	}
	if err := writeNormalization(plan.RunDir, norm); err != nil {
		return nil, err
	}
	fmt.Fprintf(p.w, "normalized: %s\n", p.cfg.Preprocess.NormMethod)
	plan.Matrix = norm.Matrix
	plan.Normalization = norm

	resolved, err := contrast.Build(p.cfg.Preprocess.Contrasts, sc)
	if err != nil {
		return nil, err
	}
	plan.Contrasts = resolved

	artifacts, err := contrast.Export(norm.Matrix, resolved, contrast.Options{
		Dir:          runPath(plan.RunDir, limmaInputsDir),
		GeneFile:     p.cfg.Preprocess.GeneInputFile,
		MissingGenes: p.cfg.Preprocess.MissingGenes,
	}, p.w)
	if err != nil {
		return nil, err
	}
	plan.Artifacts = artifacts

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return plan, nil
}

func writeNormalization(runDir string, norm *normalize.Result) error {
	dir := runPath(runDir, normalizationDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating normalization directory: %w", err)
	}
	for name, t := range map[string]*matrix.Table{
		"before.csv": normalize.SummaryTable(norm.Before),
		"after.csv":  normalize.SummaryTable(norm.After),
	} {
		if err := matrix.WriteCSVTable(filepath.Join(dir, name), t); err != nil {
			return err
		}
	}
	return norm.Matrix.WriteCSV(filepath.Join(dir, "normalized.csv"))
}

func (p *Pipeline) finishRun(ctx context.Context, id, status string) {
	if p.ledger == nil {
		return
	}
	if err := p.ledger.FinishRun(context.WithoutCancel(ctx), id, status, p.now()); err != nil {
		fmt.Fprintf(p.w, "ledger:  %v\n", err)
	}
}

// Run prepares and executes one run. Task failures do not make Run fail;
// they are counted in the result. The error reports precondition failures
// and executor faults.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	plan, err := p.Prepare(ctx)
	if err != nil {
		return nil, err
	}
	return p.Execute(ctx, plan)
}
