// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/alexdaiii/lfq-proteomics/pkg/types"
)

// Script names under the scripts directory.
const (
	ScriptLimma      = "limma.R"
	ScriptVolcano    = "volcano-plot.R"
	ScriptHeatmap    = "heatmap.R"
	ScriptEnrichment = "run_enrichment.R"
)

// Engine runs the per-contrast analyses.
type Engine interface {
	// RunLimma runs the primary DEG analysis. An empty outcome means the
	// engine produced no results table; a process failure is an error.
	RunLimma(ctx context.Context, req LimmaRequest) (types.AnalysisOutcome, error)

	// RunVolcano renders a volcano plot and returns the image path, or ""
	// when the engine reported no usable image.
	RunVolcano(ctx context.Context, req VolcanoRequest) (string, error)

	// RunHeatmap renders a heatmap of a DE matrix and returns the image
	// path, or "" when the engine reported no usable image.
	RunHeatmap(ctx context.Context, req HeatmapRequest) (string, error)

	// RunEnrichment runs the enrichment analyses and returns the raw stdout
	// lines for classification.
	RunEnrichment(ctx context.Context, req EnrichmentRequest) ([]string, error)
}

// LimmaRequest is the input of the primary analysis.
type LimmaRequest struct {
	Counts       string
	Metadata     string
	OutputDir    string
	SigOutputDir string
	Contrast     string
	GroupA       string
	GroupB       string
}

// VolcanoRequest is the input of the volcano plot renderer.
type VolcanoRequest struct {
	Input      string
	OutputDir  string
	Experiment string
	Volcano    types.VolcanoConfig
}

// HeatmapRequest is the input of the heatmap renderer.
type HeatmapRequest struct {
	Matrix     string
	Metadata   string
	OutputDir  string
	Experiment string
	Heatmap    types.HeatmapConfig
}

// EnrichmentRequest is the input of the enrichment analyses.
type EnrichmentRequest struct {
	Input      string
	OutputDir  string
	Experiment string
	Enrichment types.EnrichmentConfig
}

// invoker runs one engine script.
type invoker interface {
	Invoke(ctx context.Context, script string, args []Arg) ([]string, error)
}

// REngine implements Engine with Rscript.
type REngine struct {
	r invoker
}

// NewREngine returns an Engine backed by r.
func NewREngine(r *Rscript) *REngine {
	return &REngine{r: r}
}

func (e *REngine) RunLimma(ctx context.Context, req LimmaRequest) (types.AnalysisOutcome, error) {
	lines, err := e.r.Invoke(ctx, ScriptLimma, []Arg{
		{"counts", req.Counts},
		{"metadata", req.Metadata},
		{"output_dir", req.OutputDir},
		{"sig_output_dir", req.SigOutputDir},
		{"contrast_name", req.Contrast},
		{"contrast_1", req.GroupA},
		{"contrast_2", req.GroupB},
	})
	if err != nil {
		return types.AnalysisOutcome{}, err
	}
	if len(lines) == 0 {
		return types.EmptyOutcome("engine printed no result path"), nil
	}
	path := strings.TrimSpace(lines[len(lines)-1])
	if !fileExists(path) {
		return types.EmptyOutcome("result file " + path + " does not exist"), nil
	}
	return types.ResultOutcome(path), nil
}

func (e *REngine) RunVolcano(ctx context.Context, req VolcanoRequest) (string, error) {
	v := req.Volcano
	args := append(plotArgs(req.Input, req.OutputDir, req.Experiment, v.PlotConfig),
		Arg{"upregulated_color", v.UpregulatedColor},
		Arg{"downregulated_color", v.DownregulatedColor},
		Arg{"not_sig_color", v.NotSigColor},
	)
	lines, err := e.r.Invoke(ctx, ScriptVolcano, args)
	if err != nil {
		return "", err
	}
	return imagePath(lines), nil
}

func (e *REngine) RunHeatmap(ctx context.Context, req HeatmapRequest) (string, error) {
	h := req.Heatmap
	args := append(plotArgs(req.Matrix, req.OutputDir, req.Experiment, h.PlotConfig),
		Arg{"metadata", req.Metadata},
		Arg{"use_z_score", strconv.FormatBool(h.UseZScore)},
		Arg{"cluster_samples", strconv.FormatBool(h.ClusterSamples)},
		Arg{"cluster_genes", strconv.FormatBool(h.ClusterGenes)},
		Arg{"show_gene_labels", strconv.FormatBool(h.ShowGeneLabels)},
		Arg{"show_sample_labels", strconv.FormatBool(h.ShowSampleLabels)},
		Arg{"palette", strings.Join(h.Palette, ",")},
	)
	lines, err := e.r.Invoke(ctx, ScriptHeatmap, args)
	if err != nil {
		return "", err
	}
	return imagePath(lines), nil
}

func (e *REngine) RunEnrichment(ctx context.Context, req EnrichmentRequest) ([]string, error) {
	args := append(plotArgs(req.Input, req.OutputDir, req.Experiment, req.Enrichment.PlotConfig),
		Arg{"organism", req.Enrichment.Organism},
	)
	return e.r.Invoke(ctx, ScriptEnrichment, args)
}

func plotArgs(input, outputDir, experiment string, p types.PlotConfig) []Arg {
	return []Arg{
		{"input_file", input},
		{"output_dir", outputDir},
		{"experiment", experiment},
		{"gene_column", p.GeneColumn},
		{"lfc_column", p.LFCColumn},
		{"pval_column", p.PvalColumn},
		{"fc_threshold", formatFloat(p.FCThreshold)},
		{"pval_threshold", formatFloat(p.PvalThreshold)},
		{"width", formatFloat(p.Width)},
		{"height", formatFloat(p.Height)},
	}
}

// rIndexPrefix matches the "[1] " prefix R prints before a value.
var rIndexPrefix = regexp.MustCompile(`^\[\d+]\s*`)

// imagePath extracts the image path from the last stdout line. It returns ""
// unless the line names an existing .png file.
func imagePath(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	p := rIndexPrefix.ReplaceAllString(strings.TrimSpace(lines[len(lines)-1]), "")
	p = strings.Trim(p, `"`)
	if filepath.Ext(p) != ".png" || !fileExists(p) {
		return ""
	}
	return p
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
