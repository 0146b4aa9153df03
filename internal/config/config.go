// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config loads the pipeline parameters. Values merge in a fixed
// order: Defaults, then the params file, then Overrides from flags and
// environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/alexdaiii/lfq-proteomics/pkg/types"
)

// Defaults returns the configuration used when a key is absent from the
// params file.
func Defaults() types.PipelineConfig {
	thresholds := types.DEGThresholds{FCThreshold: 1.5, PvalThreshold: 0.05}
	plot := func(w, h float64) types.PlotConfig {
		return types.PlotConfig{
			DEGThresholds: thresholds,
			GeneColumn:    "X",
			LFCColumn:     "logFC",
			PvalColumn:    "adj.P.Val",
			Width:         w,
			Height:        h,
		}
	}
	return types.PipelineConfig{
		OutputDir:   "output",
		Concurrency: 4,
		Input: types.InputConfig{
			CountsSheet:      "Sheet1",
			MetadataSheet:    "Sheet1",
			ConditionCol:     "Condition",
			MetadataIndexCol: 0,
		},
		Preprocess: types.PreprocessConfig{
			NormMethod:   types.NormCenterMedian,
			MissingGenes: types.MissingGenesError,
		},
		Engine: types.EngineConfig{
			RscriptBin:     "Rscript",
			ScriptsDir:     "R",
			Timeout:        30 * time.Minute,
			IgnoredLinters: []string{"object_usage_linter"},
		},
		Heatmap: types.HeatmapConfig{
			PlotConfig:       plot(8, 10),
			UseZScore:        true,
			ClusterSamples:   true,
			ClusterGenes:     true,
			ShowSampleLabels: true,
			Palette:          []string{"navy", "white", "firebrick3"},
		},
		Volcano: types.VolcanoConfig{
			PlotConfig:         plot(6, 6),
			UpregulatedColor:   "red",
			DownregulatedColor: "royalblue",
			NotSigColor:        "black",
		},
		Enrichment: types.EnrichmentConfig{
			PlotConfig: plot(6, 8),
			Organism:   "mmu",
		},
	}
}

// Overrides are per-call values from flags or environment. Zero values
// leave the loaded configuration unchanged.
type Overrides struct {
	OutputDir   string
	Concurrency int
	RscriptBin  string
	ScriptsDir  string
	Timeout     time.Duration
	Lint        *bool
}

// Load reads the params file at path onto Defaults, applies o, resolves
// relative input paths against the params file's directory and validates
// the result.
func Load(path string, o Overrides) (types.PipelineConfig, error) {
	cfg, err := read(path, o)
	if err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// OutputDir returns the output directory a run with the params file at path
// writes to. A non-empty override wins, as with --output-dir on run. The
// rest of the file is not validated.
func OutputDir(path, override string) (string, error) {
	cfg, err := read(path, Overrides{OutputDir: override})
	if err != nil {
		return "", err
	}
	return cfg.OutputDir, nil
}

func read(path string, o Overrides) (types.PipelineConfig, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading params file: %w", err)
	}
	if err := decode(bytes.NewReader(data), &cfg); err != nil {
		return cfg, fmt.Errorf("parsing params file %s: %w", path, err)
	}
	apply(&cfg, o)
	resolve(&cfg, filepath.Dir(path))
	return cfg, nil
}

// decode rejects unknown keys so a misspelled option fails loudly.
func decode(r io.Reader, cfg *types.PipelineConfig) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func apply(cfg *types.PipelineConfig, o Overrides) {
	if o.OutputDir != "" {
		cfg.OutputDir = o.OutputDir
	}
	if o.Concurrency > 0 {
		cfg.Concurrency = o.Concurrency
	}
	if o.RscriptBin != "" {
		cfg.Engine.RscriptBin = o.RscriptBin
	}
	if o.ScriptsDir != "" {
		cfg.Engine.ScriptsDir = o.ScriptsDir
	}
	if o.Timeout > 0 {
		cfg.Engine.Timeout = o.Timeout
	}
	if o.Lint != nil {
		cfg.Engine.Lint = *o.Lint
	}
}

func resolve(cfg *types.PipelineConfig, base string) {
	for _, p := range []*string{
		&cfg.OutputDir,
		&cfg.Input.CountsFile,
		&cfg.Input.MetadataFile,
		&cfg.Preprocess.GeneInputFile,
		&cfg.Engine.ScriptsDir,
	} {
		if *p == "" {
			continue
		}
		if !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
		// Container mounts bind host paths, which must be absolute.
		if abs, err := filepath.Abs(*p); err == nil {
			*p = abs
		}
	}
}

// Validate reports every configuration problem at once. The returned error
// wraps types.ErrValidation.
func Validate(cfg types.PipelineConfig) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if cfg.OutputDir == "" {
		add("output_dir is required")
	}
	if cfg.Concurrency < 1 {
		add("concurrency must be at least 1, got %d", cfg.Concurrency)
	}
	if cfg.Input.CountsFile == "" {
		add("imputed_data.input_file is required")
	}
	if cfg.Input.MetadataFile == "" {
		add("imputed_data.metadata_file is required")
	}
	if cfg.Input.ConditionCol == "" {
		add("imputed_data.condition_col is required")
	}
	if cfg.Input.IndexCol < 0 || cfg.Input.MetadataIndexCol < 0 {
		add("index columns must not be negative")
	}

	switch cfg.Preprocess.NormMethod {
	case types.NormCenterMedian, types.NormStandardize:
	default:
		add("preprocess.norm_method %q: use %s or %s", cfg.Preprocess.NormMethod, types.NormCenterMedian, types.NormStandardize)
	}
	switch cfg.Preprocess.MissingGenes {
	case types.MissingGenesError, types.MissingGenesDrop:
	default:
		add("preprocess.missing_genes %q: use %s or %s", cfg.Preprocess.MissingGenes, types.MissingGenesError, types.MissingGenesDrop)
	}
	if len(cfg.Preprocess.Contrasts) == 0 {
		add("preprocess.contrasts: at least one contrast is required")
	}
	for i, c := range cfg.Preprocess.Contrasts {
		if strings.TrimSpace(c.GroupA()) == "" || strings.TrimSpace(c.GroupB()) == "" {
			add("preprocess.contrasts[%d]: both conditions are required", i)
		}
		if c.GroupA() == c.GroupB() && c.GroupA() != "" {
			add("preprocess.contrasts[%d]: %s compared with itself", i, c.GroupA())
		}
	}

	if cfg.Engine.RscriptBin == "" {
		add("r.rscript_bin is required")
	}
	if cfg.Engine.ScriptsDir == "" {
		add("r.scripts_dir is required")
	}
	if cfg.Engine.Timeout < 0 {
		add("r.timeout must not be negative")
	}
	switch cfg.Engine.Container.Runtime {
	case "", "docker", "podman":
	default:
		add("r.container.runtime %q: use docker or podman", cfg.Engine.Container.Runtime)
	}

	for _, pc := range []struct {
		name string
		plot types.PlotConfig
	}{
		{"heatmap", cfg.Heatmap.PlotConfig},
		{"volcano", cfg.Volcano.PlotConfig},
		{"enrich", cfg.Enrichment.PlotConfig},
	} {
		name, p := pc.name, pc.plot
		if p.FCThreshold <= 0 {
			add("%s.fc_threshold must be positive", name)
		}
		if p.PvalThreshold <= 0 || p.PvalThreshold > 1 {
			add("%s.pval_threshold must be in (0, 1]", name)
		}
		if p.Width <= 0 || p.Height <= 0 {
			add("%s.width and %s.height must be positive", name, name)
		}
	}

	switch cfg.Enrichment.Organism {
	case "mmu", "hsa":
	default:
		add("enrich.organism %q: use mmu or hsa", cfg.Enrichment.Organism)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", types.ErrValidation, errors.Join(errs...))
}
