// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexdaiii/lfq-proteomics/pkg/types"
)

const params = `output_dir: out
imputed_data:
  input_file: data/imputed.xlsx
  metadata_file: /abs/metadata.csv
  condition_col: Group
preprocess:
  norm_method: standardize
  contrasts:
    - contrast: [MUT, WT]
    - contrast: [KO, WT]
      genes_sheet: Sheet2
      gene_list_col: genes
r:
  timeout: 5m
volcano:
  fc_threshold: 2
enrich:
  organism: hsa
`

func writeParams(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMergesOntoDefaults(t *testing.T) {
	path := writeParams(t, params)
	dir := filepath.Dir(path)

	cfg, err := Load(path, Overrides{})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "out"), cfg.OutputDir)
	assert.Equal(t, filepath.Join(dir, "data/imputed.xlsx"), cfg.Input.CountsFile)
	assert.Equal(t, "/abs/metadata.csv", cfg.Input.MetadataFile)
	assert.Equal(t, "Group", cfg.Input.ConditionCol)
	assert.Equal(t, types.NormStandardize, cfg.Preprocess.NormMethod)
	assert.Equal(t, types.MissingGenesError, cfg.Preprocess.MissingGenes)
	require.Len(t, cfg.Preprocess.Contrasts, 2)
	assert.Equal(t, "KO_vs_WT", cfg.Preprocess.Contrasts[1].Name())
	assert.Equal(t, "genes", cfg.Preprocess.Contrasts[1].GeneListCol)
	assert.Equal(t, 5*time.Minute, cfg.Engine.Timeout)

	// Untouched keys keep their defaults.
	assert.Equal(t, 2.0, cfg.Volcano.FCThreshold)
	assert.Equal(t, 0.05, cfg.Volcano.PvalThreshold)
	assert.Equal(t, "royalblue", cfg.Volcano.DownregulatedColor)
	assert.Equal(t, 1.5, cfg.Heatmap.FCThreshold)
	assert.Equal(t, "hsa", cfg.Enrichment.Organism)
	assert.Equal(t, "X", cfg.Enrichment.GeneColumn)
}

func TestLoadOverrides(t *testing.T) {
	lint := true
	cfg, err := Load(writeParams(t, params), Overrides{
		OutputDir:   "/tmp/elsewhere",
		Concurrency: 8,
		RscriptBin:  "/opt/conda/bin/Rscript",
		Timeout:     time.Hour,
		Lint:        &lint,
	})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/elsewhere", cfg.OutputDir)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, "/opt/conda/bin/Rscript", cfg.Engine.RscriptBin)
	assert.Equal(t, time.Hour, cfg.Engine.Timeout)
	assert.True(t, cfg.Engine.Lint)
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	_, err := Load(writeParams(t, params+"volcanoe:\n  width: 3\n"), Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "volcanoe")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), Overrides{})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Concurrency = 0
	cfg.Preprocess.NormMethod = "quantile"
	cfg.Preprocess.Contrasts = []types.ContrastRequest{{Conditions: [2]string{"WT", "WT"}}}
	cfg.Enrichment.Organism = "rno"
	cfg.Engine.Container.Runtime = "lxc"

	err := Validate(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
	for _, want := range []string{
		"concurrency",
		"input_file is required",
		"metadata_file is required",
		`norm_method "quantile"`,
		"WT compared with itself",
		`organism "rno"`,
		`runtime "lxc"`,
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestOutputDirMatchesRun(t *testing.T) {
	path := writeParams(t, "output_dir: results\n")
	dir := filepath.Dir(path)

	tests := []struct {
		name     string
		body     string
		override string
		want     string
	}{
		{name: "relative to params file", body: "output_dir: results\n", want: filepath.Join(dir, "results")},
		{name: "default", body: "", want: filepath.Join(dir, "output")},
		{name: "absolute override", body: "output_dir: results\n", override: "/srv/lfq", want: "/srv/lfq"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			got, err := OutputDir(path, tt.override)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	// The params file has no inputs, which Load would reject.
	_, err := Load(path, Overrides{})
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestDefaultsNeedOnlyInputs(t *testing.T) {
	cfg := Defaults()
	cfg.Input.CountsFile = "counts.csv"
	cfg.Input.MetadataFile = "meta.csv"
	cfg.Preprocess.Contrasts = []types.ContrastRequest{{Conditions: [2]string{"MUT", "WT"}}}
	assert.NoError(t, Validate(cfg))
}
