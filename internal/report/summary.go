// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/alexdaiii/lfq-proteomics/pkg/types"
)

// SummaryFile is the run summary name under the run directory.
const SummaryFile = "summary.yaml"

// Summary is the machine-readable record of one run.
type Summary struct {
	RunID      string            `yaml:"run_id"`
	StartedAt  time.Time         `yaml:"started_at"`
	FinishedAt time.Time         `yaml:"finished_at"`
	RunDir     string            `yaml:"run_dir"`
	NormMethod types.NormMethod  `yaml:"norm_method"`
	Genes      int               `yaml:"genes"`
	Samples    int               `yaml:"samples"`
	PCA        *PCASummary       `yaml:"pca,omitempty"`
	Contrasts  []ContrastSummary `yaml:"contrasts"`
}

// PCASummary records the variance explained by the leading components.
type PCASummary struct {
	PC1  float64 `yaml:"pc1"`
	PC2  float64 `yaml:"pc2"`
	File string  `yaml:"file"`
}

// ContrastSummary records the end state of one contrast unit.
type ContrastSummary struct {
	Name     string                 `yaml:"name"`
	Dir      string                 `yaml:"dir"`
	State    types.ContrastState    `yaml:"state"`
	Outcome  types.AnalysisOutcome  `yaml:"outcome"`
	Artifact types.ContrastArtifact `yaml:"artifact"`
	Tasks    map[string]string      `yaml:"tasks"`
	Report   string                 `yaml:"report"`
}

// WriteSummary writes s as YAML to path.
func WriteSummary(path string, s *Summary) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

// ReadSummary reads a summary written by WriteSummary.
func ReadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading summary: %w", err)
	}
	var s Summary
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing summary %s: %w", path, err)
	}
	return &s, nil
}
