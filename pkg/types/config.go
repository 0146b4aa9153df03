// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// InputConfig locates the imputed intensity matrix and the sample metadata.
// YAML key: imputed_data.
type InputConfig struct {
	// CountsFile is the imputed intensity matrix (.xlsx or .csv).
	CountsFile string `json:"input_file" yaml:"input_file"`

	// CountsSheet is the worksheet holding the matrix (xlsx only).
	CountsSheet string `json:"sheet_name" yaml:"sheet_name"`

	// IndexCol is the zero-based column holding gene identifiers.
	IndexCol int `json:"index_col" yaml:"index_col"`

	// MetadataFile is the sample metadata table (.xlsx or .csv).
	MetadataFile string `json:"metadata_file" yaml:"metadata_file"`

	// MetadataSheet is the worksheet holding the metadata (xlsx only).
	MetadataSheet string `json:"metadata_sheet_name" yaml:"metadata_sheet_name"`

	// MetadataIndexCol is the zero-based column holding sample identifiers.
	MetadataIndexCol int `json:"metadata_index_col" yaml:"metadata_index_col"`

	// ConditionCol names the metadata column with each sample's condition.
	ConditionCol string `json:"condition_col" yaml:"condition_col"`
}

// NormMethod selects the column-wise normalization applied after log2.
type NormMethod string

const (
	NormCenterMedian NormMethod = "center.median"
	NormStandardize  NormMethod = "standardize"
)

// MissingGenePolicy decides what happens when a requested gene subset names
// genes that are not in the intensity matrix.
type MissingGenePolicy string

const (
	MissingGenesError MissingGenePolicy = "error"
	MissingGenesDrop  MissingGenePolicy = "drop"
)

// PreprocessConfig holds normalization and contrast settings.
// YAML key: preprocess.
type PreprocessConfig struct {
	NormMethod NormMethod `json:"norm_method" yaml:"norm_method"`

	// GeneInputFile is an optional workbook of gene lists used to restrict
	// individual contrasts.
	GeneInputFile string `json:"gene_input_file,omitempty" yaml:"gene_input_file,omitempty"`

	MissingGenes MissingGenePolicy `json:"missing_genes" yaml:"missing_genes"`

	Contrasts []ContrastRequest `json:"contrasts" yaml:"contrasts"`
}

// EngineConfig configures the external R analysis engine.
// YAML key: r.
type EngineConfig struct {
	// RscriptBin is the Rscript executable.
	RscriptBin string `json:"rscript_bin" yaml:"rscript_bin"`

	// ScriptsDir holds limma.R, volcano-plot.R, heatmap.R and run_enrichment.R.
	ScriptsDir string `json:"scripts_dir" yaml:"scripts_dir"`

	// Timeout bounds a single engine invocation. Zero disables the limit.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Lint runs lintr on each script before its first use.
	Lint bool `json:"lint" yaml:"lint"`

	// IgnoredLinters lists lintr warnings that do not fail the lint pass.
	IgnoredLinters []string `json:"ignored_linters" yaml:"ignored_linters"`

	// Container runs the scripts inside an R image instead of the host
	// Rscript. Empty Image disables it.
	Container ContainerConfig `json:"container" yaml:"container"`
}

// ContainerConfig selects an image and container runtime for the engine.
type ContainerConfig struct {
	// Image is the R image, e.g. bioconductor/bioconductor_docker:RELEASE_3_20.
	Image string `json:"image" yaml:"image"`

	// Runtime is "docker" or "podman". Empty tries docker, then podman.
	Runtime string `json:"runtime" yaml:"runtime"`
}

// DEGThresholds are the significance cut-offs shared by the DEG analyses.
type DEGThresholds struct {
	// FCThreshold is the fold-change threshold (linear scale, e.g. 1.5).
	FCThreshold float64 `json:"fc_threshold" yaml:"fc_threshold"`

	// PvalThreshold is the adjusted p-value threshold.
	PvalThreshold float64 `json:"pval_threshold" yaml:"pval_threshold"`
}

// PlotConfig holds column selection and size settings for plots rendered
// from a DEG results table.
type PlotConfig struct {
	DEGThresholds `yaml:",inline"`

	// GeneColumn is the gene column of the limma table; limma leaves it blank,
	// which R reads back as "X".
	GeneColumn string  `json:"gene_column" yaml:"gene_column"`
	LFCColumn  string  `json:"lfc_column" yaml:"lfc_column"`
	PvalColumn string  `json:"pval_column" yaml:"pval_column"`
	Width      float64 `json:"width" yaml:"width"`
	Height     float64 `json:"height" yaml:"height"`
}

// VolcanoConfig holds volcano plot settings. YAML key: volcano.
type VolcanoConfig struct {
	PlotConfig `yaml:",inline"`

	UpregulatedColor   string `json:"upregulated_color" yaml:"upregulated_color"`
	DownregulatedColor string `json:"downregulated_color" yaml:"downregulated_color"`
	NotSigColor        string `json:"not_sig_color" yaml:"not_sig_color"`
}

// HeatmapConfig holds heatmap settings. YAML key: heatmap.
type HeatmapConfig struct {
	PlotConfig `yaml:",inline"`

	UseZScore        bool     `json:"use_z_score" yaml:"use_z_score"`
	ClusterSamples   bool     `json:"cluster_samples" yaml:"cluster_samples"`
	ClusterGenes     bool     `json:"cluster_genes" yaml:"cluster_genes"`
	ShowGeneLabels   bool     `json:"show_gene_labels" yaml:"show_gene_labels"`
	ShowSampleLabels bool     `json:"show_sample_labels" yaml:"show_sample_labels"`
	Palette          []string `json:"palette" yaml:"palette"`
}

// EnrichmentConfig holds enrichment settings. YAML key: enrich.
type EnrichmentConfig struct {
	PlotConfig `yaml:",inline"`

	// Organism is the KEGG/OrgDb organism code: "mmu" or "hsa".
	Organism string `json:"organism" yaml:"organism"`
}

// PipelineConfig groups every component configuration for one run.
type PipelineConfig struct {
	// OutputDir is the base directory; each run writes to OutputDir/<run id>.
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// Concurrency bounds the number of task-graph nodes running at once.
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	Input      InputConfig      `json:"imputed_data" yaml:"imputed_data"`
	Preprocess PreprocessConfig `json:"preprocess" yaml:"preprocess"`
	Engine     EngineConfig     `json:"r" yaml:"r"`
	Heatmap    HeatmapConfig    `json:"heatmap" yaml:"heatmap"`
	Volcano    VolcanoConfig    `json:"volcano" yaml:"volcano"`
	Enrichment EnrichmentConfig `json:"enrich" yaml:"enrich"`
}
