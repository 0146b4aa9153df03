// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// SampleConditions maps conditions to their samples and back.
type SampleConditions struct {
	// ConditionToSamples lists each condition's samples in metadata row order.
	ConditionToSamples map[string][]string `json:"condition_to_sample" yaml:"condition_to_sample"`

	// SampleToCondition is the inverse mapping.
	SampleToCondition map[string]string `json:"sample_to_condition" yaml:"sample_to_condition"`

	// Conditions lists the condition labels in sorted order.
	Conditions []string `json:"conditions" yaml:"conditions"`
}

// ContrastRequest is a user-declared comparison of two conditions. The first
// condition is group A, the second group B.
type ContrastRequest struct {
	Conditions [2]string `json:"contrast" yaml:"contrast"`

	// GenesSheet and GeneListCol name the worksheet and column of the gene
	// input file used to restrict this contrast. Both must be set, together
	// with the gene input file, for subsetting to apply.
	GenesSheet  string `json:"genes_sheet,omitempty" yaml:"genes_sheet,omitempty"`
	GeneListCol string `json:"gene_list_col,omitempty" yaml:"gene_list_col,omitempty"`
}

// GroupA returns the first condition label.
func (r ContrastRequest) GroupA() string { return r.Conditions[0] }

// GroupB returns the second condition label.
func (r ContrastRequest) GroupB() string { return r.Conditions[1] }

// Name returns the "{a}_vs_{b}" stem used for files and directories.
func (r ContrastRequest) Name() string {
	return r.Conditions[0] + "_vs_" + r.Conditions[1]
}

// ResolvedContrast is a ContrastRequest with the sample columns of each side.
type ResolvedContrast struct {
	ContrastRequest `yaml:",inline"`

	GroupASamples []string `json:"group_a_samples" yaml:"group_a_samples"`
	GroupBSamples []string `json:"group_b_samples" yaml:"group_b_samples"`
}

// Columns returns group A samples followed by group B samples.
func (c ResolvedContrast) Columns() []string {
	cols := make([]string, 0, len(c.GroupASamples)+len(c.GroupBSamples))
	cols = append(cols, c.GroupASamples...)
	return append(cols, c.GroupBSamples...)
}

// ContrastArtifact is the exported engine input for one contrast.
type ContrastArtifact struct {
	// Name is the unique stem of the exported files, e.g. MUT_vs_WT or
	// MUT_vs_WT_2 for a repeated contrast.
	Name         string `json:"name" yaml:"name"`
	GroupA       string `json:"group_a" yaml:"group_a"`
	GroupB       string `json:"group_b" yaml:"group_b"`
	CountsFile   string `json:"counts_file" yaml:"counts_file"`
	MetadataFile string `json:"metadata_file" yaml:"metadata_file"`
	Genes        int    `json:"genes" yaml:"genes"`
	Samples      int    `json:"samples" yaml:"samples"`
}

// ContrastState tracks a contrast through the orchestrator.
type ContrastState string

const (
	ContrastExported      ContrastState = "EXPORTED"
	ContrastPrimaryRun    ContrastState = "PRIMARY_RUN"
	ContrastPrimaryOK     ContrastState = "PRIMARY_OK"
	ContrastPrimaryEmpty  ContrastState = "PRIMARY_EMPTY"
	ContrastPrimaryFailed ContrastState = "PRIMARY_FAILED"
	ContrastFannedOut     ContrastState = "FANNED_OUT"
	ContrastJoined        ContrastState = "JOINED"
)
