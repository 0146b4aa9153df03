// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Ontology is the annotation source of an enrichment record.
type Ontology string

const (
	OntologyBP   Ontology = "BP"
	OntologyCC   Ontology = "CC"
	OntologyMF   Ontology = "MF"
	OntologyKEGG Ontology = "KEGG"
	OntologyNone Ontology = "None"
)

// ResultKind is the kind of artifact an enrichment record points at. The
// values are the strings the enrichment engine emits.
type ResultKind string

const (
	// KindStatisticalResult is a per-ontology enrichment table.
	KindStatisticalResult ResultKind = "enrichResult"
	// KindComparisonResult is an up/down comparison table.
	KindComparisonResult ResultKind = "compareResult"
	KindPlot             ResultKind = "plot"
	// KindGeneIDs is the SYMBOL/ENTREZID lookup table.
	KindGeneIDs ResultKind = "geneIds"
)

// EnrichmentRecord is one structured line of enrichment engine output.
type EnrichmentRecord struct {
	FilePath string     `json:"file_path" yaml:"file_path"`
	Ontology Ontology   `json:"ont" yaml:"ont"`
	Kind     ResultKind `json:"result_type" yaml:"result_type"`
}

// IsTable reports whether the record points at a tabular enrichment result.
func (r EnrichmentRecord) IsTable() bool {
	return r.Kind == KindStatisticalResult || r.Kind == KindComparisonResult
}

// NeedsKeggFixup reports whether the record's table carries ENTREZ ids that
// the KEGG fix-up rewrites.
func (r EnrichmentRecord) NeedsKeggFixup() bool {
	return (r.Kind == KindStatisticalResult && r.Ontology == OntologyKEGG) ||
		r.Kind == KindComparisonResult
}
