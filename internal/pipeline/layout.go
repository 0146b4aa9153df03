// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"io"
	"path/filepath"
	"sync"
)

// Run-level directories under <output_dir>/<run id>.
const (
	normalizationDir = "normalization"
	pcaDir           = "pca"
	limmaInputsDir   = "limma_inputs"
)

// Per-contrast directories under <output_dir>/<run id>/<contrast>.
const (
	limmaOutputsDir = "limma_outputs"
	limmaSigDir     = "limma_sig_results"
	heatmapDir      = "heatmap"
	volcanoDir      = "volcano"
	enrichmentDir   = "enrichment"
	keggFixedDir    = "kegg_fixed"
)

const reportFile = "report.md"

// Report sections, in rendering order.
const (
	secPrimary    = "Primary analysis"
	secHeatmap    = "Heatmap"
	secVolcano    = "Volcano"
	secEnrichment = "Enrichment"
	secKegg       = "KEGG fix-up"
)

var reportSections = []string{secPrimary, secHeatmap, secVolcano, secEnrichment, secKegg}

// Branch names of the per-contrast task graph.
const (
	branchPrimary    = "primary"
	branchHeatmap    = "heatmap"
	branchVolcano    = "volcano"
	branchEnrichment = "enrichment"
	branchKegg       = "kegg_fixup"
	branchJoin       = "join"
	branchPCA        = "pca"
)

func sectionFor(branch string) string {
	switch branch {
	case branchHeatmap:
		return secHeatmap
	case branchVolcano:
		return secVolcano
	case branchEnrichment:
		return secEnrichment
	case branchKegg:
		return secKegg
	default:
		return secPrimary
	}
}

func runPath(runDir string, parts ...string) string {
	return filepath.Join(append([]string{runDir}, parts...)...)
}

// syncWriter serializes progress lines from concurrent branches.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newSyncWriter(w io.Writer) *syncWriter {
	if sw, ok := w.(*syncWriter); ok {
		return sw
	}
	return &syncWriter{w: w}
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
