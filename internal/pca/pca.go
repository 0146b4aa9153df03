// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pca projects the samples of a normalized intensity matrix onto
// their principal components.
package pca

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/alexdaiii/lfq-proteomics/internal/matrix"
	"github.com/alexdaiii/lfq-proteomics/pkg/types"
)

// Point is one sample in PC1/PC2 space.
type Point struct {
	Sample    string
	Condition string
	PC1       float64
	PC2       float64
}

// Result holds the sample projection and the explained variance ratio of
// every component.
type Result struct {
	Points    []Point
	Explained []float64
}

// PC12 returns the fraction of variance explained by the first two components.
func (r *Result) PC12() float64 {
	var v float64
	for i := 0; i < len(r.Explained) && i < 2; i++ {
		v += r.Explained[i]
	}
	return v
}

// Compute treats samples as observations and genes as variables. At least
// two samples are needed.
func Compute(m *matrix.Matrix, sc types.SampleConditions) (*Result, error) {
	genes, samples := m.Dims()
	if samples < 2 || genes < 1 {
		return nil, fmt.Errorf("pca: need at least 2 samples and 1 gene, have %d and %d", samples, genes)
	}

	// Rows are samples; columns are genes, centered on the gene mean.
	data := mat.NewDense(samples, genes, nil)
	for i := 0; i < genes; i++ {
		mean := stat.Mean(m.Values[i], nil)
		for j := 0; j < samples; j++ {
			data.Set(j, i, m.Values[i][j]-mean)
		}
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return nil, fmt.Errorf("pca: decomposition failed")
	}
	vars := pc.VarsTo(nil)
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	k := len(vars)
	var proj mat.Dense
	proj.Mul(data, &vecs)

	var total float64
	for _, v := range vars {
		total += v
	}
	res := &Result{Explained: make([]float64, k)}
	for i, v := range vars {
		if total > 0 {
			res.Explained[i] = v / total
		}
	}
	for j, s := range m.Samples {
		p := Point{Sample: s, Condition: sc.SampleToCondition[s], PC1: proj.At(j, 0)}
		if k > 1 {
			p.PC2 = proj.At(j, 1)
		}
		res.Points = append(res.Points, p)
	}
	return res, nil
}

// PointsTable renders the projection as Sample, Condition, PC1, PC2.
func (r *Result) PointsTable() *matrix.Table {
	t := &matrix.Table{Header: []string{"Sample", "Condition", "PC1", "PC2"}}
	for _, p := range r.Points {
		t.Rows = append(t.Rows, []string{p.Sample, p.Condition, matrix.FormatFloat(p.PC1), matrix.FormatFloat(p.PC2)})
	}
	return t
}

// ScreeTable renders the explained variance ratio per component.
func (r *Result) ScreeTable() *matrix.Table {
	t := &matrix.Table{Header: []string{"Component", "ExplainedVariance"}}
	for i, v := range r.Explained {
		t.Rows = append(t.Rows, []string{fmt.Sprintf("PC%d", i+1), matrix.FormatFloat(v)})
	}
	return t
}
