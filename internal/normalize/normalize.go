// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize log-transforms an intensity matrix and centers or scales
// each sample column. It also summarizes per-sample distributions so the
// effect of normalization can be inspected.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"github.com/alexdaiii/lfq-proteomics/internal/matrix"
	"github.com/alexdaiii/lfq-proteomics/pkg/types"
)

// Apply returns log2(m) normalized column-wise by method. m is not modified.
// Every intensity must be positive.
func Apply(m *matrix.Matrix, method types.NormMethod) (*matrix.Matrix, error) {
	genes, samples := m.Dims()
	if genes == 0 {
		return nil, fmt.Errorf("normalizing: matrix has no genes")
	}

	out := make([][]float64, genes)
	for i, row := range m.Values {
		out[i] = make([]float64, samples)
		for j, v := range row {
			if v <= 0 {
				return nil, fmt.Errorf("normalizing: non-positive intensity %v for %q in sample %q", v, m.Genes[i], m.Samples[j])
			}
			out[i][j] = math.Log2(v)
		}
	}
	logged := matrix.New(m.IndexName, append([]string(nil), m.Genes...), append([]string(nil), m.Samples...), out)

	for j := 0; j < samples; j++ {
		col := logged.Column(j)
		var center, scale float64
		var err error
		switch method {
		case types.NormCenterMedian:
			center, err = stats.Median(col)
			scale = 1
		case types.NormStandardize:
			if center, err = stats.Mean(col); err == nil {
				scale, err = stats.StandardDeviationPopulation(col)
			}
			if err == nil && scale == 0 {
				err = errors.New("zero variance")
			}
		default:
			return nil, fmt.Errorf("normalizing: unknown method %q", method)
		}
		if err != nil {
			return nil, fmt.Errorf("normalizing sample %q: %w", m.Samples[j], err)
		}
		for i := range out {
			out[i][j] = (out[i][j] - center) / scale
		}
	}
	return logged, nil
}

// Summary describes the intensity distribution of one sample.
type Summary struct {
	Sample string
	Min    float64
	Q25    float64
	Median float64
	Mean   float64
	Q75    float64
	Max    float64
}

// Summarize returns one Summary per sample column, in column order.
func Summarize(m *matrix.Matrix) ([]Summary, error) {
	out := make([]Summary, 0, len(m.Samples))
	for j, s := range m.Samples {
		col := m.Column(j)
		if len(col) == 0 {
			return nil, fmt.Errorf("summarizing sample %q: no values", s)
		}
		sum := Summary{Sample: s}
		var err error
		if sum.Min, err = stats.Min(col); err != nil {
			return nil, fmt.Errorf("summarizing sample %q: %w", s, err)
		}
		if sum.Max, err = stats.Max(col); err != nil {
			return nil, fmt.Errorf("summarizing sample %q: %w", s, err)
		}
		if sum.Mean, err = stats.Mean(col); err != nil {
			return nil, fmt.Errorf("summarizing sample %q: %w", s, err)
		}
		if sum.Median, err = stats.Median(col); err != nil {
			return nil, fmt.Errorf("summarizing sample %q: %w", s, err)
		}
		sort.Float64s(col)
		sum.Q25 = stat.Quantile(0.25, stat.Empirical, col, nil)
		sum.Q75 = stat.Quantile(0.75, stat.Empirical, col, nil)
		out = append(out, sum)
	}
	return out, nil
}

// SummaryTable renders summaries with one row per sample.
func SummaryTable(summaries []Summary) *matrix.Table {
	t := &matrix.Table{Header: []string{"Sample", "Min", "Q25", "Median", "Mean", "Q75", "Max"}}
	for _, s := range summaries {
		t.Rows = append(t.Rows, []string{
			s.Sample,
			matrix.FormatFloat(s.Min),
			matrix.FormatFloat(s.Q25),
			matrix.FormatFloat(s.Median),
			matrix.FormatFloat(s.Mean),
			matrix.FormatFloat(s.Q75),
			matrix.FormatFloat(s.Max),
		})
	}
	return t
}

// Result is the normalized matrix with distribution summaries taken before
// and after normalization.
type Result struct {
	Matrix *matrix.Matrix
	Before []Summary
	After  []Summary
}

// Run summarizes m, normalizes it, and summarizes the result.
func Run(m *matrix.Matrix, method types.NormMethod) (*Result, error) {
	before, err := Summarize(m)
	if err != nil {
		return nil, err
	}
	norm, err := Apply(m, method)
	if err != nil {
		return nil, err
	}
	after, err := Summarize(norm)
	if err != nil {
		return nil, err
	}
	return &Result{Matrix: norm, Before: before, After: after}, nil
}
