// Package robust implements median/MAD based outlier clipping and standardization.
package robust

import (
	"math"
	"sort"
)

const (
	// MADScale makes MAD a consistent estimator of the standard deviation for normal data.
	MADScale = 1.4826
	// MADFloor replaces a zero MAD in Standardize.
	MADFloor = 1e-6
)

// Median returns the median of values (0 for an empty slice). The input is not modified.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// MAD returns the median and the median absolute deviation around it.
func MAD(values []float64) (median, mad float64) {
	median = Median(values)
	dev := make([]float64, len(values))
	for i, v := range values {
		dev[i] = math.Abs(v - median)
	}
	return median, Median(dev)
}

// ClipOutliers clips every value to median ± n*1.4826*MAD.
func ClipOutliers(values []float64, n float64) []float64 {
	m, d := MAD(values)
	bound := n * MADScale * d

	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Max(m-bound, math.Min(m+bound, v))
	}
	return out
}

// Standardize returns robust z-scores (x - median) / (1.4826 * MAD), flooring MAD at MADFloor.
func Standardize(values []float64) []float64 {
	m, d := MAD(values)
	if d == 0 {
		d = MADFloor
	}
	scale := MADScale * d

	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - m) / scale
	}
	return out
}

// ClipAndStandardize is the scoring pipeline applied to each factor column.
func ClipAndStandardize(values []float64, n float64) []float64 {
	return Standardize(ClipOutliers(values, n))
}
