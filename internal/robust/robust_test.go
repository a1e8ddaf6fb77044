package robust

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"odd", []float64{5, 1, 3}, 3},
		{"even", []float64{4, 1, 3, 2}, 2.5},
		{"single", []float64{7}, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Median(tt.values))
		})
	}
}

func TestMedianDoesNotMutate(t *testing.T) {
	in := []float64{3, 1, 2}
	Median(in)
	assert.Equal(t, []float64{3, 1, 2}, in)
}

func TestClipOutliers_Example(t *testing.T) {
	values := []float64{1, 2, 3, 4, 100}

	m, d := MAD(values)
	assert.Equal(t, 3.0, m)
	assert.Equal(t, 1.0, d)

	got := ClipOutliers(values, 3)
	assert.InDelta(t, 7.4478, got[4], 1e-9)
	assert.Equal(t, []float64{1, 2, 3, 4}, got[:4])
}

func TestClipOutliers_BoundHolds(t *testing.T) {
	values := []float64{-50, 0.1, 0.2, 0.3, 0.5, 0.4, 0.2, 80, 0.25, -0.1}
	n := 3.0

	m, d := MAD(values)
	bound := n * MADScale * d

	for _, v := range ClipOutliers(values, n) {
		assert.LessOrEqual(t, math.Abs(v-m), bound+1e-12)
	}
}

func TestClipOutliers_ZeroMAD(t *testing.T) {
	got := ClipOutliers([]float64{5, 5, 5, 9}, 3)
	assert.Equal(t, []float64{5, 5, 5, 5}, got)
}

func TestStandardize_SymmetricMedianZero(t *testing.T) {
	values := []float64{-3, -2, -1, 0, 1, 2, 3}
	z := Standardize(values)
	assert.InDelta(t, 0, Median(z), 1e-12)
	assert.InDelta(t, -z[0], z[6], 1e-12)
}

func TestStandardize_ZeroMADUsesFloor(t *testing.T) {
	z := Standardize([]float64{2, 2, 2, 2.000001})
	for _, v := range z {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
	assert.Equal(t, 0.0, z[0])
	assert.InDelta(t, 1e-6/(MADScale*MADFloor), z[3], 1e-6)
}

func TestClipAndStandardize_Length(t *testing.T) {
	assert.Len(t, ClipAndStandardize([]float64{1, 2, 3}, 3), 3)
	assert.Empty(t, ClipAndStandardize(nil, 3))
}
