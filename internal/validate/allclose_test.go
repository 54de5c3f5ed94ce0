package validate

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/dwconv/internal/tensor"
)

func vector(t *testing.T, values ...float64) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromSlice(values, tensor.Shape{len(values)}, tensor.CPU)
	require.NoError(t, err)
	return r
}

func TestAllClose(t *testing.T) {
	tests := []struct {
		name       string
		actual     []float64
		desired    []float64
		rtol, atol float64
		mismatched int
	}{
		{"equal", []float64{1, 2, 3}, []float64{1, 2, 3}, 0, 0, 0},
		{"within rtol", []float64{1.00001, 2}, []float64{1, 2}, 1e-4, 0, 0},
		{"outside rtol", []float64{1.001, 2}, []float64{1, 2}, 1e-4, 0, 1},
		{"atol on zero", []float64{1e-9, 0}, []float64{0, 0}, 1e-4, 1e-8, 0},
		{"rtol alone on zero", []float64{1e-9, 0}, []float64{0, 0}, 1e-4, 0, 1},
		{"nan pair", []float64{math.NaN(), 1}, []float64{math.NaN(), 1}, 1e-5, 0, 0},
		{"nan vs value", []float64{math.NaN(), 1}, []float64{0.5, 1}, 1e-5, 0, 1},
		{"all off", []float64{2, 4}, []float64{1, 2}, 1e-5, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AllClose(vector(t, tt.actual...), vector(t, tt.desired...), tt.rtol, tt.atol)
			if tt.mismatched == 0 {
				assert.NoError(t, err)
				return
			}
			var mismatch *MismatchError
			require.True(t, errors.As(err, &mismatch))
			assert.Equal(t, tt.mismatched, mismatch.Mismatched)
			assert.Equal(t, len(tt.actual), mismatch.Total)
		})
	}
}

func TestAllCloseReportsWorstElement(t *testing.T) {
	err := AllClose(vector(t, 1, 2.5, 3.1), vector(t, 1, 2, 3), 1e-5, 0)

	var mismatch *MismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, 2, mismatch.Mismatched)
	assert.Equal(t, 1, mismatch.WorstIndex)
	assert.Equal(t, 2.5, mismatch.Actual)
	assert.Equal(t, 2.0, mismatch.Desired)
	assert.InDelta(t, 0.5, mismatch.MaxAbsErr, 1e-12)
	assert.InDelta(t, 0.25, mismatch.MaxRelErr, 1e-12)
	assert.Contains(t, err.Error(), "mismatched elements 2 / 3")
	assert.Contains(t, err.Error(), "rtol=1e-05")
}

func TestAllCloseShapeMismatch(t *testing.T) {
	err := AllClose(vector(t, 1, 2), vector(t, 1, 2, 3), 1e-5, 0)
	require.Error(t, err)
	var mismatch *MismatchError
	assert.False(t, errors.As(err, &mismatch))
}

func TestAllCloseMixedDTypes(t *testing.T) {
	a, err := tensor.FromSlice([]float32{1, 2, 3}, tensor.Shape{3}, tensor.CPU)
	require.NoError(t, err)
	assert.NoError(t, AllClose(a, vector(t, 1, 2, 3), 1e-7, 0))
}

func TestDiff(t *testing.T) {
	s := Diff([]float64{1, 0.5, 4}, []float64{1, 0, 3})
	assert.Equal(t, 2, s.WorstIndex)
	assert.InDelta(t, 1.0, s.MaxAbsErr, 1e-12)
	assert.InDelta(t, 1.0/3, s.MaxRelErr, 1e-12, "zero desired values are ignored")

	s = Diff([]float64{1, math.NaN()}, []float64{1, 2})
	assert.Equal(t, 1, s.WorstIndex)
	assert.True(t, math.IsInf(s.MaxAbsErr, 1))

	assert.Equal(t, Stats{}, Diff(nil, nil))
}
