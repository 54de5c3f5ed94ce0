// Package validate runs depthwise convolution gradient kernels against their
// references and reports numerical mismatches.
package validate

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/dwconv/internal/tensor"
)

// MismatchError reports elements outside |actual - desired| <= atol + rtol*|desired|.
type MismatchError struct {
	Shape      tensor.Shape
	Mismatched int
	Total      int
	RTol, ATol float64

	// WorstIndex is the flat index of the largest absolute difference.
	WorstIndex int
	Actual     float64
	Desired    float64
	MaxAbsErr  float64
	MaxRelErr  float64
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("not equal to tolerance rtol=%g, atol=%g: mismatched elements %d / %d (%.3g%%), "+
		"max absolute difference %g at %d (actual %g, desired %g), max relative difference %g",
		e.RTol, e.ATol, e.Mismatched, e.Total, 100*float64(e.Mismatched)/float64(e.Total),
		e.MaxAbsErr, e.WorstIndex, e.Actual, e.Desired, e.MaxRelErr)
}

// Stats summarises the difference between two tensors.
type Stats struct {
	MaxAbsErr  float64
	MaxRelErr  float64
	WorstIndex int
}

// Diff computes the error statistics of actual against desired.
// Relative errors ignore elements where desired is zero; NaN pairs count as equal.
func Diff(actual, desired []float64) Stats {
	abs := make([]float64, len(actual))
	floats.SubTo(abs, actual, desired)
	var s Stats
	for i, d := range abs {
		if math.IsNaN(actual[i]) && math.IsNaN(desired[i]) {
			abs[i] = 0
			continue
		}
		abs[i] = math.Abs(d)
		if math.IsNaN(abs[i]) {
			abs[i] = math.Inf(1)
		}
		if desired[i] != 0 {
			s.MaxRelErr = math.Max(s.MaxRelErr, abs[i]/math.Abs(desired[i]))
		}
	}
	if len(abs) > 0 {
		s.WorstIndex = floats.MaxIdx(abs)
		s.MaxAbsErr = abs[s.WorstIndex]
	}
	return s
}

// AllClose returns nil when every element satisfies |a - d| <= atol + rtol*|d|,
// a *MismatchError otherwise. Shapes must match.
func AllClose(actual, desired *tensor.RawTensor, rtol, atol float64) error {
	if !actual.Shape().Equal(desired.Shape()) {
		return errors.Errorf("shape mismatch: actual %v, desired %v", actual.Shape(), desired.Shape())
	}
	a, d := actual.Float64s(), desired.Float64s()

	mismatched := 0
	for i := range a {
		if math.IsNaN(a[i]) && math.IsNaN(d[i]) {
			continue
		}
		if !(math.Abs(a[i]-d[i]) <= atol+rtol*math.Abs(d[i])) {
			mismatched++
		}
	}
	if mismatched == 0 {
		return nil
	}

	s := Diff(a, d)
	return &MismatchError{
		Shape:      actual.Shape().Clone(),
		Mismatched: mismatched,
		Total:      len(a),
		RTol:       rtol,
		ATol:       atol,
		WorstIndex: s.WorstIndex,
		Actual:     a[s.WorstIndex],
		Desired:    d[s.WorstIndex],
		MaxAbsErr:  s.MaxAbsErr,
		MaxRelErr:  s.MaxRelErr,
	}
}
