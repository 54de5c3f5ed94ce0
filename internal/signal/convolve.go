// Package signal implements the 2-D convolution primitives the reference
// gradients are built from. Sizes and centring follow scipy.signal.convolve2d.
package signal

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Mode selects which part of the full convolution is returned.
type Mode int

const (
	// Full returns the complete discrete linear convolution,
	// of size (r1+r2-1) x (c1+c2-1).
	Full Mode = iota
	// Valid returns only the entries that do not rely on zero padding,
	// of size (r1-r2+1) x (c1-c2+1).
	Valid
	// Same returns an output the size of in1, centred on the full result.
	// The window starts at ((r2-1)/2, (c2-1)/2) of the full output.
	Same
)

// String returns the scipy name of the mode.
func (m Mode) String() string {
	switch m {
	case Full:
		return "full"
	case Valid:
		return "valid"
	case Same:
		return "same"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Convolve2D convolves in1 with in2.
//
// In Valid mode every dimension of in1 must be at least as large as in2's, or the
// other way around, in which case the inputs are swapped (convolution commutes).
func Convolve2D(in1, in2 mat.Matrix, mode Mode) (*mat.Dense, error) {
	r1, c1 := in1.Dims()
	r2, c2 := in2.Dims()
	if r1 == 0 || c1 == 0 || r2 == 0 || c2 == 0 {
		return nil, errors.Errorf("convolve2d: empty input (%dx%d, %dx%d)", r1, c1, r2, c2)
	}

	var rows, cols, offR, offC int
	switch mode {
	case Full:
		rows, cols = r1+r2-1, c1+c2-1
	case Valid:
		switch {
		case r1 >= r2 && c1 >= c2:
		case r2 >= r1 && c2 >= c1:
			in1, in2 = in2, in1
			r1, c1, r2, c2 = r2, c2, r1, c1
		default:
			return nil, errors.Errorf("convolve2d: valid mode needs one input to be at least as large as the other in every dimension, got %dx%d and %dx%d", r1, c1, r2, c2)
		}
		rows, cols = r1-r2+1, c1-c2+1
		offR, offC = r2-1, c2-1
	case Same:
		rows, cols = r1, c1
		offR, offC = (r2-1)/2, (c2-1)/2
	default:
		return nil, errors.Errorf("convolve2d: unknown mode %v", mode)
	}

	a := asDense(in1)
	b := asDense(in2)
	out := mat.NewDense(rows, cols, nil)
	convolveWindow(out, a, b, offR, offC)
	return out, nil
}

// Correlate2D cross-correlates in1 with in2, i.e. convolves in1 with in2 rotated by 180°.
func Correlate2D(in1, in2 mat.Matrix, mode Mode) (*mat.Dense, error) {
	return Convolve2D(in1, Rot180(in2), mode)
}

// Rot180 returns a copy of m rotated by 180°.
func Rot180(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(r-1-i, c-1-j, m.At(i, j))
		}
	}
	return out
}

// convolveWindow fills out[i, j] with full[i+offR, j+offC], where
// full[x, y] = sum_{p,q} a[p, q] * b[x-p, y-q].
// Only the terms where both operands are in range are visited.
func convolveWindow(out, a, b *mat.Dense, offR, offC int) {
	rows, cols := out.Dims()
	r1, c1 := a.Dims()
	r2, c2 := b.Dims()
	ar, br, or := a.RawMatrix(), b.RawMatrix(), out.RawMatrix()

	for i := 0; i < rows; i++ {
		x := i + offR
		pLo, pHi := max(0, x-r2+1), min(x, r1-1)
		for j := 0; j < cols; j++ {
			y := j + offC
			qLo, qHi := max(0, y-c2+1), min(y, c1-1)
			var sum float64
			for p := pLo; p <= pHi; p++ {
				aRow := ar.Data[p*ar.Stride:]
				bRow := br.Data[(x-p)*br.Stride:]
				for q := qLo; q <= qHi; q++ {
					sum += aRow[q] * bRow[y-q]
				}
			}
			or.Data[i*or.Stride+j] = sum
		}
	}
}

// asDense returns m as a *mat.Dense, copying only when it is some other implementation.
func asDense(m mat.Matrix) *mat.Dense {
	if d, ok := m.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(m)
}
