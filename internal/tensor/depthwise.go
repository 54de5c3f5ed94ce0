package tensor

import "fmt"

// Depthwise holds the dimensions of one NHWC depthwise convolution.
//
// Layouts:
//   - input / input gradient: [N, H, W, C]
//   - filter / weight gradient: [KH, KW, C, M]
//   - output / output gradient: [N, HOut, WOut, C*M]
type Depthwise struct {
	N, H, W, C, M  int
	KH, KW         int
	HOut, WOut     int
	SH, SW, PH, PW int
}

// NewDepthwise validates an input and filter shape pair and derives the output size.
func NewDepthwise(inShape, filterShape Shape, stride, padding [2]int) (Depthwise, error) {
	if len(inShape) != 4 {
		return Depthwise{}, fmt.Errorf("input must be 4D [N,H,W,C], got %dD", len(inShape))
	}
	if len(filterShape) != 4 {
		return Depthwise{}, fmt.Errorf("filter must be 4D [KH,KW,C,M], got %dD", len(filterShape))
	}
	if err := inShape.Validate(); err != nil {
		return Depthwise{}, fmt.Errorf("input: %w", err)
	}
	if err := filterShape.Validate(); err != nil {
		return Depthwise{}, fmt.Errorf("filter: %w", err)
	}
	d := Depthwise{
		N: inShape[0], H: inShape[1], W: inShape[2], C: inShape[3],
		KH: filterShape[0], KW: filterShape[1], M: filterShape[3],
		SH: stride[0], SW: stride[1], PH: padding[0], PW: padding[1],
	}
	if filterShape[2] != d.C {
		return Depthwise{}, fmt.Errorf("input channels %d != filter channels %d", d.C, filterShape[2])
	}

	var err error
	if d.HOut, err = ConvOutputSize(d.H, d.KH, d.SH, d.PH); err != nil {
		return Depthwise{}, fmt.Errorf("height: %w", err)
	}
	if d.WOut, err = ConvOutputSize(d.W, d.KW, d.SW, d.PW); err != nil {
		return Depthwise{}, fmt.Errorf("width: %w", err)
	}
	return d, nil
}

// InputShape returns [N, H, W, C].
func (d Depthwise) InputShape() Shape { return Shape{d.N, d.H, d.W, d.C} }

// FilterShape returns [KH, KW, C, M].
func (d Depthwise) FilterShape() Shape { return Shape{d.KH, d.KW, d.C, d.M} }

// OutputShape returns [N, HOut, WOut, C*M].
func (d Depthwise) OutputShape() Shape { return Shape{d.N, d.HOut, d.WOut, d.C * d.M} }

// Stride returns (SH, SW).
func (d Depthwise) Stride() [2]int { return [2]int{d.SH, d.SW} }

// Padding returns (PH, PW).
func (d Depthwise) Padding() [2]int { return [2]int{d.PH, d.PW} }

// CheckOutputGrad returns an error unless gradShape is the output shape.
func (d Depthwise) CheckOutputGrad(gradShape Shape) error {
	if want := d.OutputShape(); !gradShape.Equal(want) {
		return fmt.Errorf("output gradient shape %v, expected %v", gradShape, want)
	}
	return nil
}
