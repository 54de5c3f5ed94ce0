package validate

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/born-ml/dwconv/internal/tensor"
)

// Workload is one depthwise convolution configuration under test.
// Height and width share the same size, stride and padding.
type Workload struct {
	Batch      int
	InChannel  int
	InSize     int
	Multiplier int
	FilterSize int
	Stride     int
	Padding    int
}

// InputShape returns [batch, in, in, in_channel].
func (w Workload) InputShape() tensor.Shape {
	return tensor.Shape{w.Batch, w.InSize, w.InSize, w.InChannel}
}

// FilterShape returns [filter, filter, in_channel, multiplier].
func (w Workload) FilterShape() tensor.Shape {
	return tensor.Shape{w.FilterSize, w.FilterSize, w.InChannel, w.Multiplier}
}

// StridePair returns the stride for height and width.
func (w Workload) StridePair() [2]int { return [2]int{w.Stride, w.Stride} }

// PaddingPair returns the padding for height and width.
func (w Workload) PaddingPair() [2]int { return [2]int{w.Padding, w.Padding} }

// OutputShape returns the spatial output size (out_h, out_w).
func (w Workload) OutputShape() (int, int, error) {
	g, err := w.Geometry()
	if err != nil {
		return 0, 0, err
	}
	return g.HOut, g.WOut, nil
}

// GradShape returns the output gradient shape [batch, out_h, out_w, in_channel*multiplier].
func (w Workload) GradShape() (tensor.Shape, error) {
	g, err := w.Geometry()
	if err != nil {
		return nil, err
	}
	return g.OutputShape(), nil
}

// Geometry validates the workload and returns its dimensions.
func (w Workload) Geometry() (tensor.Depthwise, error) {
	g, err := tensor.NewDepthwise(w.InputShape(), w.FilterShape(), w.StridePair(), w.PaddingPair())
	if err != nil {
		return tensor.Depthwise{}, errors.Wrapf(err, "workload %s", w)
	}
	return g, nil
}

// String formats the workload the way the sweep log lines print it.
func (w Workload) String() string {
	return fmt.Sprintf("in_shape[%d,%d,%d,%d] filter[%d,%d,%d,%d] stride[%d,%d] padding[%d,%d]",
		w.Batch, w.InSize, w.InSize, w.InChannel,
		w.FilterSize, w.FilterSize, w.InChannel, w.Multiplier,
		w.Stride, w.Stride, w.Padding, w.Padding)
}

// BackInputWorkload returns the input-gradient scenario.
func BackInputWorkload() Workload {
	return Workload{Batch: 1, InChannel: 16, InSize: 32, Multiplier: 2, FilterSize: 5, Stride: 3, Padding: 2}
}

// BackWeightWorkloads returns the weight-gradient sweep: padded workloads over
// odd/even input sizes and strides, then the unpadded ones at 64 and 65.
func BackWeightWorkloads() []Workload {
	type row struct{ batch, channel, in, multiplier, filter, stride, padding int }
	rows := []row{
		{17, 32, 17, 1, 3, 1, 1},
		{17, 32, 18, 1, 3, 1, 1},
		{18, 32, 17, 2, 5, 1, 2},
		{18, 32, 18, 2, 5, 1, 2},
		{17, 32, 17, 1, 3, 2, 1},
		{17, 32, 18, 1, 3, 2, 1},
		{18, 32, 17, 2, 5, 2, 2},
		{18, 32, 18, 2, 5, 2, 2},

		{17, 32, 64, 1, 3, 1, 0},
		{17, 32, 65, 1, 3, 1, 0},
		{18, 32, 64, 2, 5, 1, 0},
		{18, 32, 65, 2, 5, 1, 0},
		{17, 32, 64, 1, 3, 2, 0},
		{17, 32, 65, 1, 3, 2, 0},
		{18, 32, 64, 2, 5, 2, 0},
		{18, 32, 65, 2, 5, 2, 0},
	}
	workloads := make([]Workload, len(rows))
	for i, r := range rows {
		workloads[i] = Workload{
			Batch: r.batch, InChannel: r.channel, InSize: r.in, Multiplier: r.multiplier,
			FilterSize: r.filter, Stride: r.stride, Padding: r.padding,
		}
	}
	return workloads
}
