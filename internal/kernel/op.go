// Package kernel declares depthwise convolution operators over symbolic tensors,
// builds them for a target device and runs them.
//
// A declaration is pure shape bookkeeping:
//
//	filter := kernel.Placeholder("Filter", tensor.Shape{5, 5, 16, 2}, tensor.Float32)
//	grad := kernel.Placeholder("Out_grad", tensor.Shape{1, 11, 11, 32}, tensor.Float32)
//	op, err := kernel.BackInput(filter, grad, tensor.Shape{1, 32, 32, 16}, [2]int{3, 3}, [2]int{2, 2})
//	exe, err := kernel.Build(op, kernel.CPU)
//	inGrad, err := exe.Run(filterData, gradData)
package kernel

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/born-ml/dwconv/internal/tensor"
)

// Tensor is a symbolic tensor: a name, a shape and a dtype, without data.
type Tensor struct {
	Name  string
	Shape tensor.Shape
	DType tensor.DataType
}

// Placeholder declares an input tensor.
func Placeholder(name string, shape tensor.Shape, dtype tensor.DataType) *Tensor {
	return &Tensor{Name: name, Shape: shape.Clone(), DType: dtype}
}

func (t *Tensor) String() string {
	return fmt.Sprintf("%s%v %s", t.Name, t.Shape, t.DType)
}

// Kind identifies an operator.
type Kind int

// Supported operators.
const (
	KindForward Kind = iota
	KindBackInput
	KindBackWeight
)

func (k Kind) String() string {
	switch k {
	case KindForward:
		return "depthwise_conv2d_nhwc"
	case KindBackInput:
		return "depthwise_conv2d_back_input_nhwc"
	case KindBackWeight:
		return "depthwise_conv2d_back_weight_nhwc"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Op is a declared depthwise convolution operator with validated shapes.
type Op struct {
	Kind    Kind
	Inputs  [2]*Tensor
	Output  *Tensor
	Stride  [2]int
	Padding [2]int

	geom tensor.Depthwise
}

// Name returns the operator name.
func (op *Op) Name() string { return op.Kind.String() }

// Geometry returns the convolution dimensions.
func (op *Op) Geometry() tensor.Depthwise { return op.geom }

// Forward declares output = depthwise_conv2d(input, filter).
func Forward(input, filter *Tensor, stride, padding [2]int) (*Op, error) {
	if err := sameDType(input, filter); err != nil {
		return nil, err
	}
	g, err := tensor.NewDepthwise(input.Shape, filter.Shape, stride, padding)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", KindForward)
	}
	return &Op{
		Kind:    KindForward,
		Inputs:  [2]*Tensor{input, filter},
		Output:  Placeholder("Output", g.OutputShape(), input.DType),
		Stride:  stride,
		Padding: padding,
		geom:    g,
	}, nil
}

// BackInput declares the gradient of a depthwise convolution with respect to an
// input of shape inShape, given the filter and the output gradient.
func BackInput(filter, outGrad *Tensor, inShape tensor.Shape, stride, padding [2]int) (*Op, error) {
	if err := sameDType(filter, outGrad); err != nil {
		return nil, err
	}
	g, err := tensor.NewDepthwise(inShape, filter.Shape, stride, padding)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", KindBackInput)
	}
	if err := g.CheckOutputGrad(outGrad.Shape); err != nil {
		return nil, errors.Wrapf(err, "%s", KindBackInput)
	}
	return &Op{
		Kind:    KindBackInput,
		Inputs:  [2]*Tensor{filter, outGrad},
		Output:  Placeholder("In_grad", inShape, outGrad.DType),
		Stride:  stride,
		Padding: padding,
		geom:    g,
	}, nil
}

// BackWeight declares the gradient of a depthwise convolution with respect to a
// filter of shape filterShape, given the input and the output gradient.
func BackWeight(input, outGrad *Tensor, filterShape tensor.Shape, stride, padding [2]int) (*Op, error) {
	if err := sameDType(input, outGrad); err != nil {
		return nil, err
	}
	g, err := tensor.NewDepthwise(input.Shape, filterShape, stride, padding)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", KindBackWeight)
	}
	if err := g.CheckOutputGrad(outGrad.Shape); err != nil {
		return nil, errors.Wrapf(err, "%s", KindBackWeight)
	}
	return &Op{
		Kind:    KindBackWeight,
		Inputs:  [2]*Tensor{input, outGrad},
		Output:  Placeholder("Weight_grad", filterShape, outGrad.DType),
		Stride:  stride,
		Padding: padding,
		geom:    g,
	}, nil
}

func sameDType(a, b *Tensor) error {
	if a.DType != b.DType {
		return errors.Errorf("dtype mismatch: %s is %s, %s is %s", a.Name, a.DType, b.Name, b.DType)
	}
	return nil
}
