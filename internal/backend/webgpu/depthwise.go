//go:build windows

package webgpu

import (
	"fmt"

	"github.com/born-ml/dwconv/internal/tensor"
)

// DepthwiseConv2DInputBackward computes the input gradient of an NHWC depthwise
// convolution on the GPU. Only float32 is supported.
func (b *Backend) DepthwiseConv2DInputBackward(filter, grad *tensor.RawTensor, inShape tensor.Shape, stride, padding [2]int) (*tensor.RawTensor, error) {
	d, err := geometry(inShape, filter.Shape(), grad, stride, padding)
	if err != nil {
		return nil, err
	}
	if filter.DType() != tensor.Float32 {
		return nil, fmt.Errorf("webgpu: only float32 is supported, got %s", filter.DType())
	}

	out, err := tensor.NewRaw(inShape, tensor.Float32, tensor.WebGPU)
	if err != nil {
		return nil, err
	}
	//nolint:gosec // G115: ByteSize() is non-negative
	data, err := b.dispatch(BackInputShader(d), filter.Data(), grad.Data(), uint64(out.ByteSize()), out.NumElements())
	if err != nil {
		return nil, err
	}
	copy(out.Data(), data)
	return out, nil
}

// DepthwiseConv2DWeightBackward computes the filter gradient of an NHWC
// depthwise convolution on the GPU. Only float32 is supported.
func (b *Backend) DepthwiseConv2DWeightBackward(input, grad *tensor.RawTensor, filterShape tensor.Shape, stride, padding [2]int) (*tensor.RawTensor, error) {
	d, err := geometry(input.Shape(), filterShape, grad, stride, padding)
	if err != nil {
		return nil, err
	}
	if input.DType() != tensor.Float32 {
		return nil, fmt.Errorf("webgpu: only float32 is supported, got %s", input.DType())
	}

	out, err := tensor.NewRaw(filterShape, tensor.Float32, tensor.WebGPU)
	if err != nil {
		return nil, err
	}
	//nolint:gosec // G115: ByteSize() is non-negative
	data, err := b.dispatch(BackWeightShader(d), input.Data(), grad.Data(), uint64(out.ByteSize()), out.NumElements())
	if err != nil {
		return nil, err
	}
	copy(out.Data(), data)
	return out, nil
}
