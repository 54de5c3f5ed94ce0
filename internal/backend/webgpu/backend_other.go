//go:build !windows

package webgpu

import "github.com/born-ml/dwconv/internal/tensor"

// Backend is a placeholder on platforms without the WebGPU bindings.
type Backend struct{}

// New always fails with ErrUnavailable.
func New() (*Backend, error) {
	return nil, ErrUnavailable
}

// IsAvailable reports false.
func IsAvailable() bool { return false }

// Release is a no-op.
func (b *Backend) Release() {}

// Name returns the backend name.
func (b *Backend) Name() string { return "WebGPU" }

// Device returns tensor.WebGPU.
func (b *Backend) Device() tensor.Device { return tensor.WebGPU }

// DepthwiseConv2DInputBackward validates its arguments and returns ErrUnavailable.
func (b *Backend) DepthwiseConv2DInputBackward(filter, grad *tensor.RawTensor, inShape tensor.Shape, stride, padding [2]int) (*tensor.RawTensor, error) {
	if _, err := geometry(inShape, filter.Shape(), grad, stride, padding); err != nil {
		return nil, err
	}
	return nil, ErrUnavailable
}

// DepthwiseConv2DWeightBackward validates its arguments and returns ErrUnavailable.
func (b *Backend) DepthwiseConv2DWeightBackward(input, grad *tensor.RawTensor, filterShape tensor.Shape, stride, padding [2]int) (*tensor.RawTensor, error) {
	if _, err := geometry(input.Shape(), filterShape, grad, stride, padding); err != nil {
		return nil, err
	}
	return nil, ErrUnavailable
}
