package webgpu

import (
	"fmt"

	"github.com/born-ml/dwconv/internal/tensor"
)

func geometry(inShape, filterShape tensor.Shape, grad *tensor.RawTensor, stride, padding [2]int) (tensor.Depthwise, error) {
	d, err := tensor.NewDepthwise(inShape, filterShape, stride, padding)
	if err != nil {
		return tensor.Depthwise{}, fmt.Errorf("webgpu: %w", err)
	}
	if err := d.CheckOutputGrad(grad.Shape()); err != nil {
		return tensor.Depthwise{}, fmt.Errorf("webgpu: %w", err)
	}
	if grad.DType() != tensor.Float32 {
		return tensor.Depthwise{}, fmt.Errorf("webgpu: only float32 is supported, got %s", grad.DType())
	}
	return d, nil
}
