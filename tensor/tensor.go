// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"math/rand"

	"github.com/born-ml/dwconv/internal/tensor"
)

// RawTensor is a flat row-major tensor buffer.
type RawTensor = tensor.RawTensor

// DataType represents the underlying data type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
)

// Device represents the device where tensor data resides.
type Device = tensor.Device

// Device constants.
const (
	CPU    Device = tensor.CPU
	WebGPU Device = tensor.WebGPU
)

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// Depthwise holds the dimensions of one NHWC depthwise convolution.
type Depthwise = tensor.Depthwise

// NewRaw creates a zero-filled tensor.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// FromSlice creates a CPU tensor holding a copy of data.
func FromSlice[T tensor.Float](data []T, shape Shape) (*RawTensor, error) {
	return tensor.FromSlice(data, shape, tensor.CPU)
}

// Zeros creates a zero-filled CPU tensor. Panics on an invalid shape.
func Zeros(shape Shape, dtype DataType) *RawTensor {
	return tensor.Zeros(shape, dtype, tensor.CPU)
}

// Uniform creates a CPU tensor with values drawn uniformly from [0, 1).
func Uniform(shape Shape, dtype DataType, rng *rand.Rand) *RawTensor {
	return tensor.Uniform(shape, dtype, tensor.CPU, rng)
}

// NewDepthwise validates an input and filter shape pair and derives the output size.
func NewDepthwise(inShape, filterShape Shape, stride, padding [2]int) (Depthwise, error) {
	return tensor.NewDepthwise(inShape, filterShape, stride, padding)
}
