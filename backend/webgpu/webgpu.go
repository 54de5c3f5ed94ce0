// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU backend for the depthwise convolution
// gradient kernels.
//
// Kernels are generated as WGSL compute shaders specialised to the convolution
// geometry. The GPU runtime is only built on windows; elsewhere New returns
// ErrUnavailable.
//
// Example:
//
//	if webgpu.IsAvailable() {
//	    gpu, err := webgpu.New()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer gpu.Release()
//	    inGrad, err := gpu.DepthwiseConv2DInputBackward(filter, grad, inShape, stride, padding)
//	}
package webgpu

import (
	internalwebgpu "github.com/born-ml/dwconv/internal/backend/webgpu"
	"github.com/born-ml/dwconv/tensor"
)

// Backend represents the WebGPU backend implementation.
type Backend = internalwebgpu.Backend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// ErrUnavailable is returned by New when no WebGPU adapter can be acquired.
var ErrUnavailable = internalwebgpu.ErrUnavailable

// New creates a new WebGPU backend. Call Release when done to free GPU resources.
func New() (*Backend, error) {
	return internalwebgpu.New()
}

// IsAvailable checks if WebGPU is available on the current system.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}

// BackInputShader returns the WGSL source of the input-gradient kernel for d.
func BackInputShader(d tensor.Depthwise) string {
	return internalwebgpu.BackInputShader(d)
}

// BackWeightShader returns the WGSL source of the weight-gradient kernel for d.
func BackWeightShader(d tensor.Depthwise) string {
	return internalwebgpu.BackWeightShader(d)
}
