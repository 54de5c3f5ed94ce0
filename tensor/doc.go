// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public tensor types used by the depthwise
// convolution gradient kernels.
//
// # Overview
//
// Tensors are flat row-major buffers with a shape, a dtype and a device:
//   - RawTensor: the buffer every kernel reads and writes
//   - Shape, DataType, Device: core type definitions
//   - Backend: the interface every compute backend implements
//
// Kernels use the NHWC layout:
//   - input and input gradient: [N, H, W, C]
//   - filter and weight gradient: [KH, KW, C, M]
//   - output gradient: [N, HOut, WOut, C*M]
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/dwconv/backend/cpu"
//	    "github.com/born-ml/dwconv/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    filter := tensor.Zeros(tensor.Shape{5, 5, 16, 2}, tensor.Float32)
//	    grad := tensor.Zeros(tensor.Shape{1, 11, 11, 32}, tensor.Float32)
//	    inGrad := backend.DepthwiseConv2DInputBackward(filter, grad,
//	        tensor.Shape{1, 32, 32, 16}, [2]int{3, 3}, [2]int{2, 2})
//	}
package tensor
