// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for depthwise convolution kernels.
//
// # Overview
//
// This package implements:
//   - Forward depthwise convolution (NHWC)
//   - Input gradient by scatter over the filter window
//   - Weight gradient by direct accumulation in float64
//   - Float32 and Float64 support
//
// Independent (batch, channel) or (channel, multiplier) slices are computed on
// separate goroutines.
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
//	    x := tensor.Zeros(tensor.Shape{1, 32, 32, 16}, tensor.Float32)
//	    w := tensor.Zeros(tensor.Shape{5, 5, 16, 2}, tensor.Float32)
//	    y := backend.DepthwiseConv2D(x, w, [2]int{3, 3}, [2]int{2, 2})
//	}
//
// Invalid shapes or mismatched dtypes panic.
package cpu
