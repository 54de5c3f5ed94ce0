// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

// Backend defines what every compute backend exposes.
//
// Implementations:
//   - backend/cpu: pure Go loops, parallel over channels
//   - backend/webgpu: WGSL compute shaders via WebGPU
//
// The gradient kernels themselves differ in signature: CPU kernels panic on
// invalid shapes while WebGPU kernels return an error.
type Backend interface {
	// Name returns a human-readable backend name.
	Name() string

	// Device returns the device results are produced for.
	Device() Device
}
