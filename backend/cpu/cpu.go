// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/born-ml/dwconv/internal/backend/cpu"
	"github.com/born-ml/dwconv/internal/parallel"
	"github.com/born-ml/dwconv/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Config controls how kernels spread work over goroutines.
type Config = parallel.Config

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend.
//
// Example:
//
//	backend := cpu.New()
//	dW := backend.DepthwiseConv2DWeightBackward(input, grad, filterShape, stride, padding)
func New() *Backend {
	return internalcpu.New()
}

// NewWithConfig creates a CPU backend with an explicit parallel configuration.
func NewWithConfig(cfg Config) *Backend {
	return internalcpu.NewWithConfig(cfg)
}

// DefaultConfig returns the parallel configuration New uses.
func DefaultConfig() Config {
	return parallel.DefaultConfig()
}

// Sequential returns a configuration running every kernel on the calling goroutine.
func Sequential() Config {
	return parallel.Sequential()
}
