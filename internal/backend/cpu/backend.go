// Package cpu implements the depthwise convolution kernels on the CPU.
package cpu

import (
	"github.com/born-ml/dwconv/internal/parallel"
	"github.com/born-ml/dwconv/internal/tensor"
)

// CPUBackend runs depthwise convolution kernels on the CPU.
// Independent output slices are spread over goroutines according to its parallel.Config.
type CPUBackend struct {
	device   tensor.Device
	parallel parallel.Config
}

// New creates a new CPU backend with the default parallel configuration.
func New() *CPUBackend {
	return NewWithConfig(parallel.DefaultConfig())
}

// NewWithConfig creates a CPU backend with an explicit parallel configuration.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{
		device:   tensor.CPU,
		parallel: cfg,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}
