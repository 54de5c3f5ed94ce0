//go:build windows

package webgpu

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/born-ml/dwconv/internal/reference"
	"github.com/born-ml/dwconv/internal/tensor"
)

func newBackend(t *testing.T) *Backend {
	t.Helper()
	backend, err := New()
	if err != nil {
		t.Logf("WebGPU not available: %v", err)
		t.Skip("WebGPU not available on this system")
	}
	t.Cleanup(backend.Release)
	return backend
}

func TestNew(t *testing.T) {
	backend := newBackend(t)

	if backend.Name() == "" {
		t.Error("Backend name should not be empty")
	}
	t.Logf("Backend name: %s", backend.Name())

	if backend.Device() != tensor.WebGPU {
		t.Errorf("Expected device WebGPU, got %v", backend.Device())
	}
}

func TestIsAvailableAgreesWithNew(t *testing.T) {
	backend, err := New()
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("New error should wrap ErrUnavailable, got %v", err)
		}
		if IsAvailable() {
			t.Error("IsAvailable = true but New failed")
		}
		return
	}
	defer backend.Release()
	if !IsAvailable() {
		t.Error("IsAvailable = false but New succeeded")
	}
}

func closeTo(t *testing.T, got *tensor.RawTensor, want *tensor.RawTensor, rtol float64) {
	t.Helper()
	g, w := got.Float64s(), want.Float64s()
	if len(g) != len(w) {
		t.Fatalf("length mismatch: %d vs %d", len(g), len(w))
	}
	for i := range g {
		if math.Abs(g[i]-w[i]) > 1e-6+rtol*math.Abs(w[i]) {
			t.Fatalf("element %d: got %v, want %v", i, g[i], w[i])
		}
	}
}

func TestDepthwiseConv2DInputBackward(t *testing.T) {
	backend := newBackend(t)
	rng := rand.New(rand.NewSource(1))

	inShape := tensor.Shape{1, 32, 32, 16}
	filter := tensor.Uniform(tensor.Shape{5, 5, 16, 2}, tensor.Float32, tensor.CPU, rng)
	grad := tensor.Uniform(tensor.Shape{1, 11, 11, 32}, tensor.Float32, tensor.CPU, rng)
	stride, padding := [2]int{3, 3}, [2]int{2, 2}

	got, err := backend.DepthwiseConv2DInputBackward(filter, grad, inShape, stride, padding)
	if err != nil {
		t.Fatalf("DepthwiseConv2DInputBackward failed: %v", err)
	}
	want, err := reference.DepthwiseInputGrad(filter, grad, inShape, stride, padding)
	if err != nil {
		t.Fatalf("reference failed: %v", err)
	}
	closeTo(t, got, want, 1e-5)
}

func TestDepthwiseConv2DWeightBackward(t *testing.T) {
	backend := newBackend(t)
	rng := rand.New(rand.NewSource(2))

	input := tensor.Uniform(tensor.Shape{4, 17, 17, 32}, tensor.Float32, tensor.CPU, rng)
	grad := tensor.Uniform(tensor.Shape{4, 17, 17, 32}, tensor.Float32, tensor.CPU, rng)
	filterShape := tensor.Shape{3, 3, 32, 1}
	stride, padding := [2]int{1, 1}, [2]int{1, 1}

	got, err := backend.DepthwiseConv2DWeightBackward(input, grad, filterShape, stride, padding)
	if err != nil {
		t.Fatalf("DepthwiseConv2DWeightBackward failed: %v", err)
	}
	want, err := reference.DepthwiseWeightGrad(input, grad, 3, 3, stride, padding)
	if err != nil {
		t.Fatalf("reference failed: %v", err)
	}
	closeTo(t, got, want, 1e-4)
}
