package tensor

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Zeros creates a zero-filled tensor.
// Panics on an invalid shape.
func Zeros(shape Shape, dtype DataType, device Device) *RawTensor {
	raw, err := NewRaw(shape, dtype, device)
	if err != nil {
		panic(err)
	}
	return raw
}

// Uniform creates a tensor with values uniformly distributed in [0, 1) drawn from rng.
// Note: uses math/rand, seeded by the caller for reproducible test data.
func Uniform(shape Shape, dtype DataType, device Device, rng *rand.Rand) *RawTensor {
	raw := Zeros(shape, dtype, device)
	switch dtype {
	case Float32:
		data := raw.AsFloat32()
		for i := range data {
			data[i] = float32(rng.Float64())
		}
	case Float64:
		data := raw.AsFloat64()
		for i := range data {
			data[i] = rng.Float64()
		}
	default:
		panic(fmt.Sprintf("Uniform: unsupported dtype %s", dtype))
	}
	return raw
}

// Scale returns a copy of r with every element multiplied by k.
func Scale(r *RawTensor, k float64) *RawTensor {
	out := r.Clone()
	switch r.dtype {
	case Float32:
		data := out.AsFloat32()
		for i := range data {
			data[i] *= float32(k)
		}
	case Float64:
		data := out.AsFloat64()
		for i := range data {
			data[i] *= k
		}
	}
	return out
}

// Dot returns the inner product of two tensors of identical shape, accumulated in float64.
func Dot(a, b *RawTensor) float64 {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("dot: shape mismatch %v vs %v", a.Shape(), b.Shape()))
	}
	return floats.Dot(a.Float64s(), b.Float64s())
}
