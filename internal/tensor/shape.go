package tensor

import (
	"fmt"
	"strings"
)

// Shape represents the dimensions of a tensor.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// String formats the shape as "[d0,d1,...]", the way the sweep logs print them.
func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// ConvOutputSize returns floor((in + 2*padding - filter) / stride) + 1.
// An error is returned if the stride is not positive, the padding is negative or
// the filter does not fit the padded input.
func ConvOutputSize(in, filter, stride, padding int) (int, error) {
	if stride <= 0 {
		return 0, fmt.Errorf("stride must be positive, got %d", stride)
	}
	if padding < 0 {
		return 0, fmt.Errorf("padding must be non-negative, got %d", padding)
	}
	if filter <= 0 || in <= 0 {
		return 0, fmt.Errorf("sizes must be positive, got input %d and filter %d", in, filter)
	}
	if in+2*padding < filter {
		return 0, fmt.Errorf("filter %d larger than padded input %d", filter, in+2*padding)
	}
	return (in+2*padding-filter)/stride + 1, nil
}

// DilatedSize returns the spatial size of a gradient of size n after inserting
// stride-1 zeros between its elements.
func DilatedSize(n, stride int) int {
	return (n-1)*stride + 1
}
