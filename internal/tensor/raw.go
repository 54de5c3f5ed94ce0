package tensor

import (
	"fmt"
	"unsafe"
)

// Device represents the compute device a tensor's buffer belongs to.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// RawTensor is the low-level tensor representation: a flat row-major buffer
// plus shape and runtime type information.
//
// Convolution tensors in this module are NHWC: [batch, height, width, channel]
// for activations and gradients, [filter_h, filter_w, in_channel, multiplier]
// for depthwise filters.
type RawTensor struct {
	data   []byte
	shape  Shape
	stride []int
	dtype  DataType
	device Device
}

// NewRaw creates a new RawTensor with the given shape and type.
// Memory is zero-initialized.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	return &RawTensor{
		data:   make([]byte, shape.NumElements()*dtype.Size()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
	}, nil
}

// FromSlice creates a RawTensor holding a copy of data.
func FromSlice[T Float](data []T, shape Shape, device Device) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}

	var dummy T
	raw, err := NewRaw(shape, inferDataType(dummy), device)
	if err != nil {
		return nil, err
	}
	copy(Values[T](raw), data)
	return raw, nil
}

// Values returns the tensor data as a []T view.
// Panics if T does not match the tensor's dtype.
func Values[T Float](r *RawTensor) []T {
	var dummy T
	if dt := inferDataType(dummy); dt != r.dtype {
		panic(fmt.Sprintf("tensor dtype is %s, not %s", r.dtype, dt))
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, length bounded by NumElements()
	return unsafe.Slice((*T)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device {
	return r.device
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// Data returns the raw byte slice.
// WARNING: Direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []byte {
	return r.data
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	return Values[float32](r)
}

// AsFloat64 interprets the data as []float64.
// Panics if the tensor's dtype is not Float64.
func (r *RawTensor) AsFloat64() []float64 {
	return Values[float64](r)
}

// Float64s returns a float64 copy of the tensor data, whatever its dtype.
func (r *RawTensor) Float64s() []float64 {
	out := make([]float64, r.NumElements())
	switch r.dtype {
	case Float32:
		for i, v := range r.AsFloat32() {
			out[i] = float64(v)
		}
	case Float64:
		copy(out, r.AsFloat64())
	default:
		panic(fmt.Sprintf("Float64s: unsupported dtype %s", r.dtype))
	}
	return out
}

// Clone returns a deep copy of the tensor.
func (r *RawTensor) Clone() *RawTensor {
	return &RawTensor{
		data:   append([]byte(nil), r.data...),
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
		device: r.device,
	}
}

// Index returns the flat offset of the element at the given coordinates.
func (r *RawTensor) Index(coords ...int) int {
	if len(coords) != len(r.shape) {
		panic(fmt.Sprintf("index: expected %d coordinates, got %d", len(r.shape), len(coords)))
	}
	idx := 0
	for i, c := range coords {
		if c < 0 || c >= r.shape[i] {
			panic(fmt.Sprintf("index: coordinate %d out of range [0, %d) at axis %d", c, r.shape[i], i))
		}
		idx += c * r.stride[i]
	}
	return idx
}

// String implements fmt.Stringer.
func (r *RawTensor) String() string {
	return fmt.Sprintf("(%s)%v@%s", r.dtype, r.shape, r.device)
}
