package kernel

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/born-ml/dwconv/internal/backend/cpu"
	"github.com/born-ml/dwconv/internal/backend/webgpu"
	"github.com/born-ml/dwconv/internal/tensor"
)

// ErrDeviceUnavailable is returned by Build when the target device cannot be used.
var ErrDeviceUnavailable = errors.New("device not available")

// Target names a device a kernel is built for.
type Target string

// Supported targets.
const (
	CPU    Target = "cpu"
	WebGPU Target = "webgpu"
)

// Targets lists every supported target.
func Targets() []Target { return []Target{CPU, WebGPU} }

// ParseTarget maps a case-insensitive name to a Target.
func ParseTarget(name string) (Target, error) {
	t := Target(strings.ToLower(name))
	for _, known := range Targets() {
		if t == known {
			return t, nil
		}
	}
	return "", errors.Errorf("unknown target %q", name)
}

// Device returns the tensor device results of t live on.
func (t Target) Device() tensor.Device {
	if t == WebGPU {
		return tensor.WebGPU
	}
	return tensor.CPU
}

// runFunc executes a built kernel on its two inputs.
type runFunc func(a, b *tensor.RawTensor) (*tensor.RawTensor, error)

// Executable is an operator built for a target.
type Executable struct {
	op      *Op
	target  Target
	source  string
	ext     string
	run     runFunc
	release func()
}

// Build lowers op for target.
// An unavailable device yields an error wrapping ErrDeviceUnavailable.
func Build(op *Op, target Target) (*Executable, error) {
	if op == nil {
		return nil, errors.New("build: nil operator")
	}
	switch target {
	case CPU:
		return buildCPU(op), nil
	case WebGPU:
		return buildWebGPU(op)
	default:
		return nil, errors.Errorf("build %s: unknown target %q", op.Name(), target)
	}
}

func buildCPU(op *Op) *Executable {
	backend := cpu.New()
	g := op.geom
	exe := &Executable{op: op, target: CPU, source: Lower(op), ext: "txt", release: func() {}}
	switch op.Kind {
	case KindForward:
		exe.run = func(x, f *tensor.RawTensor) (*tensor.RawTensor, error) {
			return backend.DepthwiseConv2D(x, f, g.Stride(), g.Padding()), nil
		}
	case KindBackInput:
		exe.run = func(f, dy *tensor.RawTensor) (*tensor.RawTensor, error) {
			return backend.DepthwiseConv2DInputBackward(f, dy, g.InputShape(), g.Stride(), g.Padding()), nil
		}
	case KindBackWeight:
		exe.run = func(x, dy *tensor.RawTensor) (*tensor.RawTensor, error) {
			return backend.DepthwiseConv2DWeightBackward(x, dy, g.FilterShape(), g.Stride(), g.Padding()), nil
		}
	}
	return exe
}

func buildWebGPU(op *Op) (*Executable, error) {
	if op.Output.DType != tensor.Float32 {
		return nil, errors.Errorf("build %s: webgpu supports float32 only, got %s", op.Name(), op.Output.DType)
	}
	g := op.geom
	var source string
	switch op.Kind {
	case KindBackInput:
		source = webgpu.BackInputShader(g)
	case KindBackWeight:
		source = webgpu.BackWeightShader(g)
	default:
		return nil, errors.Errorf("build %s: not supported on webgpu", op.Name())
	}

	backend, err := webgpu.New()
	if err != nil {
		return nil, errors.Wrapf(ErrDeviceUnavailable, "webgpu: %v", err)
	}
	exe := &Executable{op: op, target: WebGPU, source: source, ext: "wgsl", release: backend.Release}
	if op.Kind == KindBackInput {
		exe.run = func(f, dy *tensor.RawTensor) (*tensor.RawTensor, error) {
			return backend.DepthwiseConv2DInputBackward(f, dy, g.InputShape(), g.Stride(), g.Padding())
		}
	} else {
		exe.run = func(x, dy *tensor.RawTensor) (*tensor.RawTensor, error) {
			return backend.DepthwiseConv2DWeightBackward(x, dy, g.FilterShape(), g.Stride(), g.Padding())
		}
	}
	return exe, nil
}

// Op returns the operator the executable was built from.
func (e *Executable) Op() *Op { return e.op }

// Target returns the device the executable runs on.
func (e *Executable) Target() Target { return e.target }

// Source returns the generated source: a loop nest for CPU, WGSL for WebGPU.
func (e *Executable) Source() string { return e.source }

// SourceExt returns the file extension of Source, without the dot.
func (e *Executable) SourceExt() string { return e.ext }

// Release frees device resources held by the executable.
func (e *Executable) Release() { e.release() }

// Run executes the kernel on args, bound in the order of the operator inputs,
// and blocks until the result is available.
func (e *Executable) Run(args ...*tensor.RawTensor) (out *tensor.RawTensor, err error) {
	if len(args) != len(e.op.Inputs) {
		return nil, errors.Errorf("%s: expected %d arguments, got %d", e.op.Name(), len(e.op.Inputs), len(args))
	}
	for i, arg := range args {
		want := e.op.Inputs[i]
		if arg == nil {
			return nil, errors.Errorf("%s: argument %s is nil", e.op.Name(), want.Name)
		}
		if !arg.Shape().Equal(want.Shape) {
			return nil, errors.Errorf("%s: argument %s has shape %v, expected %v", e.op.Name(), want.Name, arg.Shape(), want.Shape)
		}
		if arg.DType() != want.DType {
			return nil, errors.Errorf("%s: argument %s has dtype %s, expected %s", e.op.Name(), want.Name, arg.DType(), want.DType)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = errors.Errorf("%s on %s: %v", e.op.Name(), e.target, r)
		}
	}()
	out, err = e.run(args[0], args[1])
	if err != nil {
		return nil, errors.Wrapf(err, "%s on %s", e.op.Name(), e.target)
	}
	return out, nil
}

// Timing is the result of a timed evaluation.
type Timing struct {
	Mean   time.Duration
	Runs   []time.Duration
	Output *tensor.RawTensor
}

// MeanMillis returns the mean run time in milliseconds.
func (t Timing) MeanMillis() float64 {
	return float64(t.Mean) / float64(time.Millisecond)
}

func (t Timing) String() string {
	return fmt.Sprintf("mean %v over %d runs", t.Mean, len(t.Runs))
}

// TimeEvaluator returns a function running exe number times on its arguments
// and reporting the mean duration together with the last output.
func TimeEvaluator(exe *Executable, number int) func(args ...*tensor.RawTensor) (Timing, error) {
	if number < 1 {
		number = 1
	}
	return func(args ...*tensor.RawTensor) (Timing, error) {
		timing := Timing{Runs: make([]time.Duration, 0, number)}
		var total time.Duration
		for range number {
			start := time.Now()
			out, err := exe.Run(args...)
			if err != nil {
				return Timing{}, err
			}
			d := time.Since(start)
			timing.Runs = append(timing.Runs, d)
			total += d
			timing.Output = out
		}
		timing.Mean = total / time.Duration(number)
		return timing, nil
	}
}
