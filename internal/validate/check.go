package validate

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/dwconv/internal/kernel"
	"github.com/born-ml/dwconv/internal/reference"
	"github.com/born-ml/dwconv/internal/tensor"
)

// Task is the name generated sources are dumped under.
const Task = "depthwise_conv2d"

// Default tolerances of the two checks.
const (
	BackInputRTol  = 1e-5
	BackWeightRTol = 1e-4
)

// ErrSkipped is matched by the error of a check whose device is not available.
var ErrSkipped = errors.New("skipped")

// SkipError reports a check skipped because its target could not be used.
type SkipError struct {
	Target kernel.Target
	Err    error
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("Skip because %s is not enabled", e.Target)
}

func (e *SkipError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrSkipped) hold.
func (e *SkipError) Is(target error) bool { return target == ErrSkipped }

// Config configures a check.
type Config struct {
	// RTol overrides the default relative tolerance of a check when positive.
	RTol float64
	ATol float64
	// Seed seeds the uniform random inputs.
	Seed   int64
	Target kernel.Target
	// DumpDir receives the generated kernel source when not empty.
	DumpDir string
	// Repeat is the number of timed runs averaged.
	Repeat int
}

// DefaultConfig returns a seeded CPU configuration with the default
// tolerances, a single timed run and no source dump.
func DefaultConfig() Config {
	return Config{
		Seed:   1,
		Target: kernel.CPU,
		Repeat: 1,
	}
}

func (cfg Config) rtol(def float64) float64 {
	if cfg.RTol > 0 {
		return cfg.RTol
	}
	return def
}

// Result is the outcome of a successful check.
type Result struct {
	Workload Workload
	Target   kernel.Target
	Timing   kernel.Timing
	Stats    Stats
	// Source is the path of the dumped generated source, if any.
	Source string
}

// LogLine formats the result as "<workload> NHWC <milliseconds>".
func (r Result) LogLine() string {
	return fmt.Sprintf("%s NHWC %.6f", r.Workload, r.Timing.MeanMillis())
}

// CheckBackInput builds the input-gradient kernel of w for cfg.Target, runs it on
// uniform random data and compares it with reference.DepthwiseInputGrad.
func CheckBackInput(ctx context.Context, cfg Config, w Workload) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	gradShape, err := w.GradShape()
	if err != nil {
		return Result{}, err
	}
	filter := kernel.Placeholder("Filter", w.FilterShape(), tensor.Float32)
	outGrad := kernel.Placeholder("Out_grad", gradShape, tensor.Float32)
	op, err := kernel.BackInput(filter, outGrad, w.InputShape(), w.StridePair(), w.PaddingPair())
	if err != nil {
		return Result{}, errors.Wrapf(err, "declare %s", w)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	gradData := tensor.Uniform(gradShape, tensor.Float32, tensor.CPU, rng)
	filterData := tensor.Uniform(w.FilterShape(), tensor.Float32, tensor.CPU, rng)

	return run(ctx, cfg, w, op, cfg.rtol(BackInputRTol), []*tensor.RawTensor{filterData, gradData},
		func() (*tensor.RawTensor, error) {
			return reference.DepthwiseInputGrad(filterData, gradData, w.InputShape(), w.StridePair(), w.PaddingPair())
		})
}

// CheckBackWeight builds the weight-gradient kernel of w for cfg.Target, runs it on
// uniform random data and compares it with reference.DepthwiseWeightGrad.
func CheckBackWeight(ctx context.Context, cfg Config, w Workload) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	gradShape, err := w.GradShape()
	if err != nil {
		return Result{}, err
	}
	input := kernel.Placeholder("Input", w.InputShape(), tensor.Float32)
	outGrad := kernel.Placeholder("Out_grad", gradShape, tensor.Float32)
	op, err := kernel.BackWeight(input, outGrad, w.FilterShape(), w.StridePair(), w.PaddingPair())
	if err != nil {
		return Result{}, errors.Wrapf(err, "declare %s", w)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	gradData := tensor.Uniform(gradShape, tensor.Float32, tensor.CPU, rng)
	inputData := tensor.Uniform(w.InputShape(), tensor.Float32, tensor.CPU, rng)

	return run(ctx, cfg, w, op, cfg.rtol(BackWeightRTol), []*tensor.RawTensor{inputData, gradData},
		func() (*tensor.RawTensor, error) {
			return reference.DepthwiseWeightGrad(inputData, gradData, w.FilterSize, w.FilterSize, w.StridePair(), w.PaddingPair())
		})
}

// run builds op, times it on args, computes the reference and compares.
func run(ctx context.Context, cfg Config, w Workload, op *kernel.Op, rtol float64,
	args []*tensor.RawTensor, ref func() (*tensor.RawTensor, error)) (Result, error) {
	result := Result{Workload: w, Target: cfg.Target}

	exe, err := kernel.Build(op, cfg.Target)
	if err != nil {
		if errors.Is(err, kernel.ErrDeviceUnavailable) {
			return result, &SkipError{Target: cfg.Target, Err: err}
		}
		return result, errors.Wrapf(err, "build %s for %s", w, cfg.Target)
	}
	defer exe.Release()

	if cfg.DumpDir != "" {
		if result.Source, err = DumpSource(cfg.DumpDir, Task, exe); err != nil {
			return result, err
		}
	}

	if klog.V(2).Enabled() {
		var bytes int
		for _, a := range args {
			bytes += a.ByteSize()
		}
		klog.Infof("%s on %s: %s output elements, %s of inputs", op.Name(), cfg.Target,
			humanize.Comma(int64(op.Output.Shape.NumElements())), humanize.Bytes(uint64(bytes)))
	}

	if result.Timing, err = kernel.TimeEvaluator(exe, cfg.Repeat)(args...); err != nil {
		return result, errors.Wrapf(err, "run %s", w)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	start := time.Now()
	want, err := ref()
	if err != nil {
		return result, errors.Wrapf(err, "reference %s", w)
	}
	klog.V(2).Infof("%s reference computed in %s", op.Name(), time.Since(start))

	result.Stats = Diff(result.Timing.Output.Float64s(), want.Float64s())
	if err := AllClose(result.Timing.Output, want, rtol, cfg.ATol); err != nil {
		return result, err
	}
	return result, nil
}

// DumpSource writes the generated source of exe to <dir>/<task>_generated.<ext>,
// creating dir if needed, and returns the file path.
func DumpSource(dir, task string, exe *kernel.Executable) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create %s", dir)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_generated.%s", task, exe.SourceExt()))
	if err := os.WriteFile(path, []byte(exe.Source()), 0o644); err != nil { //nolint:gosec // generated source is not secret
		return "", errors.Wrapf(err, "write %s", path)
	}
	klog.V(2).Infof("wrote %s (%s)", path, humanize.Bytes(uint64(len(exe.Source()))))
	return path, nil
}
