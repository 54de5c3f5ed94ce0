// Command dwcheck builds the depthwise convolution gradient kernels for every
// device, runs them and checks them against their references.
//
// It first runs the input-gradient scenario, printing the lowered loop nest and
// dumping the generated source under perf/, then the weight-gradient sweep.
// Any mismatch is fatal. Devices that are not available are skipped.
//
// Logging is controlled by the klog flags, e.g. -v=2 for per-kernel details.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	"github.com/born-ml/dwconv/internal/kernel"
	"github.com/born-ml/dwconv/internal/tensor"
	"github.com/born-ml/dwconv/internal/validate"
)

// perfDir receives the generated kernel sources.
const perfDir = "perf"

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	ctx := context.Background()
	start := time.Now()
	backInput(ctx)
	sweep(ctx)
	klog.Infof("all checks passed in %s", time.Since(start).Round(time.Millisecond))
}

// backInput runs the input-gradient scenario on every device.
func backInput(ctx context.Context) {
	w := validate.BackInputWorkload()
	grad, err := w.GradShape()
	if err != nil {
		klog.Fatalf("%v", err)
	}
	op, err := kernel.BackInput(
		kernel.Placeholder("Filter", w.FilterShape(), tensor.Float32),
		kernel.Placeholder("Out_grad", grad, tensor.Float32),
		w.InputShape(), w.StridePair(), w.PaddingPair())
	if err != nil {
		klog.Fatalf("%v", err)
	}
	fmt.Println(kernel.Lower(op))

	for _, target := range kernel.Targets() {
		cfg := validate.DefaultConfig()
		cfg.Target = target
		cfg.DumpDir = perfDir
		result, ok := check(validate.CheckBackInput(ctx, cfg, w))
		if !ok {
			continue
		}
		klog.V(1).Infof("%s on %s: %s, source in %s", op.Name(), target, result.Timing, result.Source)
		fmt.Println("success")
	}
}

// sweep runs the weight-gradient workloads on every device.
func sweep(ctx context.Context) {
	workloads := validate.BackWeightWorkloads()
	targets := kernel.Targets()
	fmt.Println("testing nhwc")

	bar := progressbar.NewOptions(len(workloads)*len(targets),
		progressbar.OptionSetDescription("back-weight sweep"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	var elements int
	for _, target := range targets {
		cfg := validate.DefaultConfig()
		cfg.Target = target
		for _, w := range workloads {
			result, ok := check(validate.CheckBackWeight(ctx, cfg, w))
			_ = bar.Add(1)
			if !ok {
				// One skip message per device.
				_ = bar.Add(len(workloads) - 1)
				break
			}
			elements += result.Timing.Output.NumElements()
			_ = bar.Clear()
			fmt.Println(result.LogLine())
			fmt.Println("success")
		}
	}
	_ = bar.Finish()
	klog.V(1).Infof("sweep checked %s weight-gradient elements", humanize.Comma(int64(elements)))
}

// check prints the result of a check. A skipped device returns false; a
// mismatch or any other error ends the process.
func check(result validate.Result, err error) (validate.Result, bool) {
	var mismatch *validate.MismatchError
	switch {
	case err == nil:
		return result, true
	case errors.Is(err, validate.ErrSkipped):
		fmt.Println(err)
		return result, false
	case errors.As(err, &mismatch):
		fmt.Println(result.LogLine())
		klog.Exitf("%s on %s: %v", result.Workload, result.Target, err)
	default:
		klog.Fatalf("%s on %s: %+v", result.Workload, result.Target, err)
	}
	return result, false
}
