package cpu

import (
	"fmt"

	"github.com/born-ml/dwconv/internal/parallel"
	"github.com/born-ml/dwconv/internal/tensor"
)

// newDWGeometry validates the shapes of a depthwise convolution and derives its
// output size. gradShape may be nil for the forward pass.
func newDWGeometry(op string, inShape, filterShape, gradShape tensor.Shape, stride, padding [2]int) tensor.Depthwise {
	g, err := tensor.NewDepthwise(inShape, filterShape, stride, padding)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", op, err))
	}
	if gradShape != nil {
		if err := g.CheckOutputGrad(gradShape); err != nil {
			panic(fmt.Sprintf("%s: %v", op, err))
		}
	}
	return g
}

// DepthwiseConv2D performs the forward depthwise convolution in NHWC layout.
//
// Input shape: [N, H, W, C]
// Filter shape: [KH, KW, C, M]
// Output shape: [N, HOut, WOut, C*M]
//
// Each input channel c is convolved with its own M filters, producing output
// channels c*M .. c*M+M-1. Out-of-range input positions read as zero.
func (cpu *CPUBackend) DepthwiseConv2D(input, filter *tensor.RawTensor, stride, padding [2]int) *tensor.RawTensor {
	g := newDWGeometry("depthwise_conv2d", input.Shape(), filter.Shape(), nil, stride, padding)
	checkDTypes("depthwise_conv2d", input, filter)

	output, err := tensor.NewRaw(g.OutputShape(), input.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("depthwise_conv2d: failed to create output tensor: %v", err))
	}

	switch input.DType() {
	case tensor.Float32:
		depthwiseForward(cpu, g, input.AsFloat32(), filter.AsFloat32(), output.AsFloat32())
	case tensor.Float64:
		depthwiseForward(cpu, g, input.AsFloat64(), filter.AsFloat64(), output.AsFloat64())
	default:
		panic(fmt.Sprintf("depthwise_conv2d: unsupported dtype %s", input.DType()))
	}
	return output
}

// depthwiseForward computes one (batch, channel) plane per work item.
func depthwiseForward[T tensor.Float](cpu *CPUBackend, g tensor.Depthwise, x, f, y []T) {
	outC := g.C * g.M
	cpu.forGrid(g.N, g.C, func(n, c int) {
		xBatch := x[n*g.H*g.W*g.C : (n+1)*g.H*g.W*g.C]
		yBatch := y[n*g.HOut*g.WOut*outC : (n+1)*g.HOut*g.WOut*outC]

		for oh := 0; oh < g.HOut; oh++ {
			for ow := 0; ow < g.WOut; ow++ {
				for m := 0; m < g.M; m++ {
					var sum float64
					for kh := 0; kh < g.KH; kh++ {
						h := oh*g.SH - g.PH + kh
						if h < 0 || h >= g.H {
							continue
						}
						for kw := 0; kw < g.KW; kw++ {
							w := ow*g.SW - g.PW + kw
							if w < 0 || w >= g.W {
								continue
							}
							sum += float64(xBatch[(h*g.W+w)*g.C+c]) * float64(f[((kh*g.KW+kw)*g.C+c)*g.M+m])
						}
					}
					yBatch[(oh*g.WOut+ow)*outC+c*g.M+m] = T(sum)
				}
			}
		}
	})
}

func checkDTypes(op string, a, b *tensor.RawTensor) {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch %s vs %s", op, a.DType(), b.DType()))
	}
}

func (cpu *CPUBackend) forGrid(outer, inner int, f func(o, i int)) {
	parallel.ForGrid(outer, inner, f, cpu.parallel)
}
