package cpu

import (
	"fmt"

	"github.com/born-ml/dwconv/internal/tensor"
)

// DepthwiseConv2DInputBackward computes the gradient w.r.t. the input of a
// depthwise convolution.
//
// Algorithm: transposed convolution by scatter.
//   - For each output gradient position (n, oh, ow, c*M+m):
//   - Distribute grad * filter[kh, kw, c, m] to input position
//     (oh*SH - PH + kh, ow*SW - PW + kw), skipping positions in the padding.
//
// Every (batch, channel) plane of the result only receives contributions from
// the same channel, so planes are computed in parallel.
func (cpu *CPUBackend) DepthwiseConv2DInputBackward(filter, grad *tensor.RawTensor, inShape tensor.Shape, stride, padding [2]int) *tensor.RawTensor {
	g := newDWGeometry("depthwise_conv2d_back_input", inShape, filter.Shape(), grad.Shape(), stride, padding)
	checkDTypes("depthwise_conv2d_back_input", filter, grad)

	inputGrad, err := tensor.NewRaw(inShape, grad.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("depthwise_conv2d_back_input: failed to create gradient tensor: %v", err))
	}

	switch grad.DType() {
	case tensor.Float32:
		depthwiseInputBackward(cpu, g, filter.AsFloat32(), grad.AsFloat32(), inputGrad.AsFloat32())
	case tensor.Float64:
		depthwiseInputBackward(cpu, g, filter.AsFloat64(), grad.AsFloat64(), inputGrad.AsFloat64())
	default:
		panic(fmt.Sprintf("depthwise_conv2d_back_input: unsupported dtype %s", grad.DType()))
	}
	return inputGrad
}

//nolint:gocognit // high complexity inherent to convolution backprop
func depthwiseInputBackward[T tensor.Float](cpu *CPUBackend, g tensor.Depthwise, f, dy, dx []T) {
	outC := g.C * g.M
	cpu.forGrid(g.N, g.C, func(n, c int) {
		// Pre-slice batch planes
		dxBatch := dx[n*g.H*g.W*g.C : (n+1)*g.H*g.W*g.C]
		dyBatch := dy[n*g.HOut*g.WOut*outC : (n+1)*g.HOut*g.WOut*outC]

		for oh := 0; oh < g.HOut; oh++ {
			for ow := 0; ow < g.WOut; ow++ {
				for m := 0; m < g.M; m++ {
					gradVal := dyBatch[(oh*g.WOut+ow)*outC+c*g.M+m]
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
							dxBatch[(h*g.W+w)*g.C+c] += gradVal * f[((kh*g.KW+kw)*g.C+c)*g.M+m]
						}
					}
				}
			}
		}
	})
}

// DepthwiseConv2DWeightBackward computes the gradient w.r.t. the filter of a
// depthwise convolution.
//
// Algorithm: direct accumulation.
//
//	dW[kh, kw, c, m] = sum_{n, oh, ow} X[n, oh*SH-PH+kh, ow*SW-PW+kw, c] * dY[n, oh, ow, c*M+m]
//
// Sums are accumulated in float64 whatever the tensor dtype; one (channel,
// multiplier) filter is computed per work item.
func (cpu *CPUBackend) DepthwiseConv2DWeightBackward(input, grad *tensor.RawTensor, filterShape tensor.Shape, stride, padding [2]int) *tensor.RawTensor {
	g := newDWGeometry("depthwise_conv2d_back_weight", input.Shape(), filterShape, grad.Shape(), stride, padding)
	checkDTypes("depthwise_conv2d_back_weight", input, grad)

	weightGrad, err := tensor.NewRaw(filterShape, grad.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("depthwise_conv2d_back_weight: failed to create gradient tensor: %v", err))
	}

	switch grad.DType() {
	case tensor.Float32:
		depthwiseWeightBackward(cpu, g, input.AsFloat32(), grad.AsFloat32(), weightGrad.AsFloat32())
	case tensor.Float64:
		depthwiseWeightBackward(cpu, g, input.AsFloat64(), grad.AsFloat64(), weightGrad.AsFloat64())
	default:
		panic(fmt.Sprintf("depthwise_conv2d_back_weight: unsupported dtype %s", grad.DType()))
	}
	return weightGrad
}

//nolint:gocognit // high complexity inherent to convolution backprop
func depthwiseWeightBackward[T tensor.Float](cpu *CPUBackend, g tensor.Depthwise, x, dy, dw []T) {
	outC := g.C * g.M
	cpu.forGrid(g.C, g.M, func(c, m int) {
		oc := c*g.M + m
		for kh := 0; kh < g.KH; kh++ {
			for kw := 0; kw < g.KW; kw++ {
				var sum float64
				for n := 0; n < g.N; n++ {
					xBatch := x[n*g.H*g.W*g.C : (n+1)*g.H*g.W*g.C]
					dyBatch := dy[n*g.HOut*g.WOut*outC : (n+1)*g.HOut*g.WOut*outC]
					for oh := 0; oh < g.HOut; oh++ {
						h := oh*g.SH - g.PH + kh
						if h < 0 || h >= g.H {
							continue
						}
						for ow := 0; ow < g.WOut; ow++ {
							w := ow*g.SW - g.PW + kw
							if w < 0 || w >= g.W {
								continue
							}
							sum += float64(xBatch[(h*g.W+w)*g.C+c]) * float64(dyBatch[(oh*g.WOut+ow)*outC+oc])
						}
					}
				}
				dw[((kh*g.KW+kw)*g.C+c)*g.M+m] = T(sum)
			}
		}
	})
}
