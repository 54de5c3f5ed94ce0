package reference

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/dwconv/internal/signal"
	"github.com/born-ml/dwconv/internal/tensor"
)

// config is one depthwise convolution geometry.
type config struct {
	batch, channels, inH, inW, multiplier, filterH, filterW int
	stride, padding                                         [2]int
}

func (c config) outSize() (int, int) {
	oh, _ := tensor.ConvOutputSize(c.inH, c.filterH, c.stride[0], c.padding[0])
	ow, _ := tensor.ConvOutputSize(c.inW, c.filterW, c.stride[1], c.padding[1])
	return oh, ow
}

func (c config) tensors(seed int64) (input, filter, grad *tensor.RawTensor) {
	rng := rand.New(rand.NewSource(seed))
	oh, ow := c.outSize()
	input = tensor.Uniform(tensor.Shape{c.batch, c.inH, c.inW, c.channels}, tensor.Float64, tensor.CPU, rng)
	filter = tensor.Uniform(tensor.Shape{c.filterH, c.filterW, c.channels, c.multiplier}, tensor.Float64, tensor.CPU, rng)
	grad = tensor.Uniform(tensor.Shape{c.batch, oh, ow, c.channels * c.multiplier}, tensor.Float64, tensor.CPU, rng)
	return input, filter, grad
}

func (c config) String() string {
	return fmt.Sprintf("b%d_c%d_%dx%d_m%d_k%dx%d_s%v_p%v",
		c.batch, c.channels, c.inH, c.inW, c.multiplier, c.filterH, c.filterW, c.stride, c.padding)
}

// bruteWeightGrad evaluates the weight gradient straight from its definition.
func bruteWeightGrad(c config, input, grad *tensor.RawTensor) []float64 {
	oh, ow := c.outSize()
	x, g := input.Float64s(), grad.Float64s()
	out := make([]float64, c.filterH*c.filterW*c.channels*c.multiplier)
	for kh := 0; kh < c.filterH; kh++ {
		for kw := 0; kw < c.filterW; kw++ {
			for ch := 0; ch < c.channels; ch++ {
				for m := 0; m < c.multiplier; m++ {
					var sum float64
					for b := 0; b < c.batch; b++ {
						for i := 0; i < oh; i++ {
							for j := 0; j < ow; j++ {
								h := i*c.stride[0] - c.padding[0] + kh
								w := j*c.stride[1] - c.padding[1] + kw
								if h < 0 || h >= c.inH || w < 0 || w >= c.inW {
									continue
								}
								sum += x[input.Index(b, h, w, ch)] * g[grad.Index(b, i, j, ch*c.multiplier+m)]
							}
						}
					}
					out[((kh*c.filterW+kw)*c.channels+ch)*c.multiplier+m] = sum
				}
			}
		}
	}
	return out
}

// bruteInputGrad evaluates the input gradient straight from its definition.
func bruteInputGrad(c config, filter, grad *tensor.RawTensor) []float64 {
	oh, ow := c.outSize()
	f, g := filter.Float64s(), grad.Float64s()
	out := make([]float64, c.batch*c.inH*c.inW*c.channels)
	for b := 0; b < c.batch; b++ {
		for i := 0; i < oh; i++ {
			for j := 0; j < ow; j++ {
				for ch := 0; ch < c.channels; ch++ {
					for m := 0; m < c.multiplier; m++ {
						gv := g[grad.Index(b, i, j, ch*c.multiplier+m)]
						for kh := 0; kh < c.filterH; kh++ {
							for kw := 0; kw < c.filterW; kw++ {
								h := i*c.stride[0] - c.padding[0] + kh
								w := j*c.stride[1] - c.padding[1] + kw
								if h < 0 || h >= c.inH || w < 0 || w >= c.inW {
									continue
								}
								out[((b*c.inH+h)*c.inW+w)*c.channels+ch] += gv * f[filter.Index(kh, kw, ch, m)]
							}
						}
					}
				}
			}
		}
	}
	return out
}

var smallConfigs = []config{
	{2, 3, 7, 7, 1, 3, 3, [2]int{1, 1}, [2]int{0, 0}},
	{2, 3, 8, 7, 2, 3, 3, [2]int{2, 2}, [2]int{1, 1}},
	{1, 2, 9, 10, 2, 5, 3, [2]int{3, 2}, [2]int{2, 1}},
	{3, 2, 6, 6, 1, 2, 2, [2]int{2, 2}, [2]int{0, 0}},
	{2, 2, 5, 5, 3, 5, 5, [2]int{1, 1}, [2]int{2, 2}},
	{1, 1, 3, 3, 1, 5, 5, [2]int{1, 1}, [2]int{1, 1}},
	{1, 2, 4, 4, 1, 3, 3, [2]int{3, 3}, [2]int{3, 3}},
}

func TestDilateNHWC(t *testing.T) {
	g, err := tensor.FromSlice([]float64{1, 2, 3, 4}, tensor.Shape{1, 2, 2, 1}, tensor.CPU)
	require.NoError(t, err)

	d, err := DilateNHWC(g, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 3, 4, 1}, d.Shape())
	assert.Equal(t, []float64{
		1, 0, 0, 2,
		0, 0, 0, 0,
		3, 0, 0, 4,
	}, d.AsFloat64())
}

func TestDilateLeavesBatchAndChannel(t *testing.T) {
	g := tensor.Uniform(tensor.Shape{2, 3, 3, 4}, tensor.Float32, tensor.CPU, rand.New(rand.NewSource(1)))
	d, err := DilateNHWC(g, 2, 2)
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{2, 5, 5, 4}, d.Shape())
	assert.Equal(t, tensor.Float32, d.DType())

	src, dst := g.AsFloat32(), d.AsFloat32()
	for b := 0; b < 2; b++ {
		for h := 0; h < 5; h++ {
			for w := 0; w < 5; w++ {
				for c := 0; c < 4; c++ {
					v := dst[d.Index(b, h, w, c)]
					if h%2 == 0 && w%2 == 0 {
						assert.Equal(t, src[g.Index(b, h/2, w/2, c)], v)
					} else {
						assert.Zero(t, v)
					}
				}
			}
		}
	}
}

func TestDilateStrideOneIsCopy(t *testing.T) {
	g := tensor.Uniform(tensor.Shape{2, 4, 5, 3}, tensor.Float64, tensor.CPU, rand.New(rand.NewSource(2)))
	d, err := DilateNHWC(g, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, g.AsFloat64(), d.AsFloat64())
}

func TestDilateErrors(t *testing.T) {
	g := tensor.Zeros(tensor.Shape{1, 2, 2, 1}, tensor.Float64, tensor.CPU)
	_, err := Dilate(g, []int{1, 2})
	assert.Error(t, err)
	_, err = DilateNHWC(g, 0, 1)
	assert.Error(t, err)
}

func TestWeightGradMatchesDefinition(t *testing.T) {
	for i, c := range smallConfigs {
		t.Run(c.String(), func(t *testing.T) {
			input, _, grad := c.tensors(int64(i))
			got, err := DepthwiseWeightGrad(input, grad, c.filterH, c.filterW, c.stride, c.padding)
			require.NoError(t, err)
			assert.Equal(t, tensor.Shape{c.filterH, c.filterW, c.channels, c.multiplier}, got.Shape())
			assert.InDeltaSlice(t, bruteWeightGrad(c, input, grad), got.AsFloat64(), 1e-9)
		})
	}
}

func TestInputGradMatchesDefinition(t *testing.T) {
	for i, c := range smallConfigs {
		t.Run(c.String(), func(t *testing.T) {
			_, filter, grad := c.tensors(int64(100 + i))
			inShape := tensor.Shape{c.batch, c.inH, c.inW, c.channels}
			got, err := DepthwiseInputGrad(filter, grad, inShape, c.stride, c.padding)
			require.NoError(t, err)
			assert.Equal(t, inShape, got.Shape())
			assert.InDeltaSlice(t, bruteInputGrad(c, filter, grad), got.AsFloat64(), 1e-9)
		})
	}
}

// The forward pass and both gradients are adjoint:
// <conv(X, W), G> = <X, dX(W, G)> = <W, dW(X, G)>.
func TestAdjointIdentities(t *testing.T) {
	for i, c := range smallConfigs {
		t.Run(c.String(), func(t *testing.T) {
			input, filter, grad := c.tensors(int64(200 + i))

			out, err := DepthwiseConv2D(input, filter, c.stride, c.padding)
			require.NoError(t, err)
			require.True(t, out.Shape().Equal(grad.Shape()), "forward shape %v, grad shape %v", out.Shape(), grad.Shape())

			dx, err := DepthwiseInputGrad(filter, grad, input.Shape(), c.stride, c.padding)
			require.NoError(t, err)
			dw, err := DepthwiseWeightGrad(input, grad, c.filterH, c.filterW, c.stride, c.padding)
			require.NoError(t, err)

			lhs := tensor.Dot(out, grad)
			assert.InEpsilon(t, lhs, tensor.Dot(input, dx), 1e-9)
			assert.InEpsilon(t, lhs, tensor.Dot(filter, dw), 1e-9)
		})
	}
}

func TestWeightGradZeroInput(t *testing.T) {
	for _, c := range smallConfigs {
		_, _, grad := c.tensors(3)
		input := tensor.Zeros(tensor.Shape{c.batch, c.inH, c.inW, c.channels}, tensor.Float64, tensor.CPU)
		got, err := DepthwiseWeightGrad(input, grad, c.filterH, c.filterW, c.stride, c.padding)
		require.NoError(t, err)
		for _, v := range got.AsFloat64() {
			require.Zero(t, v, c.String())
		}
	}
}

func TestWeightGradZeroOutputGrad(t *testing.T) {
	for _, c := range smallConfigs {
		input, _, grad := c.tensors(4)
		zero := tensor.Zeros(grad.Shape(), tensor.Float64, tensor.CPU)
		got, err := DepthwiseWeightGrad(input, zero, c.filterH, c.filterW, c.stride, c.padding)
		require.NoError(t, err)
		for _, v := range got.AsFloat64() {
			require.Zero(t, v, c.String())
		}
	}
}

// At stride 1 there is nothing to dilate: the weight gradient per channel is the
// batch sum of plain valid correlations of the input with the output gradient.
func TestWeightGradStrideOneIsPlainCorrelation(t *testing.T) {
	c := config{3, 2, 9, 8, 2, 3, 4, [2]int{1, 1}, [2]int{0, 0}}
	input, _, grad := c.tensors(5)
	got, err := DepthwiseWeightGrad(input, grad, c.filterH, c.filterW, c.stride, c.padding)
	require.NoError(t, err)

	x, g := input.Float64s(), grad.Float64s()
	want := make([]float64, got.NumElements())
	for ch := 0; ch < c.channels; ch++ {
		for m := 0; m < c.multiplier; m++ {
			for b := 0; b < c.batch; b++ {
				corr, err := signal.Correlate2D(plane(x, input.Shape(), b, ch), plane(g, grad.Shape(), b, ch*c.multiplier+m), signal.Valid)
				require.NoError(t, err)
				r, cc := corr.Dims()
				require.Equal(t, c.filterH, r)
				require.Equal(t, c.filterW, cc)
				for kh := 0; kh < c.filterH; kh++ {
					for kw := 0; kw < c.filterW; kw++ {
						want[got.Index(kh, kw, ch, m)] += corr.At(kh, kw)
					}
				}
			}
		}
	}
	assert.InDeltaSlice(t, want, got.AsFloat64(), 1e-9)
}

func TestWeightGradLinearInOutputGrad(t *testing.T) {
	for _, c := range smallConfigs {
		input, _, grad := c.tensors(6)
		base, err := DepthwiseWeightGrad(input, grad, c.filterH, c.filterW, c.stride, c.padding)
		require.NoError(t, err)
		scaled, err := DepthwiseWeightGrad(input, tensor.Scale(grad, 3.5), c.filterH, c.filterW, c.stride, c.padding)
		require.NoError(t, err)
		want := tensor.Scale(base, 3.5).AsFloat64()
		assert.InDeltaSlice(t, want, scaled.AsFloat64(), 1e-9, c.String())
	}
}

// The crop offset of the padded case reproduces the parity expression
// (in - filter + (in+stride) mod 2) / 2 on the sweep workloads.
func TestWeightGradCropOffsetSweepTuples(t *testing.T) {
	tuples := []struct{ in, filter, stride, padding int }{
		{17, 3, 1, 1}, {18, 3, 1, 1}, {17, 5, 1, 2}, {18, 5, 1, 2},
		{17, 3, 2, 1}, {18, 3, 2, 1}, {17, 5, 2, 2}, {18, 5, 2, 2},
	}
	for _, tt := range tuples {
		out, err := tensor.ConvOutputSize(tt.in, tt.filter, tt.stride, tt.padding)
		require.NoError(t, err)
		dilated := tensor.DilatedSize(out, tt.stride)
		parity := (tt.in - tt.filter + (tt.in+tt.stride)%2) / 2
		assert.Equal(t, parity, WeightGradCropOffset(dilated, tt.padding), "%+v", tt)
	}
}

// For every even/odd combination of input size and stride, the same-mode crop
// selects the same window as the full-mode derivation (offset dilated-1-padding).
func TestWeightGradCropOffsetMatchesFullMode(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for in := 6; in <= 13; in++ {
		for stride := 1; stride <= 4; stride++ {
			for _, filter := range []int{2, 3, 5} {
				for padding := 1; padding <= 2; padding++ {
					out, err := tensor.ConvOutputSize(in, filter, stride, padding)
					require.NoError(t, err)
					dilated := tensor.DilatedSize(out, stride)
					off := WeightGradCropOffset(dilated, padding)
					if off < 0 || off+filter > in {
						continue
					}

					x := randomPlane(rng, in)
					d := randomPlane(rng, dilated)
					same, err := signal.Correlate2D(x, d, signal.Same)
					require.NoError(t, err)
					full, err := signal.Correlate2D(x, d, signal.Full)
					require.NoError(t, err)
					fullOff := dilated - 1 - padding
					for k := 0; k < filter; k++ {
						assert.InDelta(t, full.At(fullOff+k, fullOff+k), same.At(off+k, off+k), 1e-12,
							"in=%d stride=%d filter=%d padding=%d", in, stride, filter, padding)
					}
				}
			}
		}
	}
}

func TestWeightGradShapeErrors(t *testing.T) {
	input := tensor.Zeros(tensor.Shape{2, 8, 8, 3}, tensor.Float64, tensor.CPU)
	grad := tensor.Zeros(tensor.Shape{2, 6, 6, 3}, tensor.Float64, tensor.CPU)

	_, err := DepthwiseWeightGrad(input, grad, 3, 3, [2]int{2, 2}, [2]int{0, 0})
	assert.Error(t, err, "spatial mismatch")

	_, err = DepthwiseWeightGrad(input, tensor.Zeros(tensor.Shape{2, 6, 6, 4}, tensor.Float64, tensor.CPU), 3, 3, [2]int{1, 1}, [2]int{0, 0})
	assert.Error(t, err, "channel multiple")

	_, err = DepthwiseWeightGrad(input, tensor.Zeros(tensor.Shape{1, 6, 6, 3}, tensor.Float64, tensor.CPU), 3, 3, [2]int{1, 1}, [2]int{0, 0})
	assert.Error(t, err, "batch mismatch")
}

func TestInputGradBackInputScenario(t *testing.T) {
	c := config{1, 16, 32, 32, 2, 5, 5, [2]int{3, 3}, [2]int{2, 2}}
	oh, ow := c.outSize()
	require.Equal(t, 11, oh)
	require.Equal(t, 11, ow)

	_, filter, grad := c.tensors(8)
	got, err := DepthwiseInputGrad(filter, grad, tensor.Shape{1, 32, 32, 16}, c.stride, c.padding)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 32, 32, 16}, got.Shape())
	assert.InDeltaSlice(t, bruteInputGrad(c, filter, grad), got.AsFloat64(), 1e-9)
}

func TestWeightGradSweepScenario(t *testing.T) {
	c := config{17, 32, 17, 17, 1, 3, 3, [2]int{1, 1}, [2]int{1, 1}}
	input, _, grad := c.tensors(9)
	got, err := DepthwiseWeightGrad(input, grad, 3, 3, c.stride, c.padding)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3, 3, 32, 1}, got.Shape())
	assert.InDeltaSlice(t, bruteWeightGrad(c, input, grad), got.AsFloat64(), 1e-8)
}

func randomPlane(rng *rand.Rand, n int) *mat.Dense {
	data := make([]float64, n*n)
	for i := range data {
		data[i] = rng.Float64()
	}
	return mat.NewDense(n, n, data)
}
