// Package reference computes depthwise convolution results (forward, input
// gradient, weight gradient) from 2-D signal primitives. The device kernels are
// checked against these values, so nothing here shares code with them.
//
// All tensors are NHWC. Results are Float64 tensors on the CPU device.
package reference

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/dwconv/internal/signal"
	"github.com/born-ml/dwconv/internal/tensor"
)

// Dilate inserts strides[i]-1 zeros between consecutive elements along every
// axis i of t. A stride of 1 leaves the axis unchanged.
func Dilate(t *tensor.RawTensor, strides []int) (*tensor.RawTensor, error) {
	shape := t.Shape()
	if len(strides) != len(shape) {
		return nil, errors.Errorf("dilate: got %d strides for a rank-%d tensor", len(strides), len(shape))
	}
	outShape := make(tensor.Shape, len(shape))
	for i, s := range strides {
		if s <= 0 {
			return nil, errors.Errorf("dilate: stride %d at axis %d must be positive", s, i)
		}
		outShape[i] = tensor.DilatedSize(shape[i], s)
	}

	out, err := tensor.NewRaw(outShape, t.DType(), t.Device())
	if err != nil {
		return nil, errors.Wrap(err, "dilate")
	}
	src, dst := t.Float64s(), make([]float64, out.NumElements())
	inStrides, outStrides := shape.ComputeStrides(), outShape.ComputeStrides()
	for i, v := range src {
		rem, j := i, 0
		for axis := range shape {
			coord := rem / inStrides[axis]
			rem %= inStrides[axis]
			j += coord * strides[axis] * outStrides[axis]
		}
		dst[j] = v
	}
	storeFloat64s(out, dst)
	return out, nil
}

// DilateNHWC dilates the spatial axes of an NHWC tensor, leaving batch and channel untouched.
func DilateNHWC(t *tensor.RawTensor, strideH, strideW int) (*tensor.RawTensor, error) {
	return Dilate(t, []int{1, strideH, strideW, 1})
}

// WeightGradCropOffset returns where the filter window starts inside the
// same-mode correlation of an input with a dilated gradient of spatial size
// dilated, for the given padding.
//
// The weight gradient at filter tap k is the full correlation at index
// dilated-1-padding+k, and the same-mode output starts at full index
// (dilated-1)/2. The result can be negative, in which case the window is not
// inside the same-mode output.
func WeightGradCropOffset(dilated, padding int) int {
	return dilated - 1 - padding - (dilated-1)/2
}

// DepthwiseWeightGrad computes the weight gradient of a depthwise convolution:
// dW[kh, kw, c, m] = sum_b corr(X[b, :, :, c], D[b, :, :, c*M+m]) at (kh-pad_h, kw-pad_w),
// where D is the output gradient dilated by the stride.
//
// Without padding the valid-mode correlation is used and its first filterH x filterW
// entries kept. With padding the same-mode correlation is cropped at
// WeightGradCropOffset, falling back to the full-mode window when that crop would leave
// the same-mode output.
func DepthwiseWeightGrad(input, outGrad *tensor.RawTensor, filterH, filterW int, stride, padding [2]int) (*tensor.RawTensor, error) {
	g, err := newGeometry(input.Shape(), outGrad.Shape(), filterH, filterW, stride, padding)
	if err != nil {
		return nil, errors.Wrap(err, "depthwise weight grad")
	}
	dilated, err := DilateNHWC(outGrad, stride[0], stride[1])
	if err != nil {
		return nil, err
	}
	hd, wd := dilated.Shape()[1], dilated.Shape()[2]

	mode := signal.Valid
	offH, offW := 0, 0
	if padding[0] > 0 || padding[1] > 0 {
		mode = signal.Same
		offH, offW = WeightGradCropOffset(hd, padding[0]), WeightGradCropOffset(wd, padding[1])
		if offH < 0 || offW < 0 || offH+filterH > g.inH || offW+filterW > g.inW {
			mode = signal.Full
			offH, offW = hd-1-padding[0], wd-1-padding[1]
		}
	}

	out := tensor.Zeros(tensor.Shape{filterH, filterW, g.channels, g.multiplier}, tensor.Float64, tensor.CPU)
	outData := out.AsFloat64()
	inData, dData := input.Float64s(), dilated.Float64s()
	for c := 0; c < g.channels; c++ {
		for m := 0; m < g.multiplier; m++ {
			oc := c*g.multiplier + m
			for b := 0; b < g.batch; b++ {
				x := plane(inData, input.Shape(), b, c)
				d := plane(dData, dilated.Shape(), b, oc)
				corr, err := signal.Correlate2D(x, d, mode)
				if err != nil {
					return nil, errors.Wrapf(err, "depthwise weight grad: batch %d channel %d", b, oc)
				}
				for kh := 0; kh < filterH; kh++ {
					for kw := 0; kw < filterW; kw++ {
						outData[out.Index(kh, kw, c, m)] += at(corr, offH+kh, offW+kw)
					}
				}
			}
		}
	}
	return out, nil
}

// DepthwiseInputGrad computes the input gradient of a depthwise convolution:
// dX[b, :, :, c] = sum_m full_conv(D[b, :, :, c*M+m], W[:, :, c, m]) shifted by the padding,
// where D is the output gradient dilated by the stride.
func DepthwiseInputGrad(filter, outGrad *tensor.RawTensor, inShape tensor.Shape, stride, padding [2]int) (*tensor.RawTensor, error) {
	fShape := filter.Shape()
	if len(fShape) != 4 {
		return nil, errors.Errorf("depthwise input grad: filter must be 4D [KH,KW,C,M], got %v", fShape)
	}
	g, err := newGeometry(inShape, outGrad.Shape(), fShape[0], fShape[1], stride, padding)
	if err != nil {
		return nil, errors.Wrap(err, "depthwise input grad")
	}
	if fShape[2] != g.channels || fShape[3] != g.multiplier {
		return nil, errors.Errorf("depthwise input grad: filter %v does not match %d channels x %d multiplier", fShape, g.channels, g.multiplier)
	}
	dilated, err := DilateNHWC(outGrad, stride[0], stride[1])
	if err != nil {
		return nil, err
	}

	out := tensor.Zeros(inShape, tensor.Float64, tensor.CPU)
	outData := out.AsFloat64()
	fData, dData := filter.Float64s(), dilated.Float64s()
	for b := 0; b < g.batch; b++ {
		for c := 0; c < g.channels; c++ {
			for m := 0; m < g.multiplier; m++ {
				d := plane(dData, dilated.Shape(), b, c*g.multiplier+m)
				k := filterPlane(fData, fShape, c, m)
				full, err := signal.Convolve2D(d, k, signal.Full)
				if err != nil {
					return nil, errors.Wrapf(err, "depthwise input grad: batch %d channel %d", b, c)
				}
				fr, fc := full.Dims()
				for h := 0; h < g.inH && h+padding[0] < fr; h++ {
					for w := 0; w < g.inW && w+padding[1] < fc; w++ {
						outData[out.Index(b, h, w, c)] += full.At(h+padding[0], w+padding[1])
					}
				}
			}
		}
	}
	return out, nil
}

// DepthwiseConv2D computes the forward depthwise convolution with zero padding:
// Y[b, oh, ow, c*M+m] = sum_{kh,kw} X[b, oh*sh-ph+kh, ow*sw-pw+kw, c] * W[kh, kw, c, m].
func DepthwiseConv2D(input, filter *tensor.RawTensor, stride, padding [2]int) (*tensor.RawTensor, error) {
	inShape, fShape := input.Shape(), filter.Shape()
	if len(inShape) != 4 || len(fShape) != 4 {
		return nil, errors.Errorf("depthwise conv2d: input and filter must be 4D, got %v and %v", inShape, fShape)
	}
	if inShape[3] != fShape[2] {
		return nil, errors.Errorf("depthwise conv2d: input channels %d != filter channels %d", inShape[3], fShape[2])
	}
	outH, err := tensor.ConvOutputSize(inShape[1], fShape[0], stride[0], padding[0])
	if err != nil {
		return nil, errors.Wrap(err, "depthwise conv2d: height")
	}
	outW, err := tensor.ConvOutputSize(inShape[2], fShape[1], stride[1], padding[1])
	if err != nil {
		return nil, errors.Wrap(err, "depthwise conv2d: width")
	}
	batch, channels, multiplier := inShape[0], inShape[3], fShape[3]

	out := tensor.Zeros(tensor.Shape{batch, outH, outW, channels * multiplier}, tensor.Float64, tensor.CPU)
	outData := out.AsFloat64()
	inData, fData := input.Float64s(), filter.Float64s()
	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			x := padPlane(plane(inData, inShape, b, c), padding[0], padding[1])
			for m := 0; m < multiplier; m++ {
				corr, err := signal.Correlate2D(x, filterPlane(fData, fShape, c, m), signal.Valid)
				if err != nil {
					return nil, errors.Wrapf(err, "depthwise conv2d: batch %d channel %d", b, c)
				}
				for oh := 0; oh < outH; oh++ {
					for ow := 0; ow < outW; ow++ {
						outData[out.Index(b, oh, ow, c*multiplier+m)] = corr.At(oh*stride[0], ow*stride[1])
					}
				}
			}
		}
	}
	return out, nil
}

// geometry holds the dimensions shared by the gradient references.
type geometry struct {
	batch, inH, inW, channels, multiplier int
}

func newGeometry(inShape, gradShape tensor.Shape, filterH, filterW int, stride, padding [2]int) (geometry, error) {
	if len(inShape) != 4 || len(gradShape) != 4 {
		return geometry{}, errors.Errorf("input %v and output gradient %v must be 4D NHWC", inShape, gradShape)
	}
	g := geometry{batch: inShape[0], inH: inShape[1], inW: inShape[2], channels: inShape[3]}
	if gradShape[0] != g.batch {
		return geometry{}, errors.Errorf("batch mismatch: input %d, output gradient %d", g.batch, gradShape[0])
	}
	if gradShape[3]%g.channels != 0 {
		return geometry{}, errors.Errorf("output channels %d not a multiple of input channels %d", gradShape[3], g.channels)
	}
	g.multiplier = gradShape[3] / g.channels

	outH, err := tensor.ConvOutputSize(g.inH, filterH, stride[0], padding[0])
	if err != nil {
		return geometry{}, errors.Wrap(err, "height")
	}
	outW, err := tensor.ConvOutputSize(g.inW, filterW, stride[1], padding[1])
	if err != nil {
		return geometry{}, errors.Wrap(err, "width")
	}
	if gradShape[1] != outH || gradShape[2] != outW {
		return geometry{}, errors.Errorf("output gradient spatial size %dx%d, expected %dx%d", gradShape[1], gradShape[2], outH, outW)
	}
	return g, nil
}

// plane copies the [b, :, :, c] slice of an NHWC buffer into a matrix.
func plane(data []float64, shape tensor.Shape, b, c int) *mat.Dense {
	h, w, ch := shape[1], shape[2], shape[3]
	out := mat.NewDense(h, w, nil)
	base := b * h * w * ch
	for i := 0; i < h; i++ {
		for j := 0; j < w; j++ {
			out.Set(i, j, data[base+(i*w+j)*ch+c])
		}
	}
	return out
}

// filterPlane copies the [:, :, c, m] slice of a [KH, KW, C, M] buffer into a matrix.
func filterPlane(data []float64, shape tensor.Shape, c, m int) *mat.Dense {
	kh, kw, ch, mult := shape[0], shape[1], shape[2], shape[3]
	out := mat.NewDense(kh, kw, nil)
	for i := 0; i < kh; i++ {
		for j := 0; j < kw; j++ {
			out.Set(i, j, data[((i*kw+j)*ch+c)*mult+m])
		}
	}
	return out
}

// at returns m[i, j], or 0 outside of m: taps reaching into the zero padding
// of the full-mode window.
func at(m *mat.Dense, i, j int) float64 {
	r, c := m.Dims()
	if i < 0 || j < 0 || i >= r || j >= c {
		return 0
	}
	return m.At(i, j)
}

// padPlane surrounds m with ph rows and pw columns of zeros on each side.
func padPlane(m *mat.Dense, ph, pw int) *mat.Dense {
	if ph == 0 && pw == 0 {
		return m
	}
	r, c := m.Dims()
	out := mat.NewDense(r+2*ph, c+2*pw, nil)
	out.Slice(ph, ph+r, pw, pw+c).(*mat.Dense).Copy(m)
	return out
}

func storeFloat64s(t *tensor.RawTensor, values []float64) {
	switch t.DType() {
	case tensor.Float32:
		data := t.AsFloat32()
		for i, v := range values {
			data[i] = float32(v)
		}
	case tensor.Float64:
		copy(t.AsFloat64(), values)
	}
}
