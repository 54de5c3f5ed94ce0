// Package webgpu runs the depthwise convolution kernels as WGSL compute shaders.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
package webgpu

import (
	"bytes"
	"errors"
	"fmt"
	"text/template"

	"github.com/born-ml/dwconv/internal/tensor"
)

// ErrUnavailable is returned when no WebGPU adapter can be acquired.
var ErrUnavailable = errors.New("webgpu: device not available")

// workgroupSize is the number of invocations per workgroup.
const workgroupSize = 256

// maxWorkgroups bounds the x dimension of a dispatch.
const maxWorkgroups = 65535

// Kernel names, also used as shader cache keys.
const (
	BackInputKernel  = "depthwise_conv2d_back_input_nhwc"
	BackWeightKernel = "depthwise_conv2d_back_weight_nhwc"
)

// shaderParams are the constants baked into a generated shader.
type shaderParams struct {
	tensor.Depthwise
	Name  string
	CM    int
	Total int
	Size  int
}

func newShaderParams(name string, d tensor.Depthwise, total int) shaderParams {
	return shaderParams{Depthwise: d, Name: name, CM: d.C * d.M, Total: total, Size: workgroupSize}
}

// backInputTemplate gathers dX[n, h, w, c] from every output gradient
// position whose filter window covers (h, w). One invocation per input element.
var backInputTemplate = template.Must(template.New(BackInputKernel).Parse(`// {{.Name}}
// in_grad[{{.N}},{{.H}},{{.W}},{{.C}}] filter[{{.KH}},{{.KW}},{{.C}},{{.M}}] out_grad[{{.N}},{{.HOut}},{{.WOut}},{{.CM}}]
// stride[{{.SH}},{{.SW}}] padding[{{.PH}},{{.PW}}]
@group(0) @binding(0) var<storage, read> weight: array<f32>;
@group(0) @binding(1) var<storage, read> out_grad: array<f32>;
@group(0) @binding(2) var<storage, read_write> in_grad: array<f32>;

@compute @workgroup_size({{.Size}})
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx >= {{.Total}}u) {
        return;
    }
    let c = i32(idx % {{.C}}u);
    let w = i32((idx / {{.C}}u) % {{.W}}u);
    let h = i32((idx / {{.C}}u / {{.W}}u) % {{.H}}u);
    let n = i32(idx / {{.C}}u / {{.W}}u / {{.H}}u);

    var sum: f32 = 0.0;
    for (var kh: i32 = 0; kh < {{.KH}}; kh = kh + 1) {
        let th = h + {{.PH}} - kh;
        if (th < 0 || th % {{.SH}} != 0) {
            continue;
        }
        let oh = th / {{.SH}};
        if (oh >= {{.HOut}}) {
            continue;
        }
        for (var kw: i32 = 0; kw < {{.KW}}; kw = kw + 1) {
            let tw = w + {{.PW}} - kw;
            if (tw < 0 || tw % {{.SW}} != 0) {
                continue;
            }
            let ow = tw / {{.SW}};
            if (ow >= {{.WOut}}) {
                continue;
            }
            let g = ((n * {{.HOut}} + oh) * {{.WOut}} + ow) * {{.CM}} + c * {{.M}};
            let f = ((kh * {{.KW}} + kw) * {{.C}} + c) * {{.M}};
            for (var m: i32 = 0; m < {{.M}}; m = m + 1) {
                sum = sum + out_grad[g + m] * weight[f + m];
            }
        }
    }
    in_grad[idx] = sum;
}
`))

// backWeightTemplate reduces dW[kh, kw, c, m] over batch and output positions.
// One invocation per filter element.
var backWeightTemplate = template.Must(template.New(BackWeightKernel).Parse(`// {{.Name}}
// in[{{.N}},{{.H}},{{.W}},{{.C}}] weight_grad[{{.KH}},{{.KW}},{{.C}},{{.M}}] out_grad[{{.N}},{{.HOut}},{{.WOut}},{{.CM}}]
// stride[{{.SH}},{{.SW}}] padding[{{.PH}},{{.PW}}]
@group(0) @binding(0) var<storage, read> in_data: array<f32>;
@group(0) @binding(1) var<storage, read> out_grad: array<f32>;
@group(0) @binding(2) var<storage, read_write> weight_grad: array<f32>;

@compute @workgroup_size({{.Size}})
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx >= {{.Total}}u) {
        return;
    }
    let m = i32(idx % {{.M}}u);
    let c = i32((idx / {{.M}}u) % {{.C}}u);
    let kw = i32((idx / {{.M}}u / {{.C}}u) % {{.KW}}u);
    let kh = i32(idx / {{.M}}u / {{.C}}u / {{.KW}}u);
    let oc = c * {{.M}} + m;

    var sum: f32 = 0.0;
    for (var n: i32 = 0; n < {{.N}}; n = n + 1) {
        for (var oh: i32 = 0; oh < {{.HOut}}; oh = oh + 1) {
            let h = oh * {{.SH}} - {{.PH}} + kh;
            if (h < 0 || h >= {{.H}}) {
                continue;
            }
            for (var ow: i32 = 0; ow < {{.WOut}}; ow = ow + 1) {
                let w = ow * {{.SW}} - {{.PW}} + kw;
                if (w < 0 || w >= {{.W}}) {
                    continue;
                }
                sum = sum + in_data[((n * {{.H}} + h) * {{.W}} + w) * {{.C}} + c]
                    * out_grad[((n * {{.HOut}} + oh) * {{.WOut}} + ow) * {{.CM}} + oc];
            }
        }
    }
    weight_grad[idx] = sum;
}
`))

// BackInputShader generates the WGSL source of the input-gradient kernel for d.
func BackInputShader(d tensor.Depthwise) string {
	return render(backInputTemplate, newShaderParams(BackInputKernel, d, d.N*d.H*d.W*d.C))
}

// BackWeightShader generates the WGSL source of the weight-gradient kernel for d.
func BackWeightShader(d tensor.Depthwise) string {
	return render(backWeightTemplate, newShaderParams(BackWeightKernel, d, d.KH*d.KW*d.C*d.M))
}

func render(t *template.Template, p shaderParams) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, p); err != nil {
		panic(fmt.Sprintf("webgpu: render %s: %v", t.Name(), err))
	}
	return buf.String()
}

// workgroups returns the number of workgroups covering total invocations.
func workgroups(total int) (uint32, error) {
	n := (total + workgroupSize - 1) / workgroupSize
	if n > maxWorkgroups {
		return 0, fmt.Errorf("webgpu: %d invocations exceed the dispatch limit", total)
	}
	return uint32(n), nil //nolint:gosec // G115: bounded by maxWorkgroups
}
