//go:build windows

package webgpu

import (
	"fmt"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
)

// pipeline compiles code and returns its compute pipeline. Both are cached by source.
func (b *Backend) pipeline(code string) *wgpu.ComputePipeline {
	b.mu.RLock()
	if p, exists := b.pipelines[code]; exists {
		b.mu.RUnlock()
		return p
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if p, exists := b.pipelines[code]; exists {
		return p
	}
	shader := b.device.CreateShaderModuleWGSL(code)
	b.shaders[code] = shader
	// Auto layout (nil layout).
	p := b.device.CreateComputePipelineSimple(nil, shader, "main")
	b.pipelines[code] = p
	return p
}

// createBuffer creates a storage buffer holding data.
func (b *Backend) createBuffer(data []byte) *wgpu.Buffer {
	size := uint64(len(data))
	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(unsafe.Slice((*byte)(mappedPtr), size), data)
	buffer.Unmap()

	return buffer
}

// readBuffer reads data back from a GPU buffer through a staging buffer,
// since storage buffers can't be mapped directly.
func (b *Backend) readBuffer(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	b.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("webgpu: failed to map staging buffer: %w", err)
	}

	mappedPtr := staging.GetMappedRange(0, size)
	result := make([]byte, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(result, unsafe.Slice((*byte)(mappedPtr), size))
	staging.Unmap()

	return result, nil
}

// dispatch runs code with bindings 0 and 1 holding a and c, and returns the
// outSize bytes written to binding 2. total is the invocation count.
func (b *Backend) dispatch(code string, a, c []byte, outSize uint64, total int) ([]byte, error) {
	groups, err := workgroups(total)
	if err != nil {
		return nil, err
	}
	pipeline := b.pipeline(code)

	bufferA := b.createBuffer(a)
	defer bufferA.Release()
	bufferC := b.createBuffer(c)
	defer bufferC.Release()

	bufferOut := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  outSize,
	})
	defer bufferOut.Release()

	layout := pipeline.GetBindGroupLayout(0)
	bindGroup := b.device.CreateBindGroupSimple(layout, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufferA, 0, uint64(len(a))),
		wgpu.BufferBindingEntry(1, bufferC, 0, uint64(len(c))),
		wgpu.BufferBindingEntry(2, bufferOut, 0, outSize),
	})
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(groups, 1, 1)
	pass.End()
	b.queue.Submit(encoder.Finish(nil))

	return b.readBuffer(bufferOut, outSize)
}
