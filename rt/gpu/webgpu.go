package gpu

import (
	"errors"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// WebGpuDevice runs kernels on a real adapter through webgpu compute
// pipelines. It is headless: no surface or swapchain is ever created.
type WebGpuDevice struct {
	adapter   *wgpu.Adapter
	device    *wgpu.Device
	queue     *wgpu.Queue
	pipelines map[KernelID]*wgpu.ComputePipeline
}

// NewWebGpuDevice acquires a high-performance adapter and a device.
func NewWebGpuDevice() (*WebGpuDevice, error) {
	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "raywave device",
	})
	if err != nil {
		return nil, fmt.Errorf("request device: %w", err)
	}

	return &WebGpuDevice{
		adapter:   adapter,
		device:    device,
		queue:     device.GetQueue(),
		pipelines: make(map[KernelID]*wgpu.ComputePipeline),
	}, nil
}

// RegisterKernel compiles source and installs a compute pipeline under id.
func (d *WebGpuDevice) RegisterKernel(id KernelID, source string, entryPoint string) error {
	shader, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          id.String(),
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: source},
	})
	if err != nil {
		return fmt.Errorf("create shader module %s: %w", id, err)
	}
	defer shader.Release()

	pipeline, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: id.String(),
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     shader,
			EntryPoint: entryPoint,
		},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline %s: %w", id, err)
	}
	d.pipelines[id] = pipeline
	return nil
}

func (d *WebGpuDevice) NewBuffer(label string, size uint64) (Buffer, error) {
	// Buffer sizes must be 4-byte aligned.
	if size%4 != 0 {
		size += 4 - size%4
	}
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer %q: %w", label, err)
	}
	return &webGpuBuffer{dev: d, buf: buf, size: size}, nil
}

func (d *WebGpuDevice) NewBufferInit(label string, data []byte) (Buffer, error) {
	buf, err := d.NewBuffer(label, uint64(len(data)))
	if err != nil {
		return nil, err
	}
	if err := buf.Upload(data); err != nil {
		buf.Release()
		return nil, err
	}
	return buf, nil
}

// Launch binds buffers in argument order to bind group 0 and dispatches the
// pipeline registered under id, then blocks until the device is idle.
func (d *WebGpuDevice) Launch(id KernelID, grid Dims, buffers ...Buffer) error {
	pipeline, ok := d.pipelines[id]
	if !ok {
		return fmt.Errorf("kernel %s not registered", id)
	}

	entries := make([]wgpu.BindGroupEntry, 0, len(buffers))
	for i, b := range buffers {
		wb, ok := b.(*webGpuBuffer)
		if !ok {
			return fmt.Errorf("kernel %s: buffer %d is not a webgpu buffer", id, i)
		}
		entries = append(entries, wgpu.BindGroupEntry{
			Binding: uint32(i),
			Buffer:  wb.buf,
			Size:    wgpu.WholeSize,
		})
	}

	layout := pipeline.GetBindGroupLayout(0)
	defer layout.Release()
	bindGroup, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("kernel %s: create bind group: %w", id, err)
	}
	defer bindGroup.Release()

	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("kernel %s: create encoder: %w", id, err)
	}
	defer encoder.Release()

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(grid.X, grid.Y, grid.Z)
	pass.End()

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("kernel %s: finish encoder: %w", id, err)
	}
	d.queue.Submit(cmd)
	d.device.Poll(true, nil)
	return nil
}

func (d *WebGpuDevice) Release() {
	for _, p := range d.pipelines {
		p.Release()
	}
	d.device.Release()
	d.adapter.Release()
}

type webGpuBuffer struct {
	dev  *WebGpuDevice
	buf  *wgpu.Buffer
	size uint64
}

func (b *webGpuBuffer) Size() uint64 { return b.size }

func (b *webGpuBuffer) Upload(data []byte) error {
	if uint64(len(data)) > b.size {
		return fmt.Errorf("upload of %d bytes exceeds buffer size %d", len(data), b.size)
	}
	b.dev.queue.WriteBuffer(b.buf, 0, data)
	return nil
}

func (b *webGpuBuffer) Zero() error {
	return b.Upload(make([]byte, b.size))
}

// Download copies the buffer through a mappable staging buffer and blocks
// until the map completes.
func (b *webGpuBuffer) Download() ([]byte, error) {
	staging, err := b.dev.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "staging",
		Size:  b.size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer staging.Release()

	encoder, err := b.dev.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("create encoder: %w", err)
	}
	defer encoder.Release()
	encoder.CopyBufferToBuffer(b.buf, 0, staging, 0, b.size)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("finish encoder: %w", err)
	}
	b.dev.queue.Submit(cmd)

	mapped := false
	failed := false
	staging.MapAsync(wgpu.MapModeRead, 0, b.size, func(status wgpu.BufferMapAsyncStatus) {
		if status == wgpu.BufferMapAsyncStatusSuccess {
			mapped = true
		} else {
			failed = true
		}
	})
	for !mapped && !failed {
		b.dev.device.Poll(true, nil)
	}
	if failed {
		return nil, errors.New("buffer map failed")
	}
	defer staging.Unmap()

	src := staging.GetMappedRange(0, uint(b.size))
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

func (b *webGpuBuffer) Release() {
	b.buf.Release()
}
