package gpu

import "fmt"

// HostKernel is the CPU form of a compute kernel: it receives the launch
// grid and the bound buffers in the same order a GPU kernel would see them.
type HostKernel func(grid Dims, buffers []*MemBuffer) error

// MemDevice keeps every buffer in host memory and runs registered Go
// functions in place of GPU kernels. It backs headless runs and tests; the
// buffer and launch semantics match WebGpuDevice.
type MemDevice struct {
	kernels map[KernelID]HostKernel
}

func NewMemDevice() *MemDevice {
	return &MemDevice{kernels: make(map[KernelID]HostKernel)}
}

// RegisterKernel installs fn under id, replacing any previous registration.
func (d *MemDevice) RegisterKernel(id KernelID, fn HostKernel) {
	d.kernels[id] = fn
}

func (d *MemDevice) NewBuffer(label string, size uint64) (Buffer, error) {
	if size%4 != 0 {
		size += 4 - size%4
	}
	return &MemBuffer{label: label, data: make([]byte, size)}, nil
}

func (d *MemDevice) NewBufferInit(label string, data []byte) (Buffer, error) {
	buf, err := d.NewBuffer(label, uint64(len(data)))
	if err != nil {
		return nil, err
	}
	copy(buf.(*MemBuffer).data, data)
	return buf, nil
}

func (d *MemDevice) Launch(id KernelID, grid Dims, buffers ...Buffer) error {
	fn, ok := d.kernels[id]
	if !ok {
		return fmt.Errorf("kernel %s not registered", id)
	}
	mbs := make([]*MemBuffer, len(buffers))
	for i, b := range buffers {
		mb, ok := b.(*MemBuffer)
		if !ok {
			return fmt.Errorf("kernel %s: buffer %d is not a host buffer", id, i)
		}
		mbs[i] = mb
	}
	return fn(grid, mbs)
}

func (d *MemDevice) Release() {}

// MemBuffer is a host-memory Buffer. Host kernels may access the backing
// slice directly through Bytes.
type MemBuffer struct {
	label string
	data  []byte
}

func (b *MemBuffer) Size() uint64 { return uint64(len(b.data)) }

func (b *MemBuffer) Upload(data []byte) error {
	if len(data) > len(b.data) {
		return fmt.Errorf("upload of %d bytes exceeds buffer %q size %d", len(data), b.label, len(b.data))
	}
	copy(b.data, data)
	return nil
}

func (b *MemBuffer) Download() ([]byte, error) {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out, nil
}

func (b *MemBuffer) Zero() error {
	clear(b.data)
	return nil
}

// Bytes exposes the backing storage for host kernels.
func (b *MemBuffer) Bytes() []byte { return b.data }

func (b *MemBuffer) Release() {}
