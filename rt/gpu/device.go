// Package gpu abstracts the device services the tracing core depends on:
// sized buffers with synchronous upload/download, and blocking launches of
// named compute kernels. Two implementations exist, a webgpu-backed device
// and a host-memory device for machines without a GPU.
package gpu

import "fmt"

// KernelID names one compute stage. The core dispatches kernels by id; the
// device implementation owns the pipeline (or host function) registered
// under that id.
type KernelID int

const (
	KernelCreatePrimitives KernelID = iota
	KernelVisibility
	KernelTransmitLOS
	KernelTransmit
	KernelPropagate
	KernelRefineSpecular
	KernelRefineScatterer
	KernelRefineDiffraction
)

func (id KernelID) String() string {
	switch id {
	case KernelCreatePrimitives:
		return "create-primitives"
	case KernelVisibility:
		return "visibility"
	case KernelTransmitLOS:
		return "transmit-los"
	case KernelTransmit:
		return "transmit"
	case KernelPropagate:
		return "propagate"
	case KernelRefineSpecular:
		return "refine-specular"
	case KernelRefineScatterer:
		return "refine-scatterer"
	case KernelRefineDiffraction:
		return "refine-diffraction"
	}
	return fmt.Sprintf("kernel-%d", int(id))
}

// Dims is a launch grid in workgroups.
type Dims struct {
	X, Y, Z uint32
}

// WorkgroupsFor returns a 1D grid wide enough to cover count items at the
// given workgroup width.
func WorkgroupsFor(count, width uint32) Dims {
	if width == 0 {
		width = 1
	}
	return Dims{X: (count + width - 1) / width, Y: 1, Z: 1}
}

// Buffer is a device-resident allocation. Upload and Download are
// synchronous; the data is fully transferred when they return.
type Buffer interface {
	Size() uint64
	Upload(data []byte) error
	Download() ([]byte, error)
	Zero() error
	Release()
}

// Device allocates buffers and runs kernels. Launch blocks until the device
// has finished the grid; there is no overlap between a launch and the
// subsequent read of its outputs.
type Device interface {
	NewBuffer(label string, size uint64) (Buffer, error)
	NewBufferInit(label string, data []byte) (Buffer, error)
	// Launch binds buffers to the kernel's bind group in argument order
	// (binding 0 = first buffer) and dispatches grid workgroups.
	Launch(id KernelID, grid Dims, buffers ...Buffer) error
	Release()
}
