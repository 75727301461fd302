// Package env turns a raw point cloud into the GPU-resident structures the
// ray-tracing stages consume: voxel-grouped interaction elements, their
// bounding primitives, and the acceleration structure built over them.
package env

import (
	"errors"
	"fmt"

	"github.com/raywave3d/raywave/rt/bvh"
	"github.com/raywave3d/raywave/rt/core"
	"github.com/raywave3d/raywave/rt/gpu"
)

// DefaultAabbExpand pads the environment bounding box on every side so edge
// points never sit exactly on a voxel boundary.
const DefaultAabbExpand = 0.01

// Workgroup width of the create-primitives kernel, one invocation per IE.
const createPrimitivesWidth = 32

// Logger is the subset of the root logger the environment reports through.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// AccelBuilder requests acceleration-structure construction over a buffer of
// bounding volumes.
type AccelBuilder interface {
	BuildFromBoundingVolumes(primitives gpu.Buffer, count uint32) (bvh.Handle, bool)
}

// EnvironmentData is the device-resident view handed to the ray-tracing
// kernels: handles plus counts, no host copies.
type EnvironmentData struct {
	Accel           bvh.Handle
	VoxelWorld      core.VoxelWorldInfo
	Primitives      gpu.Buffer
	RtPoints        gpu.Buffer
	PrimitiveInfos  gpu.Buffer
	PrimitivePoints gpu.Buffer
	IeCount         uint32
	PointCount      uint32
}

// PointCloudEnvironment owns the grouped representation of one environment.
// Not safe for concurrent use; independent instances share nothing.
type PointCloudEnvironment struct {
	dev     gpu.Device
	builder AccelBuilder
	log     Logger

	aabb       core.Aabb
	voxelWorld core.VoxelWorldInfo
	ieCount    uint32
	pointCount uint32

	primitiveBuf      gpu.Buffer
	rtPointBuf        gpu.Buffer
	primitiveInfoBuf  gpu.Buffer
	primitivePointBuf gpu.Buffer
	accel             bvh.Handle
}

func NewPointCloudEnvironment(dev gpu.Device, builder AccelBuilder, log Logger) *PointCloudEnvironment {
	if log == nil {
		log = nopLogger{}
	}
	return &PointCloudEnvironment{dev: dev, builder: builder, log: log}
}

type nopLogger struct{}

func (nopLogger) Debugf(format string, args ...any) {}
func (nopLogger) Infof(format string, args ...any)  {}
func (nopLogger) Errorf(format string, args ...any) {}

// Init runs the grouping pipeline: bounding box, voxel world, interaction
// element linking, primitive generation and acceleration-structure build.
// On error no partial state is exposed; the environment stays usable for a
// re-invocation with corrected parameters.
func (e *PointCloudEnvironment) Init(points []core.PointData, voxelSize float32, aabbBias float32) error {
	if len(points) < 2 {
		return fmt.Errorf("point cloud has %d points, need at least 2", len(points))
	}

	nodes, aabb := loadPoints(points)

	voxelWorld := core.VoxelWorldFor(aabb, voxelSize)
	if !voxelWorld.Valid() {
		e.log.Errorf("failed to compute voxel world: voxel size %v, dimensions %v", voxelSize, voxelWorld.Dimensions)
		return fmt.Errorf("degenerate voxel world: size %v, dimensions %v", voxelSize, voxelWorld.Dimensions)
	}

	heads, ieCount := linkPointNodes(nodes, voxelWorld)
	e.log.Debugf("grouped %d points into %d interaction elements", len(nodes), ieCount)

	rtData, err := e.generateRayTracingData(nodes, heads, ieCount, voxelWorld, aabbBias)
	if err != nil {
		e.log.Errorf("failed to generate ray tracing data: %v", err)
		return err
	}

	e.releaseBuffers()
	e.aabb = aabb
	e.voxelWorld = voxelWorld
	e.ieCount = ieCount
	e.pointCount = rtData.PointCount
	e.primitiveBuf = rtData.Primitives
	e.rtPointBuf = rtData.RtPoints
	e.primitiveInfoBuf = rtData.PrimitiveInfos
	e.primitivePointBuf = rtData.PrimitivePoints
	e.accel = rtData.Accel
	e.log.Infof("environment ready: %d IEs over %d points, %d voxels", ieCount, rtData.PointCount, voxelWorld.Count)
	return nil
}

// EnvironmentData returns the device-side view of the initialized
// environment.
func (e *PointCloudEnvironment) EnvironmentData() EnvironmentData {
	return EnvironmentData{
		Accel:           e.accel,
		VoxelWorld:      e.voxelWorld,
		Primitives:      e.primitiveBuf,
		RtPoints:        e.rtPointBuf,
		PrimitiveInfos:  e.primitiveInfoBuf,
		PrimitivePoints: e.primitivePointBuf,
		IeCount:         e.ieCount,
		PointCount:      e.pointCount,
	}
}

// Aabb returns the biased bounding box of the loaded cloud.
func (e *PointCloudEnvironment) Aabb() core.Aabb { return e.aabb }

// VoxelWorld returns the grid covering the loaded cloud.
func (e *PointCloudEnvironment) VoxelWorld() core.VoxelWorldInfo { return e.voxelWorld }

// IeCount returns the number of discovered interaction elements.
func (e *PointCloudEnvironment) IeCount() uint32 { return e.ieCount }

// PointCount returns the processed-point count read back from the device.
func (e *PointCloudEnvironment) PointCount() uint32 { return e.pointCount }

// Release frees all device buffers owned by the environment.
func (e *PointCloudEnvironment) Release() {
	e.releaseBuffers()
}

func (e *PointCloudEnvironment) releaseBuffers() {
	for _, b := range []gpu.Buffer{e.primitiveBuf, e.rtPointBuf, e.primitiveInfoBuf, e.primitivePointBuf} {
		if b != nil {
			b.Release()
		}
	}
	if e.accel.Valid() {
		e.accel.Nodes.Release()
	}
	e.primitiveBuf, e.rtPointBuf, e.primitiveInfoBuf, e.primitivePointBuf = nil, nil, nil, nil
	e.accel = bvh.Handle{}
}

// Ray-tracing stage dispatch. Each call blocks until the device completes
// the grid; kernel parameter layouts are owned by the registered kernels.

func (e *PointCloudEnvironment) ComputeVisibility(grid gpu.Dims, buffers ...gpu.Buffer) error {
	return e.dev.Launch(gpu.KernelVisibility, grid, buffers...)
}

func (e *PointCloudEnvironment) DetermineLosPaths(grid gpu.Dims, buffers ...gpu.Buffer) error {
	return e.dev.Launch(gpu.KernelTransmitLOS, grid, buffers...)
}

func (e *PointCloudEnvironment) Transmit(grid gpu.Dims, buffers ...gpu.Buffer) error {
	return e.dev.Launch(gpu.KernelTransmit, grid, buffers...)
}

func (e *PointCloudEnvironment) Propagate(grid gpu.Dims, buffers ...gpu.Buffer) error {
	return e.dev.Launch(gpu.KernelPropagate, grid, buffers...)
}

func (e *PointCloudEnvironment) RefineSpecular(grid gpu.Dims, buffers ...gpu.Buffer) error {
	return e.dev.Launch(gpu.KernelRefineSpecular, grid, buffers...)
}

func (e *PointCloudEnvironment) RefineScatterer(grid gpu.Dims, buffers ...gpu.Buffer) error {
	return e.dev.Launch(gpu.KernelRefineScatterer, grid, buffers...)
}

func (e *PointCloudEnvironment) RefineDiffraction(grid gpu.Dims, buffers ...gpu.Buffer) error {
	return e.dev.Launch(gpu.KernelRefineDiffraction, grid, buffers...)
}

// loadPoints converts the input cloud to nodes with unset list links and
// accumulates the biased bounding box.
func loadPoints(points []core.PointData) ([]core.PointNode, core.Aabb) {
	nodes := make([]core.PointNode, len(points))
	aabb := core.Aabb{Min: points[0].Position, Max: points[0].Position}
	for i, p := range points {
		nodes[i] = core.PointNode{
			Position: p.Position,
			Normal:   p.Normal,
			Label:    p.Label,
			Material: p.Material,
			IeNext:   core.InvalidIndex,
		}
		aabb.Grow(p.Position)
	}
	aabb.Expand(DefaultAabbExpand)
	return nodes, aabb
}

// ieHead is the per-element list anchor: head index into the node slice and
// member count.
type ieHead struct {
	Head  uint32
	Count uint32
}

// linkPointNodes threads every node onto its interaction element's list.
// Elements are keyed by (voxel id, label); first occurrence of a key
// allocates the next element id. Prepending makes lists reverse-insertion
// ordered, which is fine for the unordered aggregation they feed.
func linkPointNodes(nodes []core.PointNode, vw core.VoxelWorldInfo) ([]ieHead, uint32) {
	heads := make([]ieHead, 0)
	ieByKey := make(map[uint64]uint32)
	for i := range nodes {
		key := core.GroupKey(vw.WorldToVoxelID(nodes[i].Position), nodes[i].Label)
		ie, ok := ieByKey[key]
		if !ok {
			ie = uint32(len(heads))
			ieByKey[key] = ie
			heads = append(heads, ieHead{Head: core.InvalidIndex})
		}
		nodes[i].IeNext = heads[ie].Head
		heads[ie].Head = uint32(i)
		heads[ie].Count++
	}
	return heads, uint32(len(heads))
}

type rayTracingData struct {
	Primitives      gpu.Buffer
	RtPoints        gpu.Buffer
	PrimitiveInfos  gpu.Buffer
	PrimitivePoints gpu.Buffer
	Accel           bvh.Handle
	PointCount      uint32
}

// generateRayTracingData sizes device buffers from the discovered counts,
// runs the create-primitives kernel (one invocation per IE) and requests the
// acceleration-structure build.
func (e *PointCloudEnvironment) generateRayTracingData(nodes []core.PointNode, heads []ieHead, ieCount uint32, vw core.VoxelWorldInfo, aabbBias float32) (rayTracingData, error) {
	var out rayTracingData
	ok := false
	defer func() {
		if !ok {
			for _, b := range []gpu.Buffer{out.Primitives, out.RtPoints, out.PrimitiveInfos, out.PrimitivePoints} {
				if b != nil {
					b.Release()
				}
			}
		}
	}()

	var err error
	if out.Primitives, err = e.dev.NewBuffer("ie primitives", uint64(ieCount)*core.AabbStride); err != nil {
		return out, err
	}
	if out.RtPoints, err = e.dev.NewBuffer("rt points", uint64(ieCount)*16); err != nil {
		return out, err
	}
	if out.PrimitiveInfos, err = e.dev.NewBuffer("primitive infos", uint64(ieCount)*core.IEPrimitiveInfoStride); err != nil {
		return out, err
	}
	if out.PrimitivePoints, err = e.dev.NewBuffer("primitive points", uint64(len(nodes))*core.PrimitivePointStride); err != nil {
		return out, err
	}

	paramsBuf, err := e.dev.NewBufferInit("st params", encodeSTParams(stParams{
		VoxelWorld: vw,
		IeCount:    ieCount,
		AabbBias:   aabbBias,
	}))
	if err != nil {
		return out, err
	}
	defer paramsBuf.Release()

	nodeBuf, err := e.dev.NewBufferInit("point nodes", core.EncodePointNodes(nodes))
	if err != nil {
		return out, err
	}
	defer nodeBuf.Release()

	headBuf, err := e.dev.NewBufferInit("ie heads", encodeIeHeads(heads))
	if err != nil {
		return out, err
	}
	defer headBuf.Release()

	counterBuf, err := e.dev.NewBuffer("st counters", 8)
	if err != nil {
		return out, err
	}
	defer counterBuf.Release()
	if err := counterBuf.Zero(); err != nil {
		return out, err
	}

	grid := gpu.WorkgroupsFor(ieCount, createPrimitivesWidth)
	err = e.dev.Launch(gpu.KernelCreatePrimitives, grid,
		paramsBuf, nodeBuf, headBuf,
		out.Primitives, out.RtPoints, out.PrimitiveInfos, out.PrimitivePoints,
		counterBuf)
	if err != nil {
		return out, fmt.Errorf("create-primitives launch: %w", err)
	}

	handle, valid := e.builder.BuildFromBoundingVolumes(out.Primitives, ieCount)
	if !valid {
		return out, errors.New("acceleration structure build failed")
	}
	out.Accel = handle

	counts, err := counterBuf.Download()
	if err != nil {
		out.Accel.Nodes.Release()
		out.Accel = bvh.Handle{}
		return out, fmt.Errorf("counter readback: %w", err)
	}
	out.PointCount = decodeCounters(counts).PointCount
	ok = true
	return out, nil
}
