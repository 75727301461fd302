package env

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/raywave3d/raywave/rt/core"
	"github.com/raywave3d/raywave/rt/gpu"
)

// stParams is the scalar parameter block of the create-primitives kernel.
//
// Matches WGSL STParams
// struct STParams {
//    origin : vec3<f32>;     voxel_size : f32; (16)
//    dims : vec3<u32>;       ie_count : u32;   (16)
//    aabb_bias : f32;        pad : f32[3];     (16)
// }; -> 48 bytes
type stParams struct {
	VoxelWorld core.VoxelWorldInfo
	IeCount    uint32
	AabbBias   float32
}

const stParamsStride = 48

func encodeSTParams(p stParams) []byte {
	buf := make([]byte, stParamsStride)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(p.VoxelWorld.Origin.X()))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(p.VoxelWorld.Origin.Y()))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(p.VoxelWorld.Origin.Z()))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(p.VoxelWorld.Size))
	binary.LittleEndian.PutUint32(buf[16:20], p.VoxelWorld.Dimensions[0])
	binary.LittleEndian.PutUint32(buf[20:24], p.VoxelWorld.Dimensions[1])
	binary.LittleEndian.PutUint32(buf[24:28], p.VoxelWorld.Dimensions[2])
	binary.LittleEndian.PutUint32(buf[28:32], p.IeCount)
	binary.LittleEndian.PutUint32(buf[32:36], math.Float32bits(p.AabbBias))
	return buf
}

func decodeSTParams(buf []byte) stParams {
	origin := mgl32.Vec3{
		math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4])),
		math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8])),
		math.Float32frombits(binary.LittleEndian.Uint32(buf[8:12])),
	}
	size := math.Float32frombits(binary.LittleEndian.Uint32(buf[12:16]))
	dims := [3]uint32{
		binary.LittleEndian.Uint32(buf[16:20]),
		binary.LittleEndian.Uint32(buf[20:24]),
		binary.LittleEndian.Uint32(buf[24:28]),
	}
	return stParams{
		VoxelWorld: core.NewVoxelWorldInfo(origin, size, dims),
		IeCount:    binary.LittleEndian.Uint32(buf[28:32]),
		AabbBias:   math.Float32frombits(binary.LittleEndian.Uint32(buf[32:36])),
	}
}

func encodeIeHeads(heads []ieHead) []byte {
	out := make([]byte, len(heads)*8)
	for i, h := range heads {
		binary.LittleEndian.PutUint32(out[i*8:], h.Head)
		binary.LittleEndian.PutUint32(out[i*8+4:], h.Count)
	}
	return out
}

func decodeIeHeads(data []byte) []ieHead {
	heads := make([]ieHead, len(data)/8)
	for i := range heads {
		heads[i].Head = binary.LittleEndian.Uint32(data[i*8:])
		heads[i].Count = binary.LittleEndian.Uint32(data[i*8+4:])
	}
	return heads
}

type stCounters struct {
	PrimitiveCount uint32
	PointCount     uint32
}

func decodeCounters(data []byte) stCounters {
	return stCounters{
		PrimitiveCount: binary.LittleEndian.Uint32(data[0:4]),
		PointCount:     binary.LittleEndian.Uint32(data[4:8]),
	}
}

// CreatePrimitivesWGSL is the device form of the primitive-creation kernel:
// one invocation per interaction element, each walking its intrusive point
// list to emit the bounding volume, representative point, metadata and
// packed member points.
const CreatePrimitivesWGSL = `
struct STParams {
    origin : vec3<f32>,
    voxel_size : f32,
    dims : vec3<u32>,
    ie_count : u32,
    aabb_bias : f32,
    _pad0 : f32,
    _pad1 : f32,
    _pad2 : f32,
};

struct PointNode {
    position : vec3<f32>,
    label : u32,
    normal : vec3<f32>,
    material : u32,
    ie_next : u32,
    _p0 : u32,
    _p1 : u32,
    _p2 : u32,
};

struct IeHead {
    head : u32,
    count : u32,
};

struct Aabb {
    mn : vec3<f32>,
    _a : f32,
    mx : vec3<f32>,
    _b : f32,
};

struct PrimitivePoint {
    position : vec3<f32>,
    label : u32,
    normal : vec3<f32>,
    material : u32,
};

struct IEPrimitiveInfo {
    point_offset : u32,
    point_count : u32,
    label : u32,
    material : u32,
};

struct Counters {
    primitive_count : atomic<u32>,
    point_count : atomic<u32>,
};

@group(0) @binding(0) var<storage, read> params : STParams;
@group(0) @binding(1) var<storage, read> nodes : array<PointNode>;
@group(0) @binding(2) var<storage, read> heads : array<IeHead>;
@group(0) @binding(3) var<storage, read_write> primitives : array<Aabb>;
@group(0) @binding(4) var<storage, read_write> rt_points : array<vec4<f32>>;
@group(0) @binding(5) var<storage, read_write> infos : array<IEPrimitiveInfo>;
@group(0) @binding(6) var<storage, read_write> points : array<PrimitivePoint>;
@group(0) @binding(7) var<storage, read_write> counters : Counters;

const INVALID_INDEX : u32 = 0xffffffffu;

@compute @workgroup_size(32)
fn create_primitives(@builtin(global_invocation_id) gid : vec3<u32>) {
    let ie = gid.x;
    if (ie >= params.ie_count) {
        return;
    }

    let anchor = heads[ie];
    let offset = atomicAdd(&counters.point_count, anchor.count);
    atomicAdd(&counters.primitive_count, 1u);

    var mn = vec3<f32>(3.40282e38);
    var mx = vec3<f32>(-3.40282e38);
    var centroid = vec3<f32>(0.0);
    var label = INVALID_INDEX;
    var material = INVALID_INDEX;

    var idx = anchor.head;
    var slot = offset;
    while (idx != INVALID_INDEX) {
        let n = nodes[idx];
        mn = min(mn, n.position);
        mx = max(mx, n.position);
        centroid = centroid + n.position;
        label = n.label;
        material = n.material;
        points[slot] = PrimitivePoint(n.position, n.label, n.normal, n.material);
        slot = slot + 1u;
        idx = n.ie_next;
    }

    let bias = vec3<f32>(params.aabb_bias);
    primitives[ie] = Aabb(mn - bias, 0.0, mx + bias, 0.0);
    rt_points[ie] = vec4<f32>(centroid / f32(anchor.count), 0.0);
    infos[ie] = IEPrimitiveInfo(offset, anchor.count, label, material);
}
`

// RegisterKernels installs the create-primitives kernel on the device:
// compiled WGSL on a webgpu device, the equivalent host reference
// implementation on a memory device.
func RegisterKernels(dev gpu.Device) error {
	switch d := dev.(type) {
	case *gpu.WebGpuDevice:
		return d.RegisterKernel(gpu.KernelCreatePrimitives, CreatePrimitivesWGSL, "create_primitives")
	case *gpu.MemDevice:
		d.RegisterKernel(gpu.KernelCreatePrimitives, hostCreatePrimitives)
		return nil
	}
	return fmt.Errorf("unsupported device type %T", dev)
}

// hostCreatePrimitives mirrors CreatePrimitivesWGSL on the CPU. Buffer order
// matches the kernel bindings. Point slots are allocated sequentially, which
// is the serial equivalent of the device's atomic allocation.
func hostCreatePrimitives(grid gpu.Dims, buffers []*gpu.MemBuffer) error {
	if len(buffers) != 8 {
		return fmt.Errorf("create-primitives expects 8 buffers, got %d", len(buffers))
	}
	params := decodeSTParams(buffers[0].Bytes())
	nodes := core.DecodePointNodes(buffers[1].Bytes())
	heads := decodeIeHeads(buffers[2].Bytes())

	invocations := grid.X * createPrimitivesWidth
	aabbs := make([]core.Aabb, 0, params.IeCount)
	rtPoints := make([]mgl32.Vec3, 0, params.IeCount)
	infos := make([]core.IEPrimitiveInfo, 0, params.IeCount)
	var points []core.PrimitivePoint
	var counters stCounters

	for ie := uint32(0); ie < params.IeCount && ie < invocations; ie++ {
		anchor := heads[ie]
		offset := counters.PointCount
		counters.PointCount += anchor.Count
		counters.PrimitiveCount++

		bounds := core.Aabb{
			Min: mgl32.Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
			Max: mgl32.Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
		}
		centroid := mgl32.Vec3{}
		label := core.InvalidLabel
		material := core.InvalidMaterial

		for idx := anchor.Head; idx != core.InvalidIndex; idx = nodes[idx].IeNext {
			n := nodes[idx]
			bounds.Grow(n.Position)
			centroid = centroid.Add(n.Position)
			label = n.Label
			material = n.Material
			points = append(points, core.PrimitivePoint{
				Position: n.Position,
				Normal:   n.Normal,
				Label:    n.Label,
				Material: n.Material,
			})
		}

		bounds.Expand(params.AabbBias)
		aabbs = append(aabbs, bounds)
		rtPoints = append(rtPoints, centroid.Mul(1.0/float32(anchor.Count)))
		infos = append(infos, core.IEPrimitiveInfo{
			PointOffset: offset,
			PointCount:  anchor.Count,
			Label:       label,
			Material:    material,
		})
	}

	if err := buffers[3].Upload(core.EncodeAabbs(aabbs)); err != nil {
		return err
	}
	if err := buffers[4].Upload(core.EncodeVec3s(rtPoints)); err != nil {
		return err
	}
	if err := buffers[5].Upload(core.EncodeIEPrimitiveInfos(infos)); err != nil {
		return err
	}
	if err := buffers[6].Upload(core.EncodePrimitivePoints(points)); err != nil {
		return err
	}
	counts := make([]byte, 8)
	binary.LittleEndian.PutUint32(counts[0:4], counters.PrimitiveCount)
	binary.LittleEndian.PutUint32(counts[4:8], counters.PointCount)
	return buffers[7].Upload(counts)
}
