// Package bvh builds the acceleration structure consumed by the ray-tracing
// kernels: a median-split bounding volume hierarchy over the interaction
// element bounding boxes.
package bvh

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/raywave3d/raywave/rt/core"
	"github.com/raywave3d/raywave/rt/gpu"
)

// Matches WGSL BVHNode
// struct BVHNode {
//    aabb_min : vec3<f32>; left : i32;       (16)
//    aabb_max : vec3<f32>; right : i32;      (16)
//    leaf_first : i32; leaf_count : i32;
//    pad : i32[2];                           (16)
// }; -> 48 bytes
const nodeStride = 48

// Node is one hierarchy node. Leaves reference a contiguous run of
// primitives; interior nodes reference children by index.
type Node struct {
	Min       mgl32.Vec3
	Max       mgl32.Vec3
	Left      int32
	Right     int32
	LeafFirst int32
	LeafCount int32
}

func (n *Node) appendTo(buf []byte) []byte {
	var b [nodeStride]byte
	binary.LittleEndian.PutUint32(b[0:4], math.Float32bits(n.Min.X()))
	binary.LittleEndian.PutUint32(b[4:8], math.Float32bits(n.Min.Y()))
	binary.LittleEndian.PutUint32(b[8:12], math.Float32bits(n.Min.Z()))
	binary.LittleEndian.PutUint32(b[12:16], uint32(n.Left))
	binary.LittleEndian.PutUint32(b[16:20], math.Float32bits(n.Max.X()))
	binary.LittleEndian.PutUint32(b[20:24], math.Float32bits(n.Max.Y()))
	binary.LittleEndian.PutUint32(b[24:28], math.Float32bits(n.Max.Z()))
	binary.LittleEndian.PutUint32(b[28:32], uint32(n.Right))
	binary.LittleEndian.PutUint32(b[32:36], uint32(n.LeafFirst))
	binary.LittleEndian.PutUint32(b[36:40], uint32(n.LeafCount))
	return append(buf, b[:]...)
}

// Handle identifies a built acceleration structure: the device-resident node
// array plus counts. The zero Handle is invalid.
type Handle struct {
	ID        string
	Nodes     gpu.Buffer
	NodeCount uint32
	PrimCount uint32
}

// Valid reports whether the handle refers to a completed build.
func (h Handle) Valid() bool { return h.Nodes != nil }

// Builder constructs acceleration structures on a device.
type Builder struct {
	dev gpu.Device
}

func NewBuilder(dev gpu.Device) *Builder {
	return &Builder{dev: dev}
}

// BuildFromBoundingVolumes reads count bounding boxes from primitives,
// builds the hierarchy and uploads the node array. The bool result reports
// build validity; on false the handle must not be used.
func (b *Builder) BuildFromBoundingVolumes(primitives gpu.Buffer, count uint32) (Handle, bool) {
	data, err := primitives.Download()
	if err != nil {
		return Handle{}, false
	}
	aabbs := core.DecodeAabbs(data)
	if uint32(len(aabbs)) < count {
		return Handle{}, false
	}
	aabbs = aabbs[:count]

	nodes := buildNodes(aabbs)
	encoded := make([]byte, 0, len(nodes)*nodeStride)
	for i := range nodes {
		encoded = nodes[i].appendTo(encoded)
	}

	buf, err := b.dev.NewBufferInit(fmt.Sprintf("bvh nodes (%d prims)", count), encoded)
	if err != nil {
		return Handle{}, false
	}
	return Handle{
		ID:        uuid.NewString(),
		Nodes:     buf,
		NodeCount: uint32(len(nodes)),
		PrimCount: count,
	}, true
}

type buildItem struct {
	aabb     core.Aabb
	centroid mgl32.Vec3
	index    int
}

func buildNodes(aabbs []core.Aabb) []Node {
	if len(aabbs) == 0 {
		// Single empty node so traversal always has a root.
		return []Node{{Left: -1, Right: -1, LeafFirst: -1}}
	}
	items := make([]buildItem, len(aabbs))
	for i, a := range aabbs {
		items[i] = buildItem{
			aabb:     a,
			centroid: a.Min.Add(a.Max).Mul(0.5),
			index:    i,
		}
	}
	nodes := make([]Node, 0, 2*len(items))
	splitNode(items, &nodes)
	return nodes
}

func splitNode(items []buildItem, nodes *[]Node) int32 {
	idx := int32(len(*nodes))
	*nodes = append(*nodes, Node{Left: -1, Right: -1, LeafFirst: -1})

	bounds := items[0].aabb
	for _, it := range items[1:] {
		bounds.Grow(it.aabb.Min)
		bounds.Grow(it.aabb.Max)
	}
	(*nodes)[idx].Min = bounds.Min
	(*nodes)[idx].Max = bounds.Max

	if len(items) == 1 {
		(*nodes)[idx].LeafFirst = int32(items[0].index)
		(*nodes)[idx].LeafCount = 1
		return idx
	}

	// Median split along the widest axis.
	extent := bounds.Max.Sub(bounds.Min)
	axis := 0
	if extent.Y() > extent.X() {
		axis = 1
	}
	if extent.Z() > extent[axis] {
		axis = 2
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].centroid[axis] < items[j].centroid[axis]
	})

	mid := len(items) / 2
	(*nodes)[idx].Left = splitNode(items[:mid], nodes)
	(*nodes)[idx].Right = splitNode(items[mid:], nodes)
	return idx
}
