package core

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// GPU-side byte layouts. Structs are packed by hand so they line up with the
// matching WGSL declarations regardless of Go struct layout.

// Matches WGSL PointNode
// struct PointNode {
//    position : vec3<f32>; label : u32;    (16)
//    normal : vec3<f32>;   material : u32; (16)
//    ie_next : u32;        pad : u32[3];   (16)
// }; -> 48 bytes
const PointNodeStride = 48

// Matches WGSL Aabb
// struct Aabb {
//    min : vec3<f32>; pad0 : f32; (16)
//    max : vec3<f32>; pad1 : f32; (16)
// }; -> 32 bytes
const AabbStride = 32

// Matches WGSL PrimitivePoint
// struct PrimitivePoint {
//    position : vec3<f32>; label : u32;    (16)
//    normal : vec3<f32>;   material : u32; (16)
// }; -> 32 bytes
const PrimitivePointStride = 32

// Matches WGSL IEPrimitiveInfo: four u32 -> 16 bytes.
const IEPrimitiveInfoStride = 16

func putVec3(buf []byte, v mgl32.Vec3) {
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(v.X()))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(v.Y()))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(v.Z()))
}

func getVec3(buf []byte) mgl32.Vec3 {
	return mgl32.Vec3{
		math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4])),
		math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8])),
		math.Float32frombits(binary.LittleEndian.Uint32(buf[8:12])),
	}
}

// EncodePointNodes packs nodes into their GPU layout.
func EncodePointNodes(nodes []PointNode) []byte {
	out := make([]byte, len(nodes)*PointNodeStride)
	for i, n := range nodes {
		buf := out[i*PointNodeStride:]
		putVec3(buf[0:12], n.Position)
		binary.LittleEndian.PutUint32(buf[12:16], n.Label)
		putVec3(buf[16:28], n.Normal)
		binary.LittleEndian.PutUint32(buf[28:32], n.Material)
		binary.LittleEndian.PutUint32(buf[32:36], n.IeNext)
	}
	return out
}

// DecodePointNodes is the inverse of EncodePointNodes.
func DecodePointNodes(data []byte) []PointNode {
	n := len(data) / PointNodeStride
	nodes := make([]PointNode, n)
	for i := 0; i < n; i++ {
		buf := data[i*PointNodeStride:]
		nodes[i] = PointNode{
			Position: getVec3(buf[0:12]),
			Label:    binary.LittleEndian.Uint32(buf[12:16]),
			Normal:   getVec3(buf[16:28]),
			Material: binary.LittleEndian.Uint32(buf[28:32]),
			IeNext:   binary.LittleEndian.Uint32(buf[32:36]),
		}
	}
	return nodes
}

// EncodeAabbs packs bounding boxes into their GPU layout.
func EncodeAabbs(aabbs []Aabb) []byte {
	out := make([]byte, len(aabbs)*AabbStride)
	for i, a := range aabbs {
		buf := out[i*AabbStride:]
		putVec3(buf[0:12], a.Min)
		putVec3(buf[16:28], a.Max)
	}
	return out
}

// DecodeAabbs is the inverse of EncodeAabbs.
func DecodeAabbs(data []byte) []Aabb {
	n := len(data) / AabbStride
	aabbs := make([]Aabb, n)
	for i := 0; i < n; i++ {
		buf := data[i*AabbStride:]
		aabbs[i] = Aabb{Min: getVec3(buf[0:12]), Max: getVec3(buf[16:28])}
	}
	return aabbs
}

// EncodeVec3s packs plain vectors with vec4 alignment (16-byte stride).
func EncodeVec3s(vs []mgl32.Vec3) []byte {
	out := make([]byte, len(vs)*16)
	for i, v := range vs {
		putVec3(out[i*16:], v)
	}
	return out
}

// DecodeVec3s is the inverse of EncodeVec3s.
func DecodeVec3s(data []byte) []mgl32.Vec3 {
	n := len(data) / 16
	vs := make([]mgl32.Vec3, n)
	for i := 0; i < n; i++ {
		vs[i] = getVec3(data[i*16:])
	}
	return vs
}

// EncodePrimitivePoints packs primitive points into their GPU layout.
func EncodePrimitivePoints(pts []PrimitivePoint) []byte {
	out := make([]byte, len(pts)*PrimitivePointStride)
	for i, p := range pts {
		buf := out[i*PrimitivePointStride:]
		putVec3(buf[0:12], p.Position)
		binary.LittleEndian.PutUint32(buf[12:16], p.Label)
		putVec3(buf[16:28], p.Normal)
		binary.LittleEndian.PutUint32(buf[28:32], p.Material)
	}
	return out
}

// DecodePrimitivePoints is the inverse of EncodePrimitivePoints.
func DecodePrimitivePoints(data []byte) []PrimitivePoint {
	n := len(data) / PrimitivePointStride
	pts := make([]PrimitivePoint, n)
	for i := 0; i < n; i++ {
		buf := data[i*PrimitivePointStride:]
		pts[i] = PrimitivePoint{
			Position: getVec3(buf[0:12]),
			Label:    binary.LittleEndian.Uint32(buf[12:16]),
			Normal:   getVec3(buf[16:28]),
			Material: binary.LittleEndian.Uint32(buf[28:32]),
		}
	}
	return pts
}

// EncodeIEPrimitiveInfos packs per-element metadata into its GPU layout.
func EncodeIEPrimitiveInfos(infos []IEPrimitiveInfo) []byte {
	out := make([]byte, len(infos)*IEPrimitiveInfoStride)
	for i, info := range infos {
		buf := out[i*IEPrimitiveInfoStride:]
		binary.LittleEndian.PutUint32(buf[0:4], info.PointOffset)
		binary.LittleEndian.PutUint32(buf[4:8], info.PointCount)
		binary.LittleEndian.PutUint32(buf[8:12], info.Label)
		binary.LittleEndian.PutUint32(buf[12:16], info.Material)
	}
	return out
}

// DecodeIEPrimitiveInfos is the inverse of EncodeIEPrimitiveInfos.
func DecodeIEPrimitiveInfos(data []byte) []IEPrimitiveInfo {
	n := len(data) / IEPrimitiveInfoStride
	infos := make([]IEPrimitiveInfo, n)
	for i := 0; i < n; i++ {
		buf := data[i*IEPrimitiveInfoStride:]
		infos[i] = IEPrimitiveInfo{
			PointOffset: binary.LittleEndian.Uint32(buf[0:4]),
			PointCount:  binary.LittleEndian.Uint32(buf[4:8]),
			Label:       binary.LittleEndian.Uint32(buf[8:12]),
			Material:    binary.LittleEndian.Uint32(buf[12:16]),
		}
	}
	return infos
}
