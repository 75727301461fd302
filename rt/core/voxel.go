package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// VoxelWorldInfo describes the uniform grid covering the environment: where
// it starts, how big one voxel is, and how many voxels each axis spans.
type VoxelWorldInfo struct {
	Origin     mgl32.Vec3
	Size       float32
	Dimensions [3]uint32
	Count      uint64
}

func NewVoxelWorldInfo(origin mgl32.Vec3, size float32, dims [3]uint32) VoxelWorldInfo {
	return VoxelWorldInfo{
		Origin:     origin,
		Size:       size,
		Dimensions: dims,
		Count:      uint64(dims[0]) * uint64(dims[1]) * uint64(dims[2]),
	}
}

// VoxelWorldFor derives the grid that covers aabb with voxels of size
// voxelSize, one ceil-divided count per axis.
func VoxelWorldFor(aabb Aabb, voxelSize float32) VoxelWorldInfo {
	ext := aabb.Max.Sub(aabb.Min)
	dims := [3]uint32{}
	if voxelSize > 0 {
		for i := 0; i < 3; i++ {
			dims[i] = uint32(math.Ceil(float64(ext[i] / voxelSize)))
		}
	}
	return NewVoxelWorldInfo(aabb.Min, voxelSize, dims)
}

// Valid reports whether the grid can hold any point at all.
func (vw VoxelWorldInfo) Valid() bool {
	return vw.Size > 0 && vw.Dimensions[0] > 0 && vw.Dimensions[1] > 0 && vw.Dimensions[2] > 0
}

// WorldToVoxel maps a world-space position to its voxel coordinate. Positions
// on the grid boundary clamp into the edge voxel.
func (vw VoxelWorldInfo) WorldToVoxel(p mgl32.Vec3) [3]uint32 {
	rel := p.Sub(vw.Origin)
	var c [3]uint32
	for i := 0; i < 3; i++ {
		v := int64(math.Floor(float64(rel[i] / vw.Size)))
		if v < 0 {
			v = 0
		}
		if v >= int64(vw.Dimensions[i]) {
			v = int64(vw.Dimensions[i]) - 1
		}
		c[i] = uint32(v)
	}
	return c
}

// VoxelID flattens a voxel coordinate to its linear id, x fastest.
func (vw VoxelWorldInfo) VoxelID(c [3]uint32) uint64 {
	return uint64(c[0]) +
		uint64(c[1])*uint64(vw.Dimensions[0]) +
		uint64(c[2])*uint64(vw.Dimensions[0])*uint64(vw.Dimensions[1])
}

// WorldToVoxelID composes WorldToVoxel and VoxelID.
func (vw VoxelWorldInfo) WorldToVoxelID(p mgl32.Vec3) uint64 {
	return vw.VoxelID(vw.WorldToVoxel(p))
}

// VoxelCenter returns the world-space center of the voxel at coordinate c.
func (vw VoxelWorldInfo) VoxelCenter(c [3]uint32) mgl32.Vec3 {
	return vw.Origin.Add(mgl32.Vec3{
		(float32(c[0]) + 0.5) * vw.Size,
		(float32(c[1]) + 0.5) * vw.Size,
		(float32(c[2]) + 0.5) * vw.Size,
	})
}

// GroupKey combines a voxel id and a semantic label into the 64-bit key used
// to merge points into interaction elements: voxel id in the high 32 bits,
// label in the low 32.
func GroupKey(voxelID uint64, label uint32) uint64 {
	return voxelID<<32 | uint64(label)
}
