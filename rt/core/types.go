package core

import (
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// InvalidIndex terminates intrusive point lists and marks unset slots.
	InvalidIndex = ^uint32(0)

	// InvalidLabel / InvalidMaterial pad interaction columns past a path's
	// actual interaction count.
	InvalidLabel    = ^uint32(0)
	InvalidMaterial = ^uint32(0)

	// LightSpeedInVacuum in meters per second.
	LightSpeedInVacuum = 299792458.0
)

// PointData is one raw sample of the input point cloud.
type PointData struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	Label    uint32
	Material uint32
}

// PointNode is a PointData plus the intrusive list link that chains all
// points belonging to one interaction element. IeNext is an index into the
// node slice, InvalidIndex ends the chain.
type PointNode struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	Label    uint32
	Material uint32
	IeNext   uint32
}

// PathType classifies a propagation path.
type PathType uint32

const (
	PathTypeLineOfSight PathType = iota
	PathTypeSpecular
	PathTypeDiffraction
	PathTypeScattering
	PathTypeRIS
)

func (t PathType) String() string {
	switch t {
	case PathTypeLineOfSight:
		return "line-of-sight"
	case PathTypeSpecular:
		return "specular"
	case PathTypeDiffraction:
		return "diffraction"
	case PathTypeScattering:
		return "scattering"
	case PathTypeRIS:
		return "ris"
	}
	return "unknown"
}

// PathInfo describes one raw candidate path. The per-interaction attribute
// streams travel alongside in parallel slices.
type PathInfo struct {
	TxID            uint32
	RxID            uint32
	Type            PathType
	NumInteractions uint32
	TimeDelay       float64 // seconds
}

// Aabb is an axis-aligned bounding box.
type Aabb struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// Grow extends the box to contain p.
func (a *Aabb) Grow(p mgl32.Vec3) {
	a.Min = mgl32.Vec3{min(a.Min.X(), p.X()), min(a.Min.Y(), p.Y()), min(a.Min.Z(), p.Z())}
	a.Max = mgl32.Vec3{max(a.Max.X(), p.X()), max(a.Max.Y(), p.Y()), max(a.Max.Z(), p.Z())}
}

// Expand pushes every face of the box outward by bias.
func (a *Aabb) Expand(bias float32) {
	b := mgl32.Vec3{bias, bias, bias}
	a.Min = a.Min.Sub(b)
	a.Max = a.Max.Add(b)
}

// IEPrimitiveInfo is the per-interaction-element metadata produced by the
// primitive-creation kernel: where the element's points landed in the packed
// primitive-point buffer and the element's dominant classification.
type IEPrimitiveInfo struct {
	PointOffset uint32
	PointCount  uint32
	Label       uint32
	Material    uint32
}

// PrimitivePoint is one member point after grouping, packed for traversal.
type PrimitivePoint struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	Label    uint32
	Material uint32
}
