package path

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/raywave3d/raywave/rt/core"
)

// PathData is the concatenated columnar export: interaction columns laid out
// slot-major (slot 0 for all paths, then slot 1, ...) followed by the scalar
// columns, one entry per canonical path in slot-index order.
type PathData struct {
	MaxNumInteractions uint32
	Transmitters       []mgl32.Vec3
	Receivers          []mgl32.Vec3

	Interactions []mgl32.Vec3
	Normals      []mgl32.Vec3
	Labels       []uint32
	Materials    []uint32

	TimeDelays      []float64
	TxIDs           []uint32
	RxIDs           []uint32
	PathTypes       []core.PathType
	NumInteractions []uint32
}

// ToPathData copies the store into its flat export. Pure read; the store is
// not modified.
func (s *Storage) ToPathData() PathData {
	n := s.PathCount()
	data := PathData{
		MaxNumInteractions: s.maxNumInteractions,
		Transmitters:       append([]mgl32.Vec3(nil), s.transmitters...),
		Receivers:          append([]mgl32.Vec3(nil), s.receivers...),
		Interactions:       make([]mgl32.Vec3, 0, int(s.maxNumInteractions)*n),
		Normals:            make([]mgl32.Vec3, 0, int(s.maxNumInteractions)*n),
		Labels:             make([]uint32, 0, int(s.maxNumInteractions)*n),
		Materials:          make([]uint32, 0, int(s.maxNumInteractions)*n),
	}

	for ia := uint32(0); ia < s.maxNumInteractions; ia++ {
		col := &s.columns[ia]
		data.Interactions = append(data.Interactions, col.interactions...)
		data.Normals = append(data.Normals, col.normals...)
		data.Labels = append(data.Labels, col.labels...)
		data.Materials = append(data.Materials, col.materials...)
	}

	data.TimeDelays = append([]float64(nil), s.timeDelays...)
	data.TxIDs = append([]uint32(nil), s.txIDs...)
	data.RxIDs = append([]uint32(nil), s.rxIDs...)
	data.PathTypes = append([]core.PathType(nil), s.pathTypes...)
	data.NumInteractions = append([]uint32(nil), s.numInteractions...)
	return data
}
