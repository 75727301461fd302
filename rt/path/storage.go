// Package path collapses raw candidate propagation paths into canonical
// records and re-exports them in the two layouts downstream consumers need.
package path

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/raywave3d/raywave/rt/core"
)

// SionnaPathType buckets path types the way the wireless-channel toolkit
// groups them: line-of-sight folds into specular.
type SionnaPathType uint32

const (
	SionnaSpecular SionnaPathType = iota
	SionnaDiffracted
	SionnaScattered
	SionnaRIS
	NumSionnaPathTypes
)

// SionnaTypeOf maps a path type to its export bucket. An unrecognized value
// is a caller error and rejects the offending path.
func SionnaTypeOf(t core.PathType) (SionnaPathType, error) {
	switch t {
	case core.PathTypeLineOfSight, core.PathTypeSpecular:
		return SionnaSpecular, nil
	case core.PathTypeDiffraction:
		return SionnaDiffracted, nil
	case core.PathTypeScattering:
		return SionnaScattered, nil
	case core.PathTypeRIS:
		return SionnaRIS, nil
	}
	return 0, fmt.Errorf("unrecognized path type %d", uint32(t))
}

// Deterministic structural fingerprint: a fixed-seed FNV-1a fold over txID,
// rxID and path type, then each interaction label in order. Two paths with
// equal fingerprints are the same physical path; only geometry and timing
// may differ.
const (
	hashSeed  uint64 = 0xcbf29ce484222325
	hashPrime uint64 = 0x100000001b3
)

func hashCombine(h uint64, v uint32) uint64 {
	return (h ^ uint64(v)) * hashPrime
}

func hashPath(info core.PathInfo, labels []uint32) uint64 {
	h := hashCombine(hashCombine(hashCombine(hashSeed, info.TxID), info.RxID), uint32(info.Type))
	for i := uint32(0); i < info.NumInteractions; i++ {
		h = hashCombine(h, labels[i])
	}
	return h
}

// record is the canonical entry for one fingerprint. Slot is assigned once
// at first insertion and never moves, even when a better delay overwrites
// the record in place.
type record struct {
	timeDelay float64
	slot      uint32
}

// interactionColumns are the parallel per-slot arrays, one entry per
// canonical path.
type interactionColumns struct {
	interactions []mgl32.Vec3
	normals      []mgl32.Vec3
	labels       []uint32
	materials    []uint32
}

// Storage deduplicates candidate paths under the minimum-delay policy and
// keeps the per-link occupancy counts the dense export pads with. Not safe
// for concurrent use.
type Storage struct {
	maxNumInteractions uint32
	transmitters       []mgl32.Vec3
	receivers          []mgl32.Vec3

	columns []interactionColumns
	records map[uint64]record

	timeDelays      []float64
	txIDs           []uint32
	rxIDs           []uint32
	pathTypes       []core.PathType
	numInteractions []uint32

	// linkCounts[rxID*len(transmitters)+txID][type], maxima per type.
	linkCounts   [][NumSionnaPathTypes]uint32
	maxLinkPaths [NumSionnaPathTypes]uint32
}

func NewStorage(maxNumInteractions uint32, transmitters, receivers []mgl32.Vec3) *Storage {
	return &Storage{
		maxNumInteractions: maxNumInteractions,
		transmitters:       append([]mgl32.Vec3(nil), transmitters...),
		receivers:          append([]mgl32.Vec3(nil), receivers...),
		columns:            make([]interactionColumns, maxNumInteractions),
		records:            make(map[uint64]record),
		linkCounts:         make([][NumSionnaPathTypes]uint32, len(transmitters)*len(receivers)),
	}
}

// PathCount returns the number of canonical paths accepted so far.
func (s *Storage) PathCount() int { return len(s.timeDelays) }

// MaxLinkPaths returns the running per-type maxima of paths on any single
// (tx, rx) link; the dense export pads to these widths.
func (s *Storage) MaxLinkPaths() [NumSionnaPathTypes]uint32 { return s.maxLinkPaths }

// AddPaths folds a batch of candidates into the store. The attribute streams
// hold maxNumInteractions entries per path, real data for slots below the
// path's interaction count. Interaction counts beyond the configured maximum
// and mismatched stream lengths are a caller error and are not detected.
func (s *Storage) AddPaths(infos []core.PathInfo, interactions, normals []mgl32.Vec3, labels, materials []uint32) error {
	for i := range infos {
		info := &infos[i]
		typeIndex, err := SionnaTypeOf(info.Type)
		if err != nil {
			return fmt.Errorf("path %d: %w", i, err)
		}

		dataIndex := uint32(i) * s.maxNumInteractions
		hash := hashPath(*info, labels[dataIndex:])
		rec, exists := s.records[hash]

		switch {
		case !exists:
			slot := uint32(len(s.timeDelays))
			s.records[hash] = record{timeDelay: info.TimeDelay, slot: slot}
			for ia := uint32(0); ia < s.maxNumInteractions; ia++ {
				col := &s.columns[ia]
				if ia < info.NumInteractions {
					col.interactions = append(col.interactions, interactions[dataIndex+ia])
					col.normals = append(col.normals, normals[dataIndex+ia])
					col.labels = append(col.labels, labels[dataIndex+ia])
					col.materials = append(col.materials, materials[dataIndex+ia])
				} else {
					col.interactions = append(col.interactions, mgl32.Vec3{})
					col.normals = append(col.normals, mgl32.Vec3{})
					col.labels = append(col.labels, core.InvalidLabel)
					col.materials = append(col.materials, core.InvalidMaterial)
				}
			}
			s.timeDelays = append(s.timeDelays, info.TimeDelay)
			s.txIDs = append(s.txIDs, info.TxID)
			s.rxIDs = append(s.rxIDs, info.RxID)
			s.pathTypes = append(s.pathTypes, info.Type)
			s.numInteractions = append(s.numInteractions, info.NumInteractions)

			link := info.RxID*uint32(len(s.transmitters)) + info.TxID
			s.linkCounts[link][typeIndex]++
			if s.linkCounts[link][typeIndex] > s.maxLinkPaths[typeIndex] {
				s.maxLinkPaths[typeIndex] = s.linkCounts[link][typeIndex]
			}

		case info.TimeDelay < rec.timeDelay:
			// Better candidate for an occupied slot: overwrite in place.
			// Slot and occupancy stay untouched.
			rec.timeDelay = info.TimeDelay
			s.records[hash] = rec
			for ia := uint32(0); ia < s.maxNumInteractions; ia++ {
				col := &s.columns[ia]
				if ia < info.NumInteractions {
					col.interactions[rec.slot] = interactions[dataIndex+ia]
					col.normals[rec.slot] = normals[dataIndex+ia]
					col.labels[rec.slot] = labels[dataIndex+ia]
					col.materials[rec.slot] = materials[dataIndex+ia]
				} else {
					col.interactions[rec.slot] = mgl32.Vec3{}
					col.normals[rec.slot] = mgl32.Vec3{}
					col.labels[rec.slot] = core.InvalidLabel
					col.materials[rec.slot] = core.InvalidMaterial
				}
			}
			s.timeDelays[rec.slot] = info.TimeDelay
			s.numInteractions[rec.slot] = info.NumInteractions

		default:
			// Equal or larger delay: first-seen wins, discard.
		}
	}
	return nil
}
