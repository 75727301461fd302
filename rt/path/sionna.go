package path

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/raywave3d/raywave/rt/core"
)

// InvalidDelay marks unoccupied slots in the dense export's delay and
// distance grids.
const InvalidDelay = float32(-1.0)

// SionnaTypePaths is the padded dense grid for one path type. Per-interaction
// fields are indexed [ia][rxID][txID][linkSlot] flattened, with linkSlot
// ranging over MaxLinkPaths for that type; IncidentRays carries one extra ia
// slot for the final hop into the receiver. Per-path fields drop the ia axis.
type SionnaTypePaths struct {
	Interactions []mgl32.Vec3
	Normals      []mgl32.Vec3
	Materials    []uint32

	IncidentRays  []mgl32.Vec3
	DeflectedRays []mgl32.Vec3

	TimeDelays    []float32
	TotalDistance []float32
	Mask          []uint32
	KTx           []mgl32.Vec3
	KRx           []mgl32.Vec3

	AodElevation []float32
	AodAzimuth   []float32
	AoaElevation []float32
	AoaAzimuth   []float32
}

// SionnaPathData is the dense export consumed by the wireless-channel
// toolkit.
type SionnaPathData struct {
	Transmitters       []mgl32.Vec3
	Receivers          []mgl32.Vec3
	MaxNumInteractions uint32
	MaxLinkPaths       [NumSionnaPathTypes]uint32
	Paths              [NumSionnaPathTypes]SionnaTypePaths
}

func (d *SionnaPathData) reserve() {
	numRx := uint64(len(d.Receivers))
	numTx := uint64(len(d.Transmitters))
	for t := range d.Paths {
		linkElems := numRx * numTx * uint64(d.MaxLinkPaths[t])
		iaElems := uint64(d.MaxNumInteractions) * linkElems
		p := &d.Paths[t]
		p.Interactions = make([]mgl32.Vec3, iaElems)
		p.Normals = make([]mgl32.Vec3, iaElems)
		p.Materials = make([]uint32, iaElems)
		p.IncidentRays = make([]mgl32.Vec3, iaElems+linkElems)
		p.DeflectedRays = make([]mgl32.Vec3, iaElems)
		p.TimeDelays = make([]float32, linkElems)
		p.TotalDistance = make([]float32, linkElems)
		p.Mask = make([]uint32, linkElems)
		p.KTx = make([]mgl32.Vec3, linkElems)
		p.KRx = make([]mgl32.Vec3, linkElems)
		p.AodElevation = make([]float32, linkElems)
		p.AodAzimuth = make([]float32, linkElems)
		p.AoaElevation = make([]float32, linkElems)
		p.AoaAzimuth = make([]float32, linkElems)
		for i := range p.TimeDelays {
			p.TimeDelays[i] = InvalidDelay
			p.TotalDistance[i] = InvalidDelay
		}
	}
}

// ToSionnaPathData builds the padded per-link grids. Placement is a two-pass
// counting sort: AddPaths accumulated the per-(link, type) counts, and this
// pass walks canonical paths in slot order decrementing a copy of that table
// to assign each path a unique slot within its link. Pure read, repeatable.
// An empty store yields empty, sentinel-initialized grids.
func (s *Storage) ToSionnaPathData() SionnaPathData {
	data := SionnaPathData{
		Transmitters:       append([]mgl32.Vec3(nil), s.transmitters...),
		Receivers:          append([]mgl32.Vec3(nil), s.receivers...),
		MaxNumInteractions: s.maxNumInteractions,
		MaxLinkPaths:       s.maxLinkPaths,
	}
	data.reserve()

	remaining := make([][NumSionnaPathTypes]uint32, len(s.linkCounts))
	copy(remaining, s.linkCounts)

	numTx := uint64(len(s.transmitters))
	numRx := uint64(len(s.receivers))

	for slot := 0; slot < s.PathCount(); slot++ {
		typeIndex, err := SionnaTypeOf(s.pathTypes[slot])
		if err != nil {
			// Types were validated on insertion.
			panic(err)
		}
		p := &data.Paths[typeIndex]
		maxLink := uint64(s.maxLinkPaths[typeIndex])

		txID := s.txIDs[slot]
		rxID := s.rxIDs[slot]
		tx := s.transmitters[txID]
		rx := s.receivers[rxID]
		numIa := s.numInteractions[slot]

		link := rxID*uint32(numTx) + txID
		remaining[link][typeIndex]--
		pathOffset := uint64(remaining[link][typeIndex])
		txOffset := uint64(txID) * maxLink
		rxOffset := uint64(rxID) * numTx * maxLink
		pathIndex := rxOffset + txOffset + pathOffset

		for ia := uint32(0); ia < s.maxNumInteractions; ia++ {
			iaOffset := uint64(ia) * numRx * numTx * maxLink
			idx := iaOffset + pathIndex
			iaPoint := s.columns[ia].interactions[slot]
			p.Interactions[idx] = iaPoint
			p.Normals[idx] = s.columns[ia].normals[slot]
			p.Materials[idx] = s.columns[ia].materials[slot]
			if ia < numIa {
				if ia > 0 {
					p.IncidentRays[idx] = safeNormalize(iaPoint.Sub(s.columns[ia-1].interactions[slot]))
				} else {
					p.IncidentRays[idx] = safeNormalize(iaPoint.Sub(tx))
				}
				if ia+1 < numIa {
					p.DeflectedRays[idx] = safeNormalize(s.columns[ia+1].interactions[slot].Sub(iaPoint))
				} else {
					p.DeflectedRays[idx] = safeNormalize(rx.Sub(iaPoint))
				}
			}
		}

		delay := float32(s.timeDelays[slot])
		p.TimeDelays[pathIndex] = delay
		p.TotalDistance[pathIndex] = delay * core.LightSpeedInVacuum
		p.Mask[pathIndex] = 1

		if numIa > 0 {
			p.KTx[pathIndex] = safeNormalize(s.columns[0].interactions[slot].Sub(tx))
			p.KRx[pathIndex] = safeNormalize(s.columns[numIa-1].interactions[slot].Sub(rx))
		} else {
			p.KTx[pathIndex] = safeNormalize(rx.Sub(tx))
			p.KRx[pathIndex] = safeNormalize(tx.Sub(rx))
		}

		// Incident ray of the final hop into the receiver.
		incidentToRx := uint64(numIa)*numRx*numTx*maxLink + pathIndex
		p.IncidentRays[incidentToRx] = p.KRx[pathIndex].Mul(-1)

		p.AodElevation[pathIndex] = elevation(p.KTx[pathIndex])
		p.AodAzimuth[pathIndex] = azimuth(p.KTx[pathIndex])
		p.AoaElevation[pathIndex] = elevation(p.KRx[pathIndex])
		p.AoaAzimuth[pathIndex] = azimuth(p.KRx[pathIndex])
	}
	return data
}

func safeNormalize(v mgl32.Vec3) mgl32.Vec3 {
	if v.Len() == 0 {
		return mgl32.Vec3{}
	}
	return v.Normalize()
}

// elevation = arccos(z), clamped against float drift from normalization.
func elevation(dir mgl32.Vec3) float32 {
	z := float64(dir.Z())
	if z > 1 {
		z = 1
	} else if z < -1 {
		z = -1
	}
	return float32(math.Acos(z))
}

func azimuth(dir mgl32.Vec3) float32 {
	return float32(math.Atan2(float64(dir.Y()), float64(dir.X())))
}
