package path

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/raywave3d/raywave/rt/core"
)

func TestLineOfSightAngles(t *testing.T) {
	txs := []mgl32.Vec3{{0, 0, 0}}
	rxs := []mgl32.Vec3{{0, 0, 10}}
	s := NewStorage(2, txs, rxs)

	delay := 10.0 / core.LightSpeedInVacuum
	addBatch(t, s, 2, []candidate{
		{info: core.PathInfo{Type: core.PathTypeLineOfSight, TimeDelay: delay}},
	})

	data := s.ToSionnaPathData()
	p := &data.Paths[SionnaSpecular]

	if data.MaxLinkPaths[SionnaSpecular] != 1 {
		t.Fatalf("Expected maxLinkPaths 1 for specular, got %d", data.MaxLinkPaths[SionnaSpecular])
	}
	if p.Mask[0] != 1 {
		t.Fatal("LOS slot should be occupied")
	}

	wantKTx := mgl32.Vec3{0, 0, 1}
	wantKRx := mgl32.Vec3{0, 0, -1}
	if !p.KTx[0].ApproxEqual(wantKTx) {
		t.Errorf("kTx = %v, expected %v", p.KTx[0], wantKTx)
	}
	if !p.KRx[0].ApproxEqual(wantKRx) {
		t.Errorf("kRx = %v, expected %v", p.KRx[0], wantKRx)
	}
	if math.Abs(float64(p.AodElevation[0])) > 1e-6 {
		t.Errorf("Departure elevation = %v, expected 0", p.AodElevation[0])
	}
	if math.Abs(float64(p.AoaElevation[0])-math.Pi) > 1e-6 {
		t.Errorf("Arrival elevation = %v, expected pi", p.AoaElevation[0])
	}
	if math.Abs(float64(p.TotalDistance[0])-10.0) > 1e-3 {
		t.Errorf("Total distance = %v, expected 10", p.TotalDistance[0])
	}
	// Receiver-incidence entry is the reversed arrival direction.
	if !p.IncidentRays[0].ApproxEqual(wantKTx) {
		t.Errorf("Receiver incidence = %v, expected %v", p.IncidentRays[0], wantKTx)
	}
}

func TestDenseGridBucketExclusivity(t *testing.T) {
	txs, rxs := testEndpoints()
	s := NewStorage(2, txs, rxs)

	addBatch(t, s, 2, []candidate{
		{info: core.PathInfo{TxID: 0, RxID: 0, Type: core.PathTypeSpecular, NumInteractions: 1, TimeDelay: 1.0}, labels: []uint32{1}},
		{info: core.PathInfo{TxID: 0, RxID: 0, Type: core.PathTypeSpecular, NumInteractions: 1, TimeDelay: 2.0}, labels: []uint32{2}},
		{info: core.PathInfo{TxID: 0, RxID: 0, Type: core.PathTypeSpecular, NumInteractions: 1, TimeDelay: 3.0}, labels: []uint32{3}},
		{info: core.PathInfo{TxID: 1, RxID: 1, Type: core.PathTypeSpecular, NumInteractions: 1, TimeDelay: 4.0}, labels: []uint32{4}},
	})

	data := s.ToSionnaPathData()
	p := &data.Paths[SionnaSpecular]
	maxLink := data.MaxLinkPaths[SionnaSpecular]
	if maxLink != 3 {
		t.Fatalf("Expected maxLinkPaths 3, got %d", maxLink)
	}

	occupied := 0
	for _, m := range p.Mask {
		occupied += int(m)
	}
	if occupied != 4 {
		t.Fatalf("Expected 4 occupied slots across the grid, got %d", occupied)
	}

	// Link (rx0, tx0): all three slots filled with the three delays.
	linkSlot := func(rxID, txID, offset uint32) uint64 {
		return uint64(rxID)*uint64(len(txs))*uint64(maxLink) + uint64(txID)*uint64(maxLink) + uint64(offset)
	}
	seen := map[float32]bool{}
	for off := uint32(0); off < maxLink; off++ {
		idx := linkSlot(0, 0, off)
		if p.Mask[idx] != 1 {
			t.Fatalf("Link (0,0) slot %d should be occupied", off)
		}
		if seen[p.TimeDelays[idx]] {
			t.Fatalf("Two canonical paths share link slot delay %v", p.TimeDelays[idx])
		}
		seen[p.TimeDelays[idx]] = true
	}
	for _, want := range []float32{1, 2, 3} {
		if !seen[want] {
			t.Errorf("Delay %v missing from link (0,0)", want)
		}
	}

	// Link (rx1, tx1): exactly one occupied slot, the rest padded.
	linkOccupied := 0
	for off := uint32(0); off < maxLink; off++ {
		idx := linkSlot(1, 1, off)
		if p.Mask[idx] == 1 {
			linkOccupied++
			if p.TimeDelays[idx] != 4.0 {
				t.Errorf("Link (1,1) occupied slot holds delay %v, expected 4", p.TimeDelays[idx])
			}
		} else {
			if p.TimeDelays[idx] != InvalidDelay {
				t.Errorf("Padded slot holds delay %v, expected sentinel", p.TimeDelays[idx])
			}
			if p.TotalDistance[idx] != InvalidDelay {
				t.Errorf("Padded slot holds distance %v, expected sentinel", p.TotalDistance[idx])
			}
		}
	}
	if linkOccupied != 1 {
		t.Errorf("Link (1,1) should hold exactly 1 path, got %d", linkOccupied)
	}
}

func TestSionnaTypeBucketing(t *testing.T) {
	txs := []mgl32.Vec3{{0, 0, 0}}
	rxs := []mgl32.Vec3{{0, 0, 5}}
	s := NewStorage(1, txs, rxs)

	addBatch(t, s, 1, []candidate{
		{info: core.PathInfo{Type: core.PathTypeLineOfSight, TimeDelay: 1.0}},
		{info: core.PathInfo{Type: core.PathTypeDiffraction, NumInteractions: 1, TimeDelay: 2.0}, labels: []uint32{1}},
		{info: core.PathInfo{Type: core.PathTypeScattering, NumInteractions: 1, TimeDelay: 3.0}, labels: []uint32{2}},
		{info: core.PathInfo{Type: core.PathTypeRIS, NumInteractions: 1, TimeDelay: 4.0}, labels: []uint32{3}},
	})

	want := [NumSionnaPathTypes]uint32{1, 1, 1, 1}
	if got := s.MaxLinkPaths(); got != want {
		t.Fatalf("MaxLinkPaths = %v, expected %v", got, want)
	}

	data := s.ToSionnaPathData()
	for ty := SionnaPathType(0); ty < NumSionnaPathTypes; ty++ {
		p := &data.Paths[ty]
		if len(p.Mask) != 1 || p.Mask[0] != 1 {
			t.Errorf("Type %d should hold exactly one occupied slot", ty)
		}
	}
}

func TestSionnaExportRepeatable(t *testing.T) {
	txs, rxs := testEndpoints()
	s := NewStorage(2, txs, rxs)
	addBatch(t, s, 2, []candidate{
		{info: core.PathInfo{Type: core.PathTypeSpecular, NumInteractions: 1, TimeDelay: 1.5}, labels: []uint32{8}},
	})

	first := s.ToSionnaPathData()
	second := s.ToSionnaPathData()
	p1, p2 := &first.Paths[SionnaSpecular], &second.Paths[SionnaSpecular]
	if len(p1.Mask) != len(p2.Mask) {
		t.Fatal("Export sizes differ between calls")
	}
	for i := range p1.Mask {
		if p1.Mask[i] != p2.Mask[i] || p1.TimeDelays[i] != p2.TimeDelays[i] {
			t.Fatalf("Slot %d differs between consecutive exports", i)
		}
	}
}

func TestSionnaExportEmptyStore(t *testing.T) {
	txs, rxs := testEndpoints()
	s := NewStorage(2, txs, rxs)

	data := s.ToSionnaPathData()
	for ty := range data.Paths {
		if len(data.Paths[ty].Mask) != 0 {
			t.Errorf("Empty store should export empty grids for type %d", ty)
		}
	}
	if data.MaxNumInteractions != 2 {
		t.Errorf("Export should carry the configured slot count, got %d", data.MaxNumInteractions)
	}
}
