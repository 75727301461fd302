package env

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/raywave3d/raywave/rt/bvh"
	"github.com/raywave3d/raywave/rt/core"
	"github.com/raywave3d/raywave/rt/gpu"
)

func newTestEnvironment(t *testing.T) (*PointCloudEnvironment, *gpu.MemDevice) {
	t.Helper()
	dev := gpu.NewMemDevice()
	if err := RegisterKernels(dev); err != nil {
		t.Fatalf("RegisterKernels failed: %v", err)
	}
	return NewPointCloudEnvironment(dev, bvh.NewBuilder(dev), nil), dev
}

func point(x, y, z float32, label uint32) core.PointData {
	return core.PointData{
		Position: mgl32.Vec3{x, y, z},
		Normal:   mgl32.Vec3{0, 0, 1},
		Label:    label,
		Material: label + 10,
	}
}

func TestInitRejectsTooFewPoints(t *testing.T) {
	e, _ := newTestEnvironment(t)

	if err := e.Init(nil, 1.0, 0.01); err == nil {
		t.Error("Empty cloud must be rejected")
	}
	if err := e.Init([]core.PointData{point(0, 0, 0, 1)}, 1.0, 0.01); err == nil {
		t.Error("Single-point cloud must be rejected")
	}
}

func TestInitRejectsDegenerateVoxelSize(t *testing.T) {
	e, _ := newTestEnvironment(t)
	points := []core.PointData{point(0, 0, 0, 1), point(1, 1, 1, 1)}

	if err := e.Init(points, 0, 0.01); err == nil {
		t.Error("Zero voxel size must be rejected")
	}
	if err := e.Init(points, -0.5, 0.01); err == nil {
		t.Error("Negative voxel size must be rejected")
	}
}

func TestTwoIdenticalPointsFormOneElement(t *testing.T) {
	e, _ := newTestEnvironment(t)
	points := []core.PointData{point(0, 0, 0, 1), point(0, 0, 0, 1)}

	if err := e.Init(points, 1.0, 0.01); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if e.IeCount() != 1 {
		t.Errorf("Expected 1 interaction element, got %d", e.IeCount())
	}
	if e.PointCount() != 2 {
		t.Errorf("Expected 2 processed points, got %d", e.PointCount())
	}
}

func TestVoxelKeyCollisions(t *testing.T) {
	e, _ := newTestEnvironment(t)

	// Same voxel, different labels: two elements.
	points := []core.PointData{point(0.2, 0.2, 0.2, 1), point(0.4, 0.4, 0.4, 2)}
	if err := e.Init(points, 1.0, 0.01); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if e.IeCount() != 2 {
		t.Errorf("Different labels in one voxel should form 2 elements, got %d", e.IeCount())
	}

	// Same voxel, same label: one element.
	points = []core.PointData{point(0.2, 0.2, 0.2, 1), point(0.4, 0.4, 0.4, 1)}
	if err := e.Init(points, 1.0, 0.01); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if e.IeCount() != 1 {
		t.Errorf("Same label in one voxel should form 1 element, got %d", e.IeCount())
	}
}

func TestGeneratedPrimitives(t *testing.T) {
	e, _ := newTestEnvironment(t)
	points := []core.PointData{
		point(0.1, 0.1, 0.1, 1),
		point(0.3, 0.3, 0.3, 1),
		// Second voxel along x.
		point(1.5, 0.1, 0.1, 1),
	}
	const bias = float32(0.05)

	if err := e.Init(points, 1.0, bias); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if e.IeCount() != 2 {
		t.Fatalf("Expected 2 interaction elements, got %d", e.IeCount())
	}

	data := e.EnvironmentData()
	if !data.Accel.Valid() {
		t.Fatal("Acceleration structure handle should be valid")
	}
	if data.PointCount != 3 {
		t.Errorf("Expected 3 processed points, got %d", data.PointCount)
	}

	raw, err := data.Primitives.Download()
	if err != nil {
		t.Fatalf("Primitive download failed: %v", err)
	}
	aabbs := core.DecodeAabbs(raw)[:data.IeCount]

	// First element spans the two clustered points plus bias.
	want := core.Aabb{Min: mgl32.Vec3{0.1, 0.1, 0.1}, Max: mgl32.Vec3{0.3, 0.3, 0.3}}
	want.Expand(bias)
	if !aabbs[0].Min.ApproxEqual(want.Min) || !aabbs[0].Max.ApproxEqual(want.Max) {
		t.Errorf("Element 0 bounds = %+v, expected %+v", aabbs[0], want)
	}

	raw, err = data.RtPoints.Download()
	if err != nil {
		t.Fatalf("Rt point download failed: %v", err)
	}
	rtPoints := core.DecodeVec3s(raw)[:data.IeCount]
	if !rtPoints[0].ApproxEqual(mgl32.Vec3{0.2, 0.2, 0.2}) {
		t.Errorf("Element 0 representative point = %v, expected centroid {0.2 0.2 0.2}", rtPoints[0])
	}

	raw, err = data.PrimitiveInfos.Download()
	if err != nil {
		t.Fatalf("Primitive info download failed: %v", err)
	}
	infos := core.DecodeIEPrimitiveInfos(raw)[:data.IeCount]
	if infos[0].PointCount != 2 || infos[1].PointCount != 1 {
		t.Errorf("Expected point counts {2,1}, got {%d,%d}", infos[0].PointCount, infos[1].PointCount)
	}
	if infos[0].Label != 1 {
		t.Errorf("Element 0 label = %d, expected 1", infos[0].Label)
	}

	raw, err = data.PrimitivePoints.Download()
	if err != nil {
		t.Fatalf("Primitive point download failed: %v", err)
	}
	packed := core.DecodePrimitivePoints(raw)[:data.PointCount]
	if len(packed) != 3 {
		t.Fatalf("Expected 3 packed points, got %d", len(packed))
	}
}

func TestFailedInitKeepsEnvironmentReusable(t *testing.T) {
	e, _ := newTestEnvironment(t)
	points := []core.PointData{point(0, 0, 0, 1), point(1, 1, 1, 1)}

	if err := e.Init(points, 0, 0.01); err == nil {
		t.Fatal("Expected failure for zero voxel size")
	}
	if e.IeCount() != 0 {
		t.Error("Failed init must not expose partial state")
	}

	if err := e.Init(points, 1.0, 0.01); err != nil {
		t.Fatalf("Retry with corrected parameters failed: %v", err)
	}
	if e.IeCount() == 0 {
		t.Error("Retry should populate the environment")
	}
}

func TestStageDispatchUnregisteredKernel(t *testing.T) {
	e, dev := newTestEnvironment(t)
	_ = dev

	// Only the create-primitives kernel is registered here; stage dispatch
	// must surface the device error unchanged.
	if err := e.ComputeVisibility(gpu.Dims{X: 1, Y: 1, Z: 1}); err == nil {
		t.Error("Dispatch of an unregistered kernel should fail")
	}
}
