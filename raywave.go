// Package raywave is the geometry and path preparation core of a
// GPU-accelerated radio-wave ray tracer. It reduces point clouds to
// ray-traceable interaction elements and deduplicates raw propagation paths
// into the compact layouts downstream consumers read.
package raywave

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/raywave3d/raywave/rt/bvh"
	"github.com/raywave3d/raywave/rt/core"
	"github.com/raywave3d/raywave/rt/env"
	"github.com/raywave3d/raywave/rt/gpu"
	"github.com/raywave3d/raywave/rt/path"
)

// TracerConfig configures one tracer instance.
type TracerConfig struct {
	// MaxNumInteractions is the configured interaction slot count of every
	// columnar export. Must be > 0 unless only line-of-sight paths exist.
	MaxNumInteractions uint32
	// VoxelSize is the grouping voxel edge length in world units.
	VoxelSize float32
	// AabbBias pads every interaction element's bounding volume. Zero means
	// the default.
	AabbBias float32
	// Transmitters and Receivers are the fixed endpoint sets paths refer to
	// by id.
	Transmitters []mgl32.Vec3
	Receivers    []mgl32.Vec3
	// Logger receives diagnostics; nil drops them.
	Logger Logger
}

// Tracer owns one environment and one path store over a shared device. Not
// safe for concurrent use; independent tracers share nothing.
type Tracer struct {
	id       string
	dev      gpu.Device
	builder  *bvh.Builder
	env      *env.PointCloudEnvironment
	paths    *path.Storage
	log      Logger
	profiler *Profiler

	voxelSize float32
	aabbBias  float32
}

// NewTracer wires a tracer over dev and registers the preparation kernels.
func NewTracer(dev gpu.Device, cfg TracerConfig) (*Tracer, error) {
	if len(cfg.Transmitters) == 0 || len(cfg.Receivers) == 0 {
		return nil, errors.New("tracer needs at least one transmitter and one receiver")
	}
	log := cfg.Logger
	if log == nil {
		log = NewNopLogger()
	}
	if err := env.RegisterKernels(dev); err != nil {
		return nil, fmt.Errorf("register kernels: %w", err)
	}
	bias := cfg.AabbBias
	if bias == 0 {
		bias = env.DefaultAabbExpand
	}

	builder := bvh.NewBuilder(dev)
	return &Tracer{
		id:        uuid.NewString(),
		dev:       dev,
		builder:   builder,
		env:       env.NewPointCloudEnvironment(dev, builder, log),
		paths:     path.NewStorage(cfg.MaxNumInteractions, cfg.Transmitters, cfg.Receivers),
		log:       log,
		profiler:  NewProfiler(),
		voxelSize: cfg.VoxelSize,
		aabbBias:  bias,
	}, nil
}

// ID identifies this tracer instance in logs.
func (t *Tracer) ID() string { return t.id }

// Profiler exposes the stage timings collected so far.
func (t *Tracer) Profiler() *Profiler { return t.profiler }

// LoadEnvironment groups the point cloud and builds the acceleration
// structure. A failed load leaves the tracer usable for a retry with
// corrected parameters.
func (t *Tracer) LoadEnvironment(points []core.PointData) error {
	t.profiler.BeginScope("environment")
	defer t.profiler.EndScope("environment")
	if err := t.env.Init(points, t.voxelSize, t.aabbBias); err != nil {
		return err
	}
	t.profiler.SetCount("interaction elems", int(t.env.IeCount()))
	t.profiler.SetCount("points", int(t.env.PointCount()))
	return nil
}

// Environment returns the underlying point-cloud environment for stage
// dispatch.
func (t *Tracer) Environment() *env.PointCloudEnvironment { return t.env }

// EnvironmentData returns the device-side environment view.
func (t *Tracer) EnvironmentData() env.EnvironmentData { return t.env.EnvironmentData() }

// AddPaths folds a batch of raw candidate paths into the dedup store.
func (t *Tracer) AddPaths(infos []core.PathInfo, interactions, normals []mgl32.Vec3, labels, materials []uint32) error {
	t.profiler.BeginScope("add-paths")
	defer t.profiler.EndScope("add-paths")
	if err := t.paths.AddPaths(infos, interactions, normals, labels, materials); err != nil {
		return err
	}
	t.profiler.SetCount("canonical paths", t.paths.PathCount())
	return nil
}

// Paths returns the underlying dedup store.
func (t *Tracer) Paths() *path.Storage { return t.paths }

// PathData exports the concatenated columnar layout.
func (t *Tracer) PathData() path.PathData {
	t.profiler.BeginScope("export-flat")
	defer t.profiler.EndScope("export-flat")
	return t.paths.ToPathData()
}

// SionnaPathData exports the padded dense per-link grids.
func (t *Tracer) SionnaPathData() path.SionnaPathData {
	t.profiler.BeginScope("export-sionna")
	defer t.profiler.EndScope("export-sionna")
	return t.paths.ToSionnaPathData()
}

// Release frees the device resources the tracer owns. The device itself
// belongs to the caller.
func (t *Tracer) Release() {
	t.env.Release()
}
