package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chazu/tractview/pkg/config"
	"github.com/chazu/tractview/pkg/decimate"
	"github.com/chazu/tractview/pkg/kernel"
	"github.com/chazu/tractview/pkg/lod"
	"github.com/chazu/tractview/pkg/logx"
	"github.com/chazu/tractview/pkg/render"
	"github.com/chazu/tractview/pkg/tessellate"
	"github.com/chazu/tractview/pkg/tract"
	"github.com/chazu/tractview/pkg/voxel"
	"github.com/chazu/tractview/pkg/workpool"
	"github.com/google/uuid"
)

// Result holds the per-index outputs of a finished run. Decimated has one
// entry per input tract; Radii, Merged and Meshes have one entry per tube,
// which is one per voxel group with LOD enabled and one per tract without.
type Result struct {
	Decimated tract.Set
	Radii     []tract.RadiusProfile
	Groups    []voxel.Group
	Merged    []lod.Merged
	Meshes    []*kernel.Mesh
}

// Tubes returns the number of meshes built.
func (r Result) Tubes() int {
	return len(r.Meshes)
}

// Run is one pass of the pipeline.
type Run struct {
	Generation uint64
	ID         uuid.UUID

	g       *Generator
	cfg     config.Config
	style   render.Style
	policy  lod.CenterlinePolicy
	workers int
	input   tract.Set
	began   time.Time

	stage atomic.Int32
	once  sync.Once
	done  chan struct{}

	result Result
	err    error

	base    []tract.RadiusProfile
	grouper *voxel.Grouper
}

func newRun(g *Generator, gen uint64, cfg config.Config, style render.Style, policy lod.CenterlinePolicy, raw tract.Set) *Run {
	input := raw
	if cfg.NormalizeInput {
		input = tract.Normalize(raw)
	}
	return &Run{
		Generation: gen,
		ID:         uuid.New(),
		g:          g,
		cfg:        cfg,
		style:      style,
		policy:     policy,
		workers:    workpool.Resolve(cfg.ThreadCount),
		input:      input,
		done:       make(chan struct{}),
	}
}

// Stage returns the current state.
func (r *Run) Stage() Stage {
	return Stage(r.stage.Load())
}

// Done is closed once the run reached a terminal stage.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finishes or ctx is done.
func (r *Run) Wait(ctx context.Context) (Result, error) {
	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// logger returns the package logger tagged with the run identity.
func (r *Run) logger() *slog.Logger {
	return logx.Logger().With("run", r.ID.String(), "generation", r.Generation)
}

func (r *Run) enter(s Stage) {
	r.stage.Store(int32(s))
	r.logger().Debug("pipeline: phase", "stage", s.String())
}

func (r *Run) start() {
	r.began = time.Now()
	r.logger().Debug("pipeline: run started",
		"tracts", len(r.input), "workers", r.workers, "lod", r.cfg.LODEnabled)
	r.decimate()
}

func (r *Run) decimate() {
	r.enter(Decimating)
	n := len(r.input)
	r.result.Decimated = make(tract.Set, n)
	r.base = make([]tract.RadiusProfile, n)
	workpool.Spawn(r.workers, workpool.Phase{
		Items: n,
		Work: func(i int) error {
			d := decimate.Polyline(r.input[i], r.cfg.DecimationAngleDeg)
			r.result.Decimated[i] = d
			r.base[i] = tract.Constant(len(d), r.cfg.BaseRadius)
			return nil
		},
		Done: func(err error) {
			if r.stopped(Decimating, err) {
				return
			}
			if r.cfg.LODEnabled {
				r.group()
				return
			}
			r.build(r.result.Decimated, r.base)
		},
	})
}

func (r *Run) group() {
	r.enter(GroupingVoxels)
	r.grouper = voxel.NewGrouper(r.cfg.VoxelResolution, r.cfg.SymmetricVoxelKeys)
	workpool.Spawn(r.workers, workpool.Phase{
		Items: len(r.result.Decimated),
		Work: func(i int) error {
			r.grouper.Add(i, r.result.Decimated[i])
			return nil
		},
		Done: func(err error) {
			if r.stopped(GroupingVoxels, err) {
				return
			}
			groups := r.grouper.Groups()
			if err := voxel.Validate(groups, len(r.result.Decimated)); err != nil {
				r.finish(Failed, &PhaseError{Stage: GroupingVoxels, Index: -1, Err: err})
				return
			}
			r.logger().Debug("pipeline: grouped", "tracts", len(r.result.Decimated), "groups", r.grouper.Len())
			r.result.Groups = groups
			r.merge()
		},
	})
}

func (r *Run) merge() {
	r.enter(Merging)
	groups := r.result.Groups
	r.result.Merged = make([]lod.Merged, len(groups))
	workpool.Spawn(r.workers, workpool.Phase{
		Items: len(groups),
		Work: func(k int) error {
			members := make([]lod.Member, len(groups[k].Members))
			for j, idx := range groups[k].Members {
				members[j] = lod.Member{Line: r.result.Decimated[idx], Radii: r.base[idx]}
			}
			m, err := lod.Merge(members, r.policy)
			if err != nil {
				return err
			}
			m.Members = groups[k].Members
			r.result.Merged[k] = m
			return nil
		},
		Done: func(err error) {
			if r.stopped(Merging, err) {
				return
			}
			lines := make([]tract.Polyline, len(r.result.Merged))
			radii := make([]tract.RadiusProfile, len(r.result.Merged))
			for k, m := range r.result.Merged {
				lines[k], radii[k] = m.Centerline, m.Radii
			}
			r.build(lines, radii)
		},
	})
}

func (r *Run) build(lines []tract.Polyline, radii []tract.RadiusProfile) {
	r.enter(BuildingMeshes)
	count := len(lines)
	r.result.Radii = radii
	r.result.Meshes = make([]*kernel.Mesh, count)
	opts := tessellate.Options{Scale: r.cfg.Scale, Sides: r.cfg.SidesPerRing}
	q, target := r.g.queue, r.g.target
	workpool.Spawn(r.workers, workpool.Phase{
		Items: count,
		Work: func(i int) error {
			m, err := tessellate.Tube(r.g.kernel, i, lines[i], radii[i], opts)
			if err != nil {
				return err
			}
			r.result.Meshes[i] = m
			material, c := r.style.Material, r.style.ColorAt(i, count)
			q.Enqueue(r.Generation, func() {
				target.Attach(i, m, material, c)
				r.g.grow(i + 1)
			})
			return nil
		},
		Done: func(err error) {
			if r.stopped(BuildingMeshes, err) {
				return
			}
			if total := len(r.input); total > 0 || r.g.extent.Load() > 0 {
				g := r.g
				q.Enqueue(r.Generation, func() {
					n := max(total, count, int(g.extent.Load()))
					for i := 0; i < n; i++ {
						target.SetVisible(i, i < count)
					}
					g.grow(n)
				})
			}
			r.finish(Done, nil)
		},
	})
}

// stopped ends the run when the phase failed or a newer run has started,
// and reports whether it did.
func (r *Run) stopped(s Stage, err error) bool {
	if err != nil {
		pe := &PhaseError{Stage: s, Index: -1, Err: err}
		var ie *workpool.ItemError
		if errors.As(err, &ie) {
			pe.Index, pe.Err = ie.Index, ie.Err
		}
		r.finish(Failed, pe)
		return true
	}
	if !r.g.current(r.Generation) {
		r.finish(Superseded, ErrSuperseded)
		return true
	}
	return false
}

func (r *Run) finish(s Stage, err error) {
	r.once.Do(func() {
		r.err = err
		r.stage.Store(int32(s))
		if s == Failed {
			// Tubes already built must not reach the target.
			r.g.queue.Discard(r.Generation)
		}
		elapsed := time.Since(r.began)
		switch s {
		case Done:
			r.logger().Info("pipeline: run finished",
				"tubes", len(r.result.Meshes), "groups", len(r.result.Groups), "elapsed", elapsed)
		case Superseded:
			r.logger().Debug("pipeline: run superseded", "elapsed", elapsed, "dropped", r.g.queue.Dropped())
		default:
			r.logger().Warn("pipeline: run failed", "err", err, "elapsed", elapsed)
		}
		close(r.done)
	})
}
