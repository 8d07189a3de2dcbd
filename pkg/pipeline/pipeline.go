// Package pipeline turns a tract set into tube meshes.
//
// A Generator owns the input and configuration. Each Process call starts a
// Run that moves through the phases
//
//	Decimating -> [GroupingVoxels -> Merging] -> BuildingMeshes -> Done
//
// Every phase fans its items out over a fresh set of workers; the last
// worker to finish starts the next phase. Finished tubes reach the render
// target through the dispatch queue, tagged with the run's generation so
// that a newer Process call silently retires them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chazu/tractview/pkg/config"
	"github.com/chazu/tractview/pkg/dispatch"
	"github.com/chazu/tractview/pkg/kernel"
	"github.com/chazu/tractview/pkg/lod"
	"github.com/chazu/tractview/pkg/logx"
	"github.com/chazu/tractview/pkg/render"
	"github.com/chazu/tractview/pkg/tract"
	"github.com/chazu/tractview/pkg/workpool"
)

// Stage is the state of a Run.
type Stage int32

const (
	Idle Stage = iota
	Decimating
	GroupingVoxels
	Merging
	BuildingMeshes
	Done
	Failed
	Superseded
)

func (s Stage) String() string {
	switch s {
	case Idle:
		return "idle"
	case Decimating:
		return "decimating"
	case GroupingVoxels:
		return "grouping-voxels"
	case Merging:
		return "merging"
	case BuildingMeshes:
		return "building-meshes"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Superseded:
		return "superseded"
	default:
		return fmt.Sprintf("Stage(%d)", int32(s))
	}
}

// Terminal reports whether s is a final state.
func (s Stage) Terminal() bool {
	return s == Done || s == Failed || s == Superseded
}

var (
	// ErrSuperseded is returned by a run that reached a phase boundary
	// after a newer Process call started.
	ErrSuperseded = errors.New("pipeline: run superseded by a newer Process call")

	// ErrWorkerPanic matches (via errors.Is) a PhaseError caused by a
	// panicking worker.
	ErrWorkerPanic = workpool.ErrPanic
)

// PhaseError reports the phase and item at which a run failed.
type PhaseError struct {
	Stage Stage
	Index int
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("pipeline: %s failed at index %d: %v", e.Stage, e.Index, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// Loader fetches a tract set from a source. loader.Default implements it.
type Loader interface {
	Load(ctx context.Context, source string) (tract.Set, error)
}

// Generator drives tube generation for one tract set.
// It is safe for concurrent use.
type Generator struct {
	kernel kernel.Kernel
	queue  *dispatch.Queue
	target render.Target

	mu         sync.Mutex
	cfg        config.Config
	style      render.Style
	policy     lod.CenterlinePolicy
	tracts     tract.Set
	generation uint64
	last       *Run

	// extent is one past the highest tube index the target has seen.
	extent atomic.Int64
}

// New returns a Generator building meshes with k and handing them to
// target through q. A nil q gets a fresh queue.
func New(cfg config.Config, k kernel.Kernel, q *dispatch.Queue, target render.Target) (*Generator, error) {
	if k == nil {
		return nil, errors.New("pipeline: nil kernel")
	}
	if target == nil {
		return nil, errors.New("pipeline: nil render target")
	}
	if q == nil {
		q = dispatch.New()
	}
	g := &Generator{kernel: k, queue: q, target: target}
	if err := g.SetConfig(cfg); err != nil {
		return nil, err
	}
	return g, nil
}

// SetConfig replaces the configuration used by later Process calls.
func (g *Generator) SetConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	style, err := render.NewStyle(cfg.Material, cfg.ColorStart, cfg.ColorEnd)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	policy, err := lod.ParsePolicy(cfg.CenterlinePolicy)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg, g.style, g.policy = cfg, style, policy
	return nil
}

// Config returns the current configuration.
func (g *Generator) Config() config.Config {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

// Queue returns the dispatch queue completions are sent to.
func (g *Generator) Queue() *dispatch.Queue {
	return g.queue
}

// SetTracts replaces the input with a copy of s. A set containing an
// unusable tract is rejected and the previous input kept.
func (g *Generator) SetTracts(s tract.Set) error {
	errs, warnings := tract.Validate(s)
	for _, w := range warnings {
		logx.Logger().Warn("pipeline: input warning", "detail", w.Error())
	}
	if len(errs) > 0 {
		joined := make([]error, len(errs))
		for i, e := range errs {
			joined[i] = e
		}
		return fmt.Errorf("pipeline: invalid tract set: %w", errors.Join(joined...))
	}

	c := s.Clone()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tracts = c
	return nil
}

// Tracts returns a copy of the current input.
func (g *Generator) Tracts() tract.Set {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tracts.Clone()
}

// Load reads every source with l and installs the concatenated result.
// On any failure the previous input is left untouched.
func (g *Generator) Load(ctx context.Context, l Loader, sources ...string) error {
	var all tract.Set
	for _, src := range sources {
		s, err := l.Load(ctx, src)
		if err != nil {
			return fmt.Errorf("pipeline: load: %w", err)
		}
		all = append(all, s...)
	}
	if err := g.SetTracts(all); err != nil {
		return err
	}
	logx.Logger().Info("pipeline: tracts loaded", "sources", len(sources), "tracts", len(all), "points", all.PointCount())
	return nil
}

// Process starts a new run over the current input and returns it. With a
// resolved thread count of zero or less every phase runs on the calling
// goroutine and the run is finished when Process returns.
//
// Starting a run supersedes every earlier one: their queued completions
// are discarded and they stop with ErrSuperseded at their next phase
// boundary.
func (g *Generator) Process() *Run {
	g.mu.Lock()
	g.generation++
	r := newRun(g, g.generation, g.cfg, g.style, g.policy, g.tracts)
	g.last = r
	g.mu.Unlock()

	g.queue.Supersede(r.Generation)
	r.start()
	return r
}

// Last returns the most recently started run, or nil.
func (g *Generator) Last() *Run {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Tick runs up to the configured per-tick budget of queued completions.
// Call it once per host frame from the goroutine owning the render target.
func (g *Generator) Tick() int {
	return g.queue.Drain(g.Config().PerTickDispatchBudget)
}

// grow raises extent to n.
func (g *Generator) grow(n int) {
	for {
		cur := g.extent.Load()
		if int64(n) <= cur || g.extent.CompareAndSwap(cur, int64(n)) {
			return
		}
	}
}

// current reports whether gen is still the newest generation.
func (g *Generator) current(gen uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generation == gen
}
