package main

import (
	"context"
	"errors"
	"image/color"
	"sync"
	"time"

	"github.com/chazu/tractview/pkg/config"
	"github.com/chazu/tractview/pkg/engine"
	"github.com/chazu/tractview/pkg/kernel"
	"github.com/chazu/tractview/pkg/kernel/ring"
	"github.com/chazu/tractview/pkg/loader"
	"github.com/chazu/tractview/pkg/logx"
	"github.com/chazu/tractview/pkg/pipeline"
	"github.com/chazu/tractview/pkg/render"
	"github.com/chazu/tractview/pkg/tract"
	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// Events emitted to the frontend.
const (
	EventAttach  = "tube:attach"
	EventVisible = "tube:visible"
	EventRun     = "run:finished"
)

// tickInterval is the host frame period used to drain finished tubes.
const tickInterval = 16 * time.Millisecond

// App is the Wails backend. It exposes methods to the frontend via bindings
// and acts as the render target of the tube pipeline, forwarding every
// attached tube to the frontend as an event.
type App struct {
	ctx    context.Context
	stop   context.CancelFunc
	engine *engine.Engine
	loader *loader.Default
	gen    *pipeline.Generator

	// emit sends an event to the frontend. Replaced in tests.
	emit func(name string, data ...any)

	mu sync.Mutex // serialises Evaluate/Open/Regenerate
}

// TubeData is the JSON-serializable tube sent with EventAttach.
type TubeData struct {
	Index    int       `json:"index"`
	Name     string    `json:"name"`
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	UVs      []float32 `json:"uvs"`
	Indices  []uint32  `json:"indices"`
	Material string    `json:"material"`
	Color    string    `json:"color"`
}

// VisibleData is the payload of EventVisible.
type VisibleData struct {
	Index   int  `json:"index"`
	Visible bool `json:"visible"`
}

// RunData is the payload of EventRun.
type RunData struct {
	Generation uint64 `json:"generation"`
	Stage      string `json:"stage"`
	Tubes      int    `json:"tubes"`
	Error      string `json:"error,omitempty"`
}

// EvalErrorData is a JSON-serializable eval error for the frontend.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// EvalResult is returned to the frontend once a run has been started.
// Tubes follow asynchronously as EventAttach events.
type EvalResult struct {
	Tracts     int             `json:"tracts"`
	Points     int             `json:"points"`
	Generation uint64          `json:"generation"`
	Errors     []EvalErrorData `json:"errors"`
}

// NewApp creates a new App generating tubes with the ring kernel.
func NewApp(cfg config.Config) (*App, error) {
	a := &App{
		engine: engine.NewEngine(),
		loader: &loader.Default{},
	}
	a.emit = a.emitRuntime
	gen, err := pipeline.New(cfg, ring.New(), nil, a)
	if err != nil {
		return nil, err
	}
	a.gen = gen
	return a, nil
}

// startup is called by Wails on app startup. The context is saved for
// runtime calls and drives the host tick loop.
func (a *App) startup(ctx context.Context) {
	a.ctx, a.stop = context.WithCancel(ctx)
	go a.tickLoop(a.ctx)
}

// shutdown is called by Wails when the window closes.
func (a *App) shutdown(ctx context.Context) {
	if a.stop != nil {
		a.stop()
	}
}

func (a *App) tickLoop(ctx context.Context) {
	t := time.NewTicker(tickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.Tick()
		}
	}
}

func (a *App) emitRuntime(name string, data ...any) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, name, data...)
}

// Tick hands up to one budget of finished tubes to the frontend.
func (a *App) Tick() int {
	return a.gen.Tick()
}

// Attach implements render.Target.
func (a *App) Attach(index int, mesh *kernel.Mesh, material string, c color.RGBA) {
	a.emit(EventAttach, TubeData{
		Index:    index,
		Name:     mesh.Name,
		Vertices: mesh.Vertices,
		Normals:  mesh.Normals,
		UVs:      mesh.UVs,
		Indices:  mesh.Indices,
		Material: material,
		Color:    render.Hex(c),
	})
}

// SetVisible implements render.Target.
func (a *App) SetVisible(index int, visible bool) {
	a.emit(EventVisible, VisibleData{Index: index, Visible: visible})
}

// Evaluate takes tract script source, installs the tracts it declares and
// starts a run. This is the primary binding called by the frontend editor.
func (a *App) Evaluate(source string) EvalResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		// Fatal error (panic, timeout, superseded)
		logx.Logger().Warn("app: evaluate failed", "err", err)
		return failed(EvalErrorData{Message: err.Error()})
	}
	if len(evalErrs) > 0 {
		out := make([]EvalErrorData, len(evalErrs))
		for i, e := range evalErrs {
			out[i] = EvalErrorData{Line: e.Line, Col: e.Col, Message: e.Message}
		}
		return failed(out...)
	}
	return a.install(s)
}

// Open loads a file path or URL (OBJ, compressed OBJ or tract script) and
// starts a run over it.
func (a *App) Open(source string) EvalResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx := a.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := a.loader.Load(ctx, source)
	if err != nil {
		logx.Logger().Warn("app: open failed", "source", source, "err", err)
		data := EvalErrorData{Message: err.Error()}
		var le *loader.LoadError
		if errors.As(err, &le) {
			data.Line = le.Line
		}
		return failed(data)
	}
	return a.install(s)
}

// Regenerate restarts generation over the current input, e.g. after a
// configuration change.
func (a *App) Regenerate() EvalResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.start(a.gen.Tracts())
}

// Config returns the active configuration.
func (a *App) Config() config.Config {
	return a.gen.Config()
}

// SetConfig validates and installs cfg, then regenerates.
func (a *App) SetConfig(cfg config.Config) EvalResult {
	if err := a.gen.SetConfig(cfg); err != nil {
		return failed(EvalErrorData{Message: err.Error()})
	}
	return a.Regenerate()
}

func (a *App) install(s tract.Set) EvalResult {
	if err := a.gen.SetTracts(s); err != nil {
		return failed(EvalErrorData{Message: err.Error()})
	}
	return a.start(s)
}

func (a *App) start(s tract.Set) EvalResult {
	r := a.gen.Process()
	go a.watch(r)
	return EvalResult{
		Tracts:     len(s),
		Points:     s.PointCount(),
		Generation: r.Generation,
		Errors:     []EvalErrorData{},
	}
}

// Status reports the most recent run. Tubes and Error are only set once
// the run has finished. The zero RunData means nothing has run yet.
func (a *App) Status() RunData {
	r := a.gen.Last()
	if r == nil {
		return RunData{}
	}
	if !r.Stage().Terminal() {
		return RunData{Generation: r.Generation, Stage: r.Stage().String()}
	}
	res, err := r.Wait(context.Background())
	return runData(r, res, err)
}

// watch reports the outcome of r to the frontend. Superseded runs are
// not reported.
func (a *App) watch(r *pipeline.Run) {
	res, err := r.Wait(context.Background())
	if r.Stage() == pipeline.Superseded {
		return
	}
	a.emit(EventRun, runData(r, res, err))
}

func runData(r *pipeline.Run, res pipeline.Result, err error) RunData {
	data := RunData{Generation: r.Generation, Stage: r.Stage().String(), Tubes: res.Tubes()}
	if err != nil {
		data.Error = err.Error()
	}
	return data
}

func failed(errs ...EvalErrorData) EvalResult {
	return EvalResult{Errors: errs}
}
