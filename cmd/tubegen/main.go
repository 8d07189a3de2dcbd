// Command tubegen builds tube meshes for fibre tracts and writes them as STL.
//
//	tubegen [flags] source...
//
// Sources are OBJ files (optionally .gz or .zst compressed), tract scripts
// (.tract, .lisp) or http(s) URLs to either. With -watch, local sources are
// re-read and the tubes rebuilt whenever one of them changes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/chazu/tractview/pkg/config"
	"github.com/chazu/tractview/pkg/kernel/ring"
	"github.com/chazu/tractview/pkg/kernel/sdfx"
	"github.com/chazu/tractview/pkg/loader"
	"github.com/chazu/tractview/pkg/logx"
	"github.com/chazu/tractview/pkg/pipeline"
	"github.com/chazu/tractview/pkg/render"
	"github.com/chazu/tractview/pkg/tract"
	"github.com/deadsy/sdfx/sdf"
	"github.com/fsnotify/fsnotify"
)

// frame is the host tick period used to drain finished tubes.
const frame = 16 * time.Millisecond

// settleDelay coalesces bursts of file events into one rebuild.
const settleDelay = 200 * time.Millisecond

type options struct {
	configPath  string
	out         string
	centerlines string
	threads     int
	lod         bool
	angle       float64
	watch       bool
	verbose     bool
	sources     []string

	// set records which flags were given explicitly.
	set map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("tubegen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "configuration file (.json, .yaml, .toml)")
	fs.StringVar(&o.out, "out", "tubes.stl", "STL output path; empty to skip")
	fs.StringVar(&o.centerlines, "centerlines", "", "also write the tube centerlines as OBJ")
	fs.IntVar(&o.threads, "threads", 1, "worker threads; 0 or less runs inline")
	fs.BoolVar(&o.lod, "lod", false, "merge tracts sharing endpoint voxels")
	fs.Float64Var(&o.angle, "angle", 0, "decimation angle in degrees; 0 disables")
	fs.BoolVar(&o.watch, "watch", false, "rebuild when a local source changes")
	fs.BoolVar(&o.verbose, "v", false, "debug logging")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: tubegen [flags] source...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	o.sources = fs.Args()
	if len(o.sources) == 0 {
		fs.Usage()
		return o, errors.New("no sources given")
	}
	o.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

// buildConfig loads the configuration file, if any, and applies the flags
// that were given explicitly on top of it.
func buildConfig(o options) (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return cfg, err
		}
	}
	if o.set["threads"] {
		cfg.ThreadCount = o.threads
	}
	if o.set["lod"] {
		cfg.LODEnabled = o.lod
	}
	if o.set["angle"] {
		cfg.DecimationAngleDeg = o.angle
	}
	return cfg, cfg.Validate()
}

// summary describes one build.
type summary struct {
	Generation uint64
	Tracts     int
	Points     int
	Groups     int
	Tubes      int
	Triangles  int
	Elapsed    time.Duration

	// Bounds encloses every tube vertex; HasBounds is false without tubes.
	Bounds    sdf.Box3
	HasBounds bool
}

func (s summary) String() string {
	out := fmt.Sprintf("generation %d: %d tracts (%d points) -> %d groups -> %d tubes, %d triangles in %s",
		s.Generation, s.Tracts, s.Points, s.Groups, s.Tubes, s.Triangles, s.Elapsed.Round(time.Millisecond))
	if s.HasBounds {
		min, max := s.Bounds.Min, s.Bounds.Max
		out += fmt.Sprintf(", bounds (%.3g %.3g %.3g)..(%.3g %.3g %.3g)", min.X, min.Y, min.Z, max.X, max.Y, max.Z)
	}
	return out
}

type builder struct {
	opts   options
	gen    *pipeline.Generator
	rec    *render.Recorder
	loader loader.Loader
}

func newBuilder(o options, cfg config.Config) (*builder, error) {
	rec := render.NewRecorder()
	gen, err := pipeline.New(cfg, ring.New(), nil, rec)
	if err != nil {
		return nil, err
	}
	return &builder{opts: o, gen: gen, rec: rec, loader: &loader.Default{}}, nil
}

// build loads every source, runs the pipeline, drains its completions on a
// frame ticker and writes the outputs.
func (b *builder) build(ctx context.Context) (summary, error) {
	start := time.Now()
	s, err := loader.LoadAll(ctx, b.loader, b.opts.sources...)
	if err != nil {
		return summary{}, err
	}
	if err := b.gen.SetTracts(s); err != nil {
		return summary{}, err
	}

	r := b.gen.Process()
	t := time.NewTicker(frame)
	defer t.Stop()
	for {
		b.gen.Tick()
		if r.Stage().Terminal() && b.gen.Queue().Len() == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return summary{}, ctx.Err()
		case <-t.C:
		}
	}
	res, err := r.Wait(ctx)
	if err != nil {
		return summary{}, err
	}

	sum := summary{
		Generation: r.Generation,
		Tracts:     len(s),
		Points:     s.PointCount(),
		Groups:     len(res.Groups),
		Tubes:      res.Tubes(),
	}
	for _, m := range res.Meshes {
		sum.Triangles += m.TriangleCount()
	}
	sum.Bounds, sum.HasBounds = sdfx.Bounds(res.Meshes)

	if b.opts.out != "" {
		if err := sdfx.SaveSTL(b.opts.out, b.rec.Meshes()); err != nil && !errors.Is(err, sdfx.ErrNoGeometry) {
			return sum, err
		}
	}
	if b.opts.centerlines != "" {
		if err := writeCenterlines(b.opts.centerlines, res); err != nil {
			return sum, err
		}
	}
	sum.Elapsed = time.Since(start)
	return sum, nil
}

func writeCenterlines(path string, res pipeline.Result) error {
	lines := res.Decimated
	if res.Merged != nil {
		lines = make(tract.Set, len(res.Merged))
		for i, m := range res.Merged {
			lines[i] = m.Centerline
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := loader.WriteOBJ(f, lines); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// watch rebuilds whenever a local source changes, until ctx is done.
func (b *builder) watch(ctx context.Context, stdout io.Writer) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Editors often replace files, so watch the directories and filter.
	watched := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, src := range b.opts.sources {
		abs, err := filepath.Abs(src)
		if err != nil || isURL(src) {
			continue
		}
		watched[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	if len(watched) == 0 {
		return errors.New("-watch needs at least one local source")
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			return err
		}
	}
	logx.Logger().Info("tubegen: watching", "sources", len(watched))

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			abs, _ := filepath.Abs(ev.Name)
			if !watched[abs] || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(settleDelay)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logx.Logger().Warn("tubegen: watch error", "err", err)
		case <-pending:
			pending = nil
			sum, err := b.build(ctx)
			if err != nil {
				// Keep watching; the next save may fix it.
				fmt.Fprintln(stdout, "rebuild failed:", err)
				continue
			}
			fmt.Fprintln(stdout, sum)
		}
	}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	logx.SetLogger(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := buildConfig(o)
	if err != nil {
		return err
	}
	b, err := newBuilder(o, cfg)
	if err != nil {
		return err
	}
	sum, err := b.build(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, sum)
	if o.watch {
		return b.watch(ctx, stdout)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "tubegen:", err)
		os.Exit(1)
	}
}
