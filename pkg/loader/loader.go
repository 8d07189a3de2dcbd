// Package loader reads tract sets from files, URLs and tract scripts.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/chazu/tractview/pkg/engine"
	"github.com/chazu/tractview/pkg/logx"
	"github.com/chazu/tractview/pkg/tract"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"
)

// MaxSourceSize caps the decompressed size of a single source.
const MaxSourceSize = 256 << 20

var (
	// ErrUnsupported is returned for a source whose format is not recognised.
	ErrUnsupported = errors.New("unsupported source format")
	// ErrTooLarge is returned when a source exceeds MaxSourceSize.
	ErrTooLarge = errors.New("source too large")
)

// Loader fetches a tract set from a source.
type Loader interface {
	Load(ctx context.Context, source string) (tract.Set, error)
}

// LoadError reports the source, and for text formats the line, at which
// loading failed. Line is 0 when it does not apply.
type LoadError struct {
	Source string
	Line   int
	Err    error
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("loader: %s:%d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("loader: %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Default dispatches on the source name:
//
//	http://, https://   fetched, then decoded by the path's extension
//	.obj                Wavefront polylines
//	.obj.gz, .obj.zst   compressed Wavefront
//	.tract, .lisp       tract script
//
// The zero value is ready to use.
type Default struct {
	// Engine evaluates scripts. When nil each script gets its own engine,
	// so concurrent loads do not supersede one another.
	Engine *engine.Engine
	// Client fetches URLs. Defaults to a client with a 30 s timeout.
	Client *http.Client
}

var _ Loader = (*Default)(nil)

var defaultClient = &http.Client{Timeout: 30 * time.Second}

// Load reads one source.
func (d *Default) Load(ctx context.Context, source string) (tract.Set, error) {
	start := time.Now()
	var (
		data []byte
		name = source
		err  error
	)
	if isURL(source) {
		data, err = d.fetch(ctx, source)
		name = urlPath(source)
	} else {
		data, err = readFile(source)
	}
	if err != nil {
		return nil, wrap(source, err)
	}

	s, err := d.decode(ctx, name, data)
	if err != nil {
		return nil, wrap(source, err)
	}
	logx.Logger().Debug("loader: source read",
		"source", source, "tracts", len(s), "points", s.PointCount(), "elapsed", time.Since(start))
	return s, nil
}

func (d *Default) decode(ctx context.Context, name string, data []byte) (tract.Set, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".obj.gz"):
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer r.Close()
		return ParseOBJ(limit(r))
	case strings.HasSuffix(lower, ".obj.zst"):
		r, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer r.Close()
		return ParseOBJ(limit(r))
	case strings.HasSuffix(lower, ".obj"):
		return ParseOBJ(bytes.NewReader(data))
	case strings.HasSuffix(lower, ".tract"), strings.HasSuffix(lower, ".lisp"):
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return d.script(string(data))
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, path.Base(name))
}

func (d *Default) script(source string) (tract.Set, error) {
	eng := d.Engine
	if eng == nil {
		eng = engine.NewEngine()
	}
	s, evalErrs, err := eng.Evaluate(source)
	if err != nil {
		return nil, err
	}
	if len(evalErrs) > 0 {
		return nil, &LoadError{Line: evalErrs[0].Line, Err: errors.New(evalErrs[0].Message)}
	}
	return s, nil
}

func (d *Default) fetch(ctx context.Context, url string) ([]byte, error) {
	client := d.Client
	if client == nil {
		client = defaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: unexpected status %s", resp.Status)
	}
	return readAll(resp.Body)
}

// LoadAll loads every source concurrently and concatenates the results in
// argument order. The first failure cancels the remaining loads.
func LoadAll(ctx context.Context, l Loader, sources ...string) (tract.Set, error) {
	parts := make([]tract.Set, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			s, err := l.Load(ctx, src)
			if err != nil {
				return err
			}
			parts[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out tract.Set
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// urlPath strips the query and fragment so the extension decides the format.
func urlPath(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

func readFile(name string) ([]byte, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readAll(f)
}

func readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSourceSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxSourceSize {
		return nil, ErrTooLarge
	}
	return data, nil
}

// limit bounds a decompressing reader so a small archive cannot expand
// without bound.
func limit(r io.Reader) io.Reader {
	return &limitedReader{r: io.LimitReader(r, MaxSourceSize+1)}
}

type limitedReader struct {
	r io.Reader
	n int
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += n
	if l.n > MaxSourceSize {
		return n, ErrTooLarge
	}
	return n, err
}

// wrap attaches source to err, filling in a LoadError's Source when err
// already is one.
func wrap(source string, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		if le.Source == "" {
			le.Source = source
		}
		return le
	}
	return &LoadError{Source: source, Err: err}
}
