// Package render defines the render-side collaborator that receives tube
// meshes, plus the colour style applied to them.
package render

import (
	"fmt"
	"image/color"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/chazu/tractview/pkg/kernel"
)

// Target receives finished tubes. All calls arrive on the goroutine that
// drains the dispatch queue. Attach on an index replaces the previous mesh.
type Target interface {
	Attach(index int, mesh *kernel.Mesh, material string, c color.RGBA)
	SetVisible(index int, visible bool)
}

// Style picks the material and per-tract colour.
type Style struct {
	Material string
	Start    color.RGBA
	End      color.RGBA
}

// NewStyle parses #RRGGBB (or RRGGBB) colours into a Style.
func NewStyle(material, start, end string) (Style, error) {
	s, err := ParseHex(start)
	if err != nil {
		return Style{}, err
	}
	e, err := ParseHex(end)
	if err != nil {
		return Style{}, err
	}
	return Style{Material: material, Start: s, End: e}, nil
}

// ColorAt lerps from Start to End by i/n, so the last of n tubes stops one
// step short of End. n <= 0 yields Start.
func (s Style) ColorAt(i, n int) color.RGBA {
	if n <= 0 {
		return s.Start
	}
	t := float64(i) / float64(n)
	lerp := func(a, b uint8) uint8 {
		return uint8(float64(a) + (float64(b)-float64(a))*t + 0.5)
	}
	return color.RGBA{
		R: lerp(s.Start.R, s.End.R),
		G: lerp(s.Start.G, s.End.G),
		B: lerp(s.Start.B, s.End.B),
		A: lerp(s.Start.A, s.End.A),
	}
}

// ParseHex parses #RRGGBB or #RRGGBBAA.
func ParseHex(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 && len(h) != 8 {
		return color.RGBA{}, fmt.Errorf("render: colour %q must be #RRGGBB or #RRGGBBAA", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("render: colour %q: %w", s, err)
	}
	if len(h) == 6 {
		v = v<<8 | 0xFF
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// Hex formats c as #RRGGBB, dropping alpha.
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// Tube is what a Recorder holds for one index.
type Tube struct {
	Mesh     *kernel.Mesh
	Material string
	Color    color.RGBA
	Visible  bool
}

// Recorder is an in-memory Target keeping the latest state per index.
// Safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	tubes    map[int]*Tube
	attached int
}

var _ Target = (*Recorder)(nil)

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{tubes: make(map[int]*Tube)}
}

func (r *Recorder) tube(i int) *Tube {
	t, ok := r.tubes[i]
	if !ok {
		t = &Tube{}
		r.tubes[i] = t
	}
	return t
}

// Attach records mesh at index and marks it visible.
func (r *Recorder) Attach(index int, mesh *kernel.Mesh, material string, c color.RGBA) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.tube(index)
	t.Mesh, t.Material, t.Color, t.Visible = mesh, material, c, true
	r.attached++
}

// SetVisible records visibility at index.
func (r *Recorder) SetVisible(index int, visible bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tube(index).Visible = visible
}

// Tube returns a copy of the state at index.
func (r *Recorder) Tube(index int) (Tube, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tubes[index]
	if !ok {
		return Tube{}, false
	}
	return *t, true
}

// Len returns the number of indices seen.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tubes)
}

// Attaches returns the total number of Attach calls.
func (r *Recorder) Attaches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attached
}

// Visible returns the sorted indices currently visible with a mesh.
func (r *Recorder) Visible() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for i, t := range r.tubes {
		if t.Visible && t.Mesh != nil {
			out = append(out, i)
		}
	}
	slices.Sort(out)
	return out
}

// Meshes returns the attached meshes indexed 0..max, nil where missing or
// hidden.
func (r *Recorder) Meshes() []*kernel.Mesh {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for i := range r.tubes {
		n = max(n, i+1)
	}
	out := make([]*kernel.Mesh, n)
	for i, t := range r.tubes {
		if t.Visible {
			out[i] = t.Mesh
		}
	}
	return out
}
