package loader

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chazu/tractview/pkg/tract"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ParseOBJ reads the polylines of a Wavefront OBJ stream. Only "v" and "l"
// records are used; "l" indices are 1-based, negative ones count back from
// the most recent vertex, and "a/b" references use a. Everything else,
// including "#" comments, is ignored.
func ParseOBJ(r io.Reader) (tract.Set, error) {
	var (
		verts []v3.Vec
		out   = tract.Set{}
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, &LoadError{Line: line, Err: fmt.Errorf("vertex needs 3 coordinates, got %d", len(fields)-1)}
			}
			var c [3]float64
			for k := range c {
				f, err := strconv.ParseFloat(fields[k+1], 64)
				if err != nil {
					return nil, &LoadError{Line: line, Err: fmt.Errorf("vertex coordinate %q: %w", fields[k+1], err)}
				}
				c[k] = f
			}
			verts = append(verts, v3.Vec{X: c[0], Y: c[1], Z: c[2]})
		case "l":
			if len(fields) < 3 {
				return nil, &LoadError{Line: line, Err: fmt.Errorf("line needs at least 2 vertices, got %d", len(fields)-1)}
			}
			p := make(tract.Polyline, 0, len(fields)-1)
			for _, ref := range fields[1:] {
				v, err := resolve(ref, verts)
				if err != nil {
					return nil, &LoadError{Line: line, Err: err}
				}
				p = append(p, v)
			}
			out = append(out, p)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, &LoadError{Line: line + 1, Err: err}
	}
	return out, nil
}

func resolve(ref string, verts []v3.Vec) (v3.Vec, error) {
	if i := strings.IndexByte(ref, '/'); i >= 0 {
		ref = ref[:i]
	}
	n, err := strconv.Atoi(ref)
	if err != nil {
		return v3.Vec{}, fmt.Errorf("vertex index %q: %w", ref, err)
	}
	idx := n - 1
	if n < 0 {
		idx = len(verts) + n
	}
	if n == 0 || idx < 0 || idx >= len(verts) {
		return v3.Vec{}, fmt.Errorf("vertex index %d out of range (%d vertices)", n, len(verts))
	}
	return verts[idx], nil
}

// WriteOBJ writes s as "v" and "l" records that ParseOBJ reads back.
func WriteOBJ(w io.Writer, s tract.Set) error {
	bw := bufio.NewWriter(w)
	next := 1
	for _, p := range s {
		for _, v := range p {
			fmt.Fprintf(bw, "v %s %s %s\n", ftoa(v.X), ftoa(v.Y), ftoa(v.Z))
		}
		bw.WriteString("l")
		for k := range p {
			bw.WriteString(" " + strconv.Itoa(next+k))
		}
		bw.WriteString("\n")
		next += len(p)
	}
	return bw.Flush()
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
