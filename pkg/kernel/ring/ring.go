// Package ring implements kernel.Kernel by sweeping a ring of vertices
// along the centerline.
//
// Every centerline point gets one ring of sides vertices, oriented by a
// rotation-minimizing frame so the tube does not twist on curved tracts.
// Two cap centre vertices close the ends: vertex n*sides is the start cap,
// n*sides+1 the end cap.
package ring

import (
	"fmt"
	"math"

	"github.com/chazu/tractview/pkg/kernel"
	"github.com/chazu/tractview/pkg/tract"
	"github.com/chewxy/math32"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface check.
var _ kernel.Kernel = (*Builder)(nil)

// Builder implements kernel.Kernel. The zero value is ready to use.
type Builder struct{}

// New returns a new Builder.
func New() *Builder {
	return &Builder{}
}

// Tube builds the ring tube. Triangles wind counter-clockwise seen from
// outside: 2*sides per segment and sides per cap.
func (b *Builder) Tube(centerline tract.Polyline, scale float64, radii tract.RadiusProfile, sides int) (*kernel.Mesh, error) {
	if err := kernel.CheckTubeArgs(centerline, scale, radii, sides); err != nil {
		return nil, fmt.Errorf("ring: %w", err)
	}

	n := len(centerline)
	vertCount := n*sides + 2
	startCap := uint32(n * sides)
	endCap := startCap + 1

	m := &kernel.Mesh{
		Vertices: make([]float32, 0, vertCount*3),
		Normals:  make([]float32, vertCount*3),
		UVs:      make([]float32, 0, vertCount*2),
		Indices:  make([]uint32, 0, (2*sides*(n-1)+2*sides)*3),
	}

	normals, binormals := frames(centerline)
	for i, p := range centerline {
		v := float32(i) / float32(n-1)
		for j := 0; j < sides; j++ {
			a := 2 * math.Pi * float64(j) / float64(sides)
			offset := normals[i].MulScalar(math.Cos(a)).Add(binormals[i].MulScalar(math.Sin(a)))
			q := p.Add(offset.MulScalar(radii[i])).MulScalar(scale)
			m.Vertices = append(m.Vertices, float32(q.X), float32(q.Y), float32(q.Z))
			m.UVs = append(m.UVs, float32(j)/float32(sides), v)
		}
	}
	for _, p := range []v3.Vec{centerline[0], centerline[n-1]} {
		q := p.MulScalar(scale)
		m.Vertices = append(m.Vertices, float32(q.X), float32(q.Y), float32(q.Z))
	}
	m.UVs = append(m.UVs, 0.5, 0, 0.5, 1)

	s := uint32(sides)
	for i := uint32(0); i < uint32(n-1); i++ {
		for j := uint32(0); j < s; j++ {
			a := i*s + j
			b := i*s + (j+1)%s
			c := (i+1)*s + j
			d := (i+1)*s + (j+1)%s
			m.Indices = append(m.Indices, a, b, c, b, d, c)
		}
	}
	last := uint32(n-1) * s
	for j := uint32(0); j < s; j++ {
		next := (j + 1) % s
		m.Indices = append(m.Indices, startCap, next, j)
		m.Indices = append(m.Indices, endCap, last+j, last+next)
	}

	accumulateNormals(m)
	for i := 1; i < n-1; i++ {
		seam := i * sides
		copy(m.Normals[3*seam:3*seam+3], m.Normals[3*(seam+sides-1):3*(seam+sides)])
	}
	return m, nil
}

// accumulateNormals sums area-weighted face normals into every vertex and
// normalizes the result.
func accumulateNormals(m *kernel.Mesh) {
	for t := 0; t < m.TriangleCount(); t++ {
		tri := m.Triangle(t)
		p0, p1, p2 := m.Vertex(int(tri[0])), m.Vertex(int(tri[1])), m.Vertex(int(tri[2]))
		e1 := [3]float32{p1[0] - p0[0], p1[1] - p0[1], p1[2] - p0[2]}
		e2 := [3]float32{p2[0] - p0[0], p2[1] - p0[1], p2[2] - p0[2]}
		face := [3]float32{
			e1[1]*e2[2] - e1[2]*e2[1],
			e1[2]*e2[0] - e1[0]*e2[2],
			e1[0]*e2[1] - e1[1]*e2[0],
		}
		for _, vi := range tri {
			m.Normals[3*vi] += face[0]
			m.Normals[3*vi+1] += face[1]
			m.Normals[3*vi+2] += face[2]
		}
	}
	for i := 0; i < len(m.Normals); i += 3 {
		nx, ny, nz := m.Normals[i], m.Normals[i+1], m.Normals[i+2]
		l := math32.Sqrt(nx*nx + ny*ny + nz*nz)
		if l == 0 {
			continue
		}
		m.Normals[i], m.Normals[i+1], m.Normals[i+2] = nx/l, ny/l, nz/l
	}
}

// tangents returns unit tangents: one-sided at the ends, central inside.
// Degenerate tangents (repeated points) inherit the previous one.
func tangents(p tract.Polyline) []v3.Vec {
	n := len(p)
	t := make([]v3.Vec, n)
	prev := v3.Vec{Z: 1}
	for i := range p {
		lo, hi := max(i-1, 0), min(i+1, n-1)
		d := p[hi].Sub(p[lo])
		if d.Length2() == 0 {
			t[i] = prev
			continue
		}
		t[i] = d.Normalize()
		prev = t[i]
	}
	return t
}

// frames computes a rotation-minimizing frame (normal, binormal) at every
// point by the double reflection method.
func frames(p tract.Polyline) (normals, binormals []v3.Vec) {
	t := tangents(p)
	n := len(p)
	normals = make([]v3.Vec, n)
	binormals = make([]v3.Vec, n)

	normals[0] = initialNormal(t[0])
	binormals[0] = t[0].Cross(normals[0])

	for i := 0; i < n-1; i++ {
		r := normals[i]
		v1 := p[i+1].Sub(p[i])
		if c1 := v1.Dot(v1); c1 > 0 {
			rL := r.Sub(v1.MulScalar(2 / c1 * v1.Dot(r)))
			tL := t[i].Sub(v1.MulScalar(2 / c1 * v1.Dot(t[i])))
			v2 := t[i+1].Sub(tL)
			if c2 := v2.Dot(v2); c2 > 0 {
				r = rL.Sub(v2.MulScalar(2 / c2 * v2.Dot(rL)))
			} else {
				r = rL
			}
		}
		// Re-orthogonalize against the tangent to keep rounding from drifting.
		r = r.Sub(t[i+1].MulScalar(r.Dot(t[i+1])))
		if r.Length2() == 0 {
			r = initialNormal(t[i+1])
		}
		normals[i+1] = r.Normalize()
		binormals[i+1] = t[i+1].Cross(normals[i+1])
	}
	return normals, binormals
}

// initialNormal returns a unit vector perpendicular to t, built from the
// world axis least aligned with it.
func initialNormal(t v3.Vec) v3.Vec {
	axis := v3.Vec{X: 1}
	a := t.Abs()
	if a.Y <= a.X && a.Y <= a.Z {
		axis = v3.Vec{Y: 1}
	} else if a.Z <= a.X && a.Z <= a.Y {
		axis = v3.Vec{Z: 1}
	}
	return t.Cross(axis).Normalize()
}
