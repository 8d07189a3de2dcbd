// Package sdfx bridges kernel meshes to the github.com/deadsy/sdfx
// triangle types, so tube sets can be written with the sdfx STL writer.
package sdfx

import (
	"errors"
	"fmt"

	"github.com/chazu/tractview/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ErrNoGeometry is returned when there is nothing to export.
var ErrNoGeometry = errors.New("sdfx: no triangles to export")

// Triangles converts an indexed mesh to the sdfx triangle list. Nil and
// empty meshes yield no triangles.
func Triangles(m *kernel.Mesh) []*sdf.Triangle3 {
	if m == nil || m.IsEmpty() {
		return nil
	}
	vec := func(i uint32) v3.Vec {
		p := m.Vertex(int(i))
		return v3.Vec{X: float64(p[0]), Y: float64(p[1]), Z: float64(p[2])}
	}
	out := make([]*sdf.Triangle3, 0, m.TriangleCount())
	for t := 0; t < m.TriangleCount(); t++ {
		tri := m.Triangle(t)
		out = append(out, &sdf.Triangle3{vec(tri[0]), vec(tri[1]), vec(tri[2])})
	}
	return out
}

// Bounds returns the bounding box of all mesh vertices. ok is false when
// the meshes carry no vertices.
func Bounds(meshes []*kernel.Mesh) (box sdf.Box3, ok bool) {
	for _, m := range meshes {
		if m == nil {
			continue
		}
		for i := 0; i < m.VertexCount(); i++ {
			p := m.Vertex(i)
			v := v3.Vec{X: float64(p[0]), Y: float64(p[1]), Z: float64(p[2])}
			if !ok {
				box = sdf.Box3{Min: v, Max: v}
				ok = true
				continue
			}
			box = sdf.Box3{Min: box.Min.Min(v), Max: box.Max.Max(v)}
		}
	}
	return box, ok
}

// SaveSTL writes every mesh into one binary STL file at path. Nil meshes
// (tracts that were not built) are skipped.
func SaveSTL(path string, meshes []*kernel.Mesh) error {
	var all []*sdf.Triangle3
	for _, m := range meshes {
		all = append(all, Triangles(m)...)
	}
	if len(all) == 0 {
		return ErrNoGeometry
	}
	if err := render.SaveSTL(path, all); err != nil {
		return fmt.Errorf("sdfx: write %s: %w", path, err)
	}
	return nil
}
