// Package tessellate turns centerlines into named tube meshes using a
// geometry kernel. One mesh is produced per tract or merged bundle.
package tessellate

import (
	"fmt"

	"github.com/chazu/tractview/pkg/kernel"
	"github.com/chazu/tractview/pkg/tract"
)

// Options carries the mesh settings shared by every tube of a run.
type Options struct {
	Scale float64
	Sides int
}

// Name returns the mesh name of tube index i.
func Name(i int) string {
	return fmt.Sprintf("tract-%d", i)
}

// Tube builds tube index i and names it. The kernel's sentinel errors stay
// reachable through errors.Is.
func Tube(k kernel.Kernel, i int, line tract.Polyline, radii tract.RadiusProfile, opts Options) (*kernel.Mesh, error) {
	mesh, err := k.Tube(line, opts.Scale, radii, opts.Sides)
	if err != nil {
		return nil, fmt.Errorf("tessellate: tube %d: %w", i, err)
	}
	mesh.Name = Name(i)
	return mesh, nil
}
