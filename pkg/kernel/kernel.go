// Package kernel defines the abstract tube-mesh kernel interface.
// Implementations (ring) turn a centerline and radius profile into a
// renderable triangle mesh behind this interface. The kernel abstraction
// allows swapping mesh generators without changing the pipeline.
package kernel

import (
	"errors"

	"github.com/chazu/tractview/pkg/tract"
)

// MinSides is the smallest number of vertices per ring that encloses area.
const MinSides = 3

// Sentinel errors returned (wrapped) by kernel implementations.
var (
	ErrTooFewPoints   = errors.New("kernel: centerline needs at least 2 points")
	ErrTooFewSides    = errors.New("kernel: tube needs at least 3 sides")
	ErrRadiusMismatch = errors.New("kernel: radius profile length differs from centerline")
	ErrBadScale       = errors.New("kernel: scale must be positive")
)

// Kernel is the abstract tube-mesh kernel interface.
type Kernel interface {
	// Tube builds a tube around centerline with one ring of sides vertices
	// per point, radius radii[i] at point i, plus one cap centre vertex at
	// each end. Vertex positions are multiplied by scale.
	Tube(centerline tract.Polyline, scale float64, radii tract.RadiusProfile, sides int) (*Mesh, error)
}

// CheckTubeArgs validates the common Tube arguments and returns the first
// violated sentinel error, or nil.
func CheckTubeArgs(centerline tract.Polyline, scale float64, radii tract.RadiusProfile, sides int) error {
	switch {
	case len(centerline) < 2:
		return ErrTooFewPoints
	case sides < MinSides:
		return ErrTooFewSides
	case len(radii) != len(centerline):
		return ErrRadiusMismatch
	case !(scale > 0):
		return ErrBadScale
	}
	return nil
}
