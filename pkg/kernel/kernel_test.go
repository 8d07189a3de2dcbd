package kernel

import (
	"errors"
	"testing"

	"github.com/chazu/tractview/pkg/tract"
)

// --- Mesh helper method tests ---

func TestMeshVertexCount(t *testing.T) {
	tests := []struct {
		name     string
		vertices []float32
		want     int
	}{
		{"empty", nil, 0},
		{"one vertex", []float32{1, 2, 3}, 1},
		{"four vertices", []float32{0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Mesh{Vertices: tt.vertices}
			if got := m.VertexCount(); got != tt.want {
				t.Errorf("VertexCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMeshTriangleCount(t *testing.T) {
	tests := []struct {
		name    string
		indices []uint32
		want    int
	}{
		{"empty", nil, 0},
		{"one triangle", []uint32{0, 1, 2}, 1},
		{"two triangles", []uint32{0, 1, 2, 2, 3, 0}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Mesh{Indices: tt.indices}
			if got := m.TriangleCount(); got != tt.want {
				t.Errorf("TriangleCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMeshIsEmpty(t *testing.T) {
	t.Run("empty mesh", func(t *testing.T) {
		m := &Mesh{}
		if !m.IsEmpty() {
			t.Error("IsEmpty() = false for empty mesh, want true")
		}
	})
	t.Run("non-empty mesh", func(t *testing.T) {
		m := &Mesh{Vertices: []float32{1, 2, 3}}
		if m.IsEmpty() {
			t.Error("IsEmpty() = true for non-empty mesh, want false")
		}
	})
}

func TestMeshAccessors(t *testing.T) {
	m := &Mesh{
		Vertices: []float32{0, 0, 0, 1, 0, 0, 0, 1, 0},
		Normals:  []float32{0, 0, 1, 0, 0, 1, 0, 0, 1},
		Indices:  []uint32{0, 1, 2},
	}
	if got := m.Vertex(1); got != [3]float32{1, 0, 0} {
		t.Errorf("Vertex(1) = %v, want [1 0 0]", got)
	}
	if got := m.Normal(2); got != [3]float32{0, 0, 1} {
		t.Errorf("Normal(2) = %v, want [0 0 1]", got)
	}
	if got := m.Triangle(0); got != [3]uint32{0, 1, 2} {
		t.Errorf("Triangle(0) = %v, want [0 1 2]", got)
	}
}

// --- Compile-time interface check with a stub kernel ---

// stubKernel is a minimal Kernel implementation that proves the interface
// is satisfiable. It returns a single degenerate triangle per tube.
type stubKernel struct{}

func (k *stubKernel) Tube(centerline tract.Polyline, scale float64, radii tract.RadiusProfile, sides int) (*Mesh, error) {
	if err := CheckTubeArgs(centerline, scale, radii, sides); err != nil {
		return nil, err
	}
	return &Mesh{Vertices: make([]float32, 9), Indices: []uint32{0, 1, 2}}, nil
}

// Compile-time check that the stub implements the interface.
var _ Kernel = (*stubKernel)(nil)

func TestStubKernelTube(t *testing.T) {
	var k Kernel = &stubKernel{}
	m, err := k.Tube(tract.Polyline{{}, {X: 1}}, 1, tract.Constant(2, 1), 3)
	if err != nil {
		t.Fatalf("Tube() error = %v", err)
	}
	if m == nil || m.TriangleCount() != 1 {
		t.Fatalf("Tube() = %+v, want one triangle", m)
	}
}

func TestCheckTubeArgs(t *testing.T) {
	two := tract.Polyline{{}, {X: 1}}
	tests := []struct {
		name   string
		line   tract.Polyline
		scale  float64
		radii  tract.RadiusProfile
		sides  int
		target error
	}{
		{"ok", two, 1, tract.Constant(2, 1), 3, nil},
		{"empty", nil, 1, nil, 3, ErrTooFewPoints},
		{"sides", two, 1, tract.Constant(2, 1), 2, ErrTooFewSides},
		{"radii", two, 1, tract.Constant(1, 1), 3, ErrRadiusMismatch},
		{"negative scale", two, -1, tract.Constant(2, 1), 3, ErrBadScale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckTubeArgs(tt.line, tt.scale, tt.radii, tt.sides)
			if !errors.Is(err, tt.target) {
				t.Errorf("CheckTubeArgs() = %v, want %v", err, tt.target)
			}
		})
	}
}
