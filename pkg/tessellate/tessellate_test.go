package tessellate_test

import (
	"errors"
	"testing"

	"github.com/chazu/tractview/pkg/kernel"
	"github.com/chazu/tractview/pkg/kernel/ring"
	"github.com/chazu/tractview/pkg/tessellate"
	"github.com/chazu/tractview/pkg/tract"
)

// newKernel returns a fresh ring kernel for testing.
func newKernel() kernel.Kernel {
	return ring.New()
}

func TestSingleTube(t *testing.T) {
	k := newKernel()
	line := tract.Polyline{{}, {X: 1}, {X: 2, Y: 1}}
	m, err := tessellate.Tube(k, 7, line, tract.Constant(3, 0.1), tessellate.Options{Scale: 1, Sides: 3})
	if err != nil {
		t.Fatalf("Tube failed: %v", err)
	}
	if m.Name != "tract-7" {
		t.Errorf("Name = %q, want tract-7", m.Name)
	}
	if m.VertexCount() != 3*3+2 {
		t.Errorf("VertexCount = %d, want 11", m.VertexCount())
	}
}

func TestScaleApplies(t *testing.T) {
	k := newKernel()
	line := tract.Polyline{{}, {Z: 1}}
	m, err := tessellate.Tube(k, 0, line, tract.Constant(2, 1), tessellate.Options{Scale: 10, Sides: 4})
	if err != nil {
		t.Fatalf("Tube failed: %v", err)
	}
	end := m.Vertex(m.VertexCount() - 1)
	if end != [3]float32{0, 0, 10} {
		t.Errorf("end cap = %v, want [0 0 10]", end)
	}
}

func TestTubeErrorWrapsKernelSentinel(t *testing.T) {
	k := newKernel()
	_, err := tessellate.Tube(k, 3, tract.Polyline{{}, {X: 1}}, tract.Constant(2, 1), tessellate.Options{Scale: 1, Sides: 2})
	if !errors.Is(err, kernel.ErrTooFewSides) {
		t.Fatalf("err = %v, want ErrTooFewSides", err)
	}
}

func TestTubeNamesFollowIndex(t *testing.T) {
	k := newKernel()
	lines := []tract.Polyline{
		{{}, {X: 1}},
		{{Y: 1}, {X: 1, Y: 1}, {X: 2, Y: 2}},
	}
	for i, line := range lines {
		m, err := tessellate.Tube(k, i, line, tract.Constant(len(line), 0.2), tessellate.Options{Scale: 1, Sides: 5})
		if err != nil {
			t.Fatalf("Tube(%d) failed: %v", i, err)
		}
		if m.Name != tessellate.Name(i) {
			t.Errorf("mesh %d named %q", i, m.Name)
		}
		if want := 5*len(line) + 2; m.VertexCount() != want {
			t.Errorf("mesh %d: VertexCount = %d, want %d", i, m.VertexCount(), want)
		}
	}
}
