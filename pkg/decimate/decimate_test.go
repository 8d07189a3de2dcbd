package decimate

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/chazu/tractview/pkg/tract"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// elbow is a straight run along X followed by a straight run along Y.
var elbow = tract.Polyline{
	{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 1}, {X: 2, Y: 2},
}

func randomPolyline(r *rand.Rand, n int) tract.Polyline {
	p := make(tract.Polyline, n)
	for i := range p {
		p[i] = v3.Vec{X: r.Float64(), Y: r.Float64(), Z: r.Float64()}
	}
	return p
}

func TestPolylineDisabledIsDeepCopy(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for _, theta := range []float64{0, -1, -180} {
		p := randomPolyline(r, 12)
		got := Polyline(p, theta)
		if diff := cmp.Diff(p, got); diff != "" {
			t.Fatalf("theta=%v: mismatch (-want +got):\n%s", theta, diff)
		}
		got[0].X = 42
		assert.NotEqual(t, 42.0, p[0].X, "result must not alias the input")
	}
}

func TestPolylineTwoPointsUnchanged(t *testing.T) {
	p := tract.Polyline{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}}
	for _, theta := range []float64{-5, 0, 1, 45, 179, 1000} {
		assert.Equal(t, p, Polyline(p, theta), "theta=%v", theta)
	}
}

func TestPolylineStraightLineCollapses(t *testing.T) {
	p := tract.Polyline{{X: 0}, {X: 1}, {X: 2}, {X: 3}, {X: 4}}
	got := Polyline(p, 1)
	assert.Equal(t, tract.Polyline{{X: 0}, {X: 4}}, got)
}

func TestPolylineElbow(t *testing.T) {
	tests := []struct {
		name  string
		theta float64
		want  tract.Polyline
	}{
		{"small angle keeps the corner", 10, tract.Polyline{elbow[0], elbow[2], elbow[4]}},
		{"wider angle keeps the later point", 30, tract.Polyline{elbow[0], elbow[3], elbow[4]}},
		{"huge angle keeps endpoints", 170, tract.Polyline{elbow[0], elbow[4]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Polyline(elbow, tt.theta)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPolylineAlwaysKeepsEndpoints(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 200; i++ {
		p := randomPolyline(r, 2+r.IntN(30))
		theta := r.Float64() * 200
		got := Polyline(p, theta)

		require.GreaterOrEqual(t, len(got), 2)
		require.LessOrEqual(t, len(got), len(p))
		assert.Equal(t, p.First(), got.First())
		assert.Equal(t, p.Last(), got.Last())
	}
}

func TestPolylineDeterministic(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 5))
	p := randomPolyline(r, 40)
	a := Polyline(p, 25)
	b := Polyline(p, 25)
	assert.Equal(t, a, b)
}

func TestPolylineDegenerateRepeatedPoints(t *testing.T) {
	p := tract.Polyline{{X: 1}, {X: 1}, {X: 1}, {X: 1}}
	got := Polyline(p, 5)
	assert.Equal(t, tract.Polyline{{X: 1}, {X: 1}}, got)
}

func TestWideAngleKeepsOnlyEndpoints(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 8))
	for _, theta := range []float64{180.5, 270, 1e6} {
		p := randomPolyline(r, 12)
		assert.Equal(t, tract.Polyline{p[0], p[11]}, Polyline(p, theta), "theta %v", theta)
	}
	assert.Equal(t, tract.Polyline{elbow[0], elbow[4]}, Polyline(elbow, 180))
}

func TestAngle(t *testing.T) {
	tests := []struct {
		name string
		a, b v3.Vec
		want float64
	}{
		{"parallel", v3.Vec{X: 1}, v3.Vec{X: 5}, 0},
		{"orthogonal", v3.Vec{X: 1}, v3.Vec{Y: 2}, 90},
		{"opposite", v3.Vec{X: 1}, v3.Vec{X: -1}, 180},
		{"diagonal", v3.Vec{X: 1}, v3.Vec{X: 1, Y: 1}, 45},
		{"zero vector", v3.Vec{}, v3.Vec{X: 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Angle(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Angle() = %v, want %v", got, tt.want)
			}
		})
	}
}
