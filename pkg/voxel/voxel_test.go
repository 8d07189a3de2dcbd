package voxel

import (
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/chazu/tractview/pkg/tract"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellOf(t *testing.T) {
	tests := []struct {
		p    v3.Vec
		res  int
		want Cell
	}{
		{v3.Vec{X: 0.2, Y: 0.2, Z: 0.2}, 10, Cell{2, 2, 2}},
		{v3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, 10, Cell{5, 5, 5}},
		{v3.Vec{X: 0.04, Y: 0.06, Z: 1}, 10, Cell{0, 1, 10}},
		{v3.Vec{X: 0.25, Y: 0.35, Z: 0}, 2, Cell{0, 1, 0}}, // 0.5 -> 0, 0.7 -> 1
		{v3.Vec{X: 0.75}, 2, Cell{2, 0, 0}},                // 1.5 -> 2
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CellOf(tt.p, tt.res), "CellOf(%v, %d)", tt.p, tt.res)
	}
}

func TestKeyCanonical(t *testing.T) {
	k := Key{Start: Cell{5, 5, 5}, End: Cell{2, 2, 2}}
	c := k.Canonical()
	assert.Equal(t, Key{Start: Cell{2, 2, 2}, End: Cell{5, 5, 5}}, c)
	assert.Equal(t, c, c.Canonical())
	assert.Equal(t, "(2,2,2)->(5,5,5)", c.String())
}

// Two 4-point polylines whose endpoints share voxels ((2,2,2),(5,5,5)).
func exampleA() tract.Set {
	return tract.Set{
		{{X: 0.2, Y: 0.2, Z: 0.2}, {X: 0.3, Y: 0.3, Z: 0.25}, {X: 0.4, Y: 0.4, Z: 0.45}, {X: 0.5, Y: 0.5, Z: 0.5}},
		{{X: 0.21, Y: 0.19, Z: 0.2}, {X: 0.3, Y: 0.32, Z: 0.3}, {X: 0.42, Y: 0.4, Z: 0.4}, {X: 0.49, Y: 0.51, Z: 0.5}},
	}
}

// groupAll groups every polyline of s on the calling goroutine.
func groupAll(s tract.Set, resolution int, symmetric bool) []Group {
	g := NewGrouper(resolution, symmetric)
	for i, p := range s {
		g.Add(i, p)
	}
	return g.Groups()
}

func reversed(p tract.Polyline) tract.Polyline {
	out := make(tract.Polyline, len(p))
	for i, v := range p {
		out[len(p)-1-i] = v
	}
	return out
}

func TestGroupExampleA(t *testing.T) {
	groups := groupAll(exampleA(), 10, false)
	require.Len(t, groups, 1)
	assert.Equal(t, Key{Start: Cell{2, 2, 2}, End: Cell{5, 5, 5}}, groups[0].Key)
	assert.Equal(t, []int{0, 1}, groups[0].Members)
}

func TestDirectionalVersusSymmetric(t *testing.T) {
	p := exampleA()[0]
	s := tract.Set{p, reversed(p)}

	directional := groupAll(s, 10, false)
	assert.Len(t, directional, 2, "reversed twin lands in its own group")

	symmetric := groupAll(s, 10, true)
	require.Len(t, symmetric, 1)
	assert.Equal(t, []int{0, 1}, symmetric[0].Members)
}

func TestGroupsOrderedByFirstDiscovery(t *testing.T) {
	a := tract.Polyline{{X: 0}, {X: 1}}
	b := tract.Polyline{{Y: 0}, {Y: 1}}
	s := tract.Set{b, a, b, a, a}

	groups := groupAll(s, 4, false)
	want := []Group{
		{Key: KeyOf(b, 4), Members: []int{0, 2}},
		{Key: KeyOf(a, 4), Members: []int{1, 3, 4}},
	}
	if diff := cmp.Diff(want, groups); diff != "" {
		t.Errorf("groups mismatch (-want +got):\n%s", diff)
	}
}

func TestConcurrentAddMatchesSequential(t *testing.T) {
	r := rand.New(rand.NewPCG(9, 9))
	s := make(tract.Set, 400)
	for i := range s {
		// Few distinct endpoints so that groups get many members.
		start := v3.Vec{X: float64(r.IntN(3)) / 4, Y: float64(r.IntN(2)) / 4}
		end := v3.Vec{X: 1, Y: float64(r.IntN(3)) / 4, Z: 1}
		s[i] = tract.Polyline{start, start.Add(end).MulScalar(0.5), end}
	}
	want := groupAll(s, 8, false)

	g := NewGrouper(8, false)
	var wg sync.WaitGroup
	next := make(chan int)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				g.Add(i, s[i])
			}
		}()
	}
	for i := len(s) - 1; i >= 0; i-- {
		next <- i
	}
	close(next)
	wg.Wait()

	got := g.Groups()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("concurrent grouping differs (-want +got):\n%s", diff)
	}
	require.NoError(t, Validate(got, len(s)))
	assert.Equal(t, len(got), g.Len())
}

func TestValidatePartition(t *testing.T) {
	tests := []struct {
		name    string
		groups  []Group
		n       int
		wantErr bool
	}{
		{"ok", []Group{{Members: []int{0, 2}}, {Members: []int{1}}}, 3, false},
		{"empty set", nil, 0, false},
		{"missing", []Group{{Members: []int{0}}}, 2, true},
		{"duplicate", []Group{{Members: []int{0, 1}}, {Members: []int{1}}}, 2, true},
		{"out of range", []Group{{Members: []int{0, 5}}}, 2, true},
		{"empty group", []Group{{Members: []int{0}}, {}}, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.groups, tt.n)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGroupsArePartition(t *testing.T) {
	r := rand.New(rand.NewPCG(4, 2))
	s := make(tract.Set, 150)
	for i := range s {
		s[i] = tract.Polyline{
			{X: r.Float64(), Y: r.Float64(), Z: r.Float64()},
			{X: r.Float64(), Y: r.Float64(), Z: r.Float64()},
		}
	}
	for _, sym := range []bool{false, true} {
		groups := groupAll(s, 2, sym)
		assert.NoError(t, Validate(groups, len(s)), "symmetric=%v", sym)
	}
}
