// Package voxel groups polylines by the voxels their endpoints fall in.
// Polylines whose start and end points land in the same pair of voxels are
// treated as one bundle by the LOD merge.
package voxel

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/chazu/tractview/pkg/tract"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Cell is an integer voxel coordinate.
type Cell struct {
	X, Y, Z int
}

// Less orders cells lexicographically by X, then Y, then Z.
func (c Cell) Less(o Cell) bool {
	if c.X != o.X {
		return c.X < o.X
	}
	if c.Y != o.Y {
		return c.Y < o.Y
	}
	return c.Z < o.Z
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d,%d)", c.X, c.Y, c.Z)
}

// CellOf returns the voxel nearest to p on a grid with resolution cells per
// unit axis: round(p * resolution), rounding halves to even.
func CellOf(p v3.Vec, resolution int) Cell {
	r := float64(resolution)
	return Cell{
		X: int(math.RoundToEven(p.X * r)),
		Y: int(math.RoundToEven(p.Y * r)),
		Z: int(math.RoundToEven(p.Z * r)),
	}
}

// Key is the (start voxel, end voxel) pair of a polyline.
type Key struct {
	Start, End Cell
}

func (k Key) String() string {
	return k.Start.String() + "->" + k.End.String()
}

// Canonical returns the key with its cells in lexicographic order, so that
// a polyline and its reverse map to the same key.
func (k Key) Canonical() Key {
	if k.End.Less(k.Start) {
		return Key{Start: k.End, End: k.Start}
	}
	return k
}

// KeyOf returns the directional key of p. p must have at least one point.
func KeyOf(p tract.Polyline, resolution int) Key {
	return Key{
		Start: CellOf(p.First(), resolution),
		End:   CellOf(p.Last(), resolution),
	}
}

// Group is one bundle of polylines sharing a key. Members are tract indices
// in discovery order; the first member is the representative.
type Group struct {
	Key     Key
	Members []int
}

// Grouper accumulates polylines into groups. Add is safe for concurrent
// use; the map is guarded by a single mutex around lookup and insert.
type Grouper struct {
	resolution int
	symmetric  bool

	mu     sync.Mutex
	index  map[Key]int
	groups []Group
}

// NewGrouper returns a grouper for a grid of resolution cells per axis. With
// symmetric set, keys are canonicalized so direction does not matter;
// otherwise start and end are kept in polyline order.
func NewGrouper(resolution int, symmetric bool) *Grouper {
	return &Grouper{
		resolution: resolution,
		symmetric:  symmetric,
		index:      make(map[Key]int),
	}
}

// Key returns the key p is grouped under.
func (g *Grouper) Key(p tract.Polyline) Key {
	k := KeyOf(p, g.resolution)
	if g.symmetric {
		k = k.Canonical()
	}
	return k
}

// Add files tract index i, whose polyline is p, under its key.
func (g *Grouper) Add(i int, p tract.Polyline) {
	k := g.Key(p)

	g.mu.Lock()
	defer g.mu.Unlock()
	gi, ok := g.index[k]
	if !ok {
		gi = len(g.groups)
		g.index[k] = gi
		g.groups = append(g.groups, Group{Key: k})
	}
	g.groups[gi].Members = append(g.groups[gi].Members, i)
}

// Len returns the number of groups found so far.
func (g *Grouper) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.groups)
}

// Groups returns the groups in discovery order. Concurrent Adds make the
// raw discovery order depend on scheduling, so members are sorted by index
// and groups by their first member: the order a sequential scan over the
// indices would have produced. Call it once all Adds have returned.
func (g *Grouper) Groups() []Group {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Group, len(g.groups))
	for i, grp := range g.groups {
		members := append([]int(nil), grp.Members...)
		sort.Ints(members)
		out[i] = Group{Key: grp.Key, Members: members}
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].Members[0] < out[b].Members[0]
	})
	return out
}

// Validate checks that groups partition the indices [0, n): every index
// appears in exactly one group and no group is empty.
func Validate(groups []Group, n int) error {
	seen := make([]bool, n)
	count := 0
	for gi, grp := range groups {
		if len(grp.Members) == 0 {
			return fmt.Errorf("voxel: group %d (%s) is empty", gi, grp.Key)
		}
		for _, m := range grp.Members {
			if m < 0 || m >= n {
				return fmt.Errorf("voxel: group %d has out-of-range member %d", gi, m)
			}
			if seen[m] {
				return fmt.Errorf("voxel: index %d appears in more than one group", m)
			}
			seen[m] = true
			count++
		}
	}
	if count != n {
		return fmt.Errorf("voxel: groups cover %d of %d indices", count, n)
	}
	return nil
}
