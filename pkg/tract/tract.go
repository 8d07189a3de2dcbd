// Package tract defines the fiber-tract data model: polylines of 3D points,
// per-vertex radius profiles and the ordered tract set a session works on.
// A Set is never mutated in place once loaded; the pipeline derives new
// slices from it on every regeneration.
package tract

import (
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Polyline is an ordered sequence of 3D points. A valid polyline has at
// least two points.
type Polyline []v3.Vec

// RadiusProfile holds one positive tube radius per polyline vertex.
type RadiusProfile []float64

// Set is the ordered collection of polylines loaded for a session. The index
// of a polyline is its identity for the lifetime of the session.
type Set []Polyline

// Clone returns a deep copy of the polyline.
func (p Polyline) Clone() Polyline {
	if p == nil {
		return nil
	}
	out := make(Polyline, len(p))
	copy(out, p)
	return out
}

// First returns the first point. The polyline must not be empty.
func (p Polyline) First() v3.Vec {
	return p[0]
}

// Last returns the final point. The polyline must not be empty.
func (p Polyline) Last() v3.Vec {
	return p[len(p)-1]
}

// Length returns the arc length of the polyline.
func (p Polyline) Length() float64 {
	var sum float64
	for i := 1; i < len(p); i++ {
		sum += p[i].Sub(p[i-1]).Length()
	}
	return sum
}

// Constant returns a profile of n copies of r.
func Constant(n int, r float64) RadiusProfile {
	out := make(RadiusProfile, n)
	for i := range out {
		out[i] = r
	}
	return out
}

// Clone returns a deep copy of the set.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	for i, p := range s {
		out[i] = p.Clone()
	}
	return out
}

// PointCount returns the total number of points over all polylines.
func (s Set) PointCount() int {
	n := 0
	for _, p := range s {
		n += len(p)
	}
	return n
}

// Bounds returns the axis-aligned bounding box of every point in the set.
// ok is false for a set without points.
func (s Set) Bounds() (min, max v3.Vec, ok bool) {
	for _, p := range s {
		for _, v := range p {
			if !ok {
				min, max, ok = v, v, true
				continue
			}
			min = min.Min(v)
			max = max.Max(v)
		}
	}
	return min, max, ok
}
