// Package lod collapses a bundle of similar polylines into one
// representative tube: a centerline plus a radius profile wide enough to
// cover the bundle, smoothed along its length.
package lod

import (
	"fmt"

	"github.com/chazu/tractview/pkg/tract"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// CenterlinePolicy selects how the representative centerline of a bundle
// is chosen.
type CenterlinePolicy int

const (
	// FirstMember uses the first member's resampled points unchanged.
	FirstMember CenterlinePolicy = iota
	// Average uses the pointwise mean of all resampled members.
	Average
)

func (p CenterlinePolicy) String() string {
	switch p {
	case FirstMember:
		return "first"
	case Average:
		return "average"
	default:
		return fmt.Sprintf("CenterlinePolicy(%d)", int(p))
	}
}

// ParsePolicy maps "first" and "average" (and "" for the default) to a
// policy.
func ParsePolicy(s string) (CenterlinePolicy, error) {
	switch s {
	case "", "first":
		return FirstMember, nil
	case "average":
		return Average, nil
	}
	return 0, fmt.Errorf("lod: unknown centerline policy %q, expected first or average", s)
}

// Kernel is the 7-tap Gaussian used to smooth radius profiles.
var Kernel = [7]float64{0.00598, 0.060626, 0.241843, 0.383103, 0.241843, 0.060626, 0.00598}

// Member is one polyline of a bundle with its base radius profile.
type Member struct {
	Line  tract.Polyline
	Radii tract.RadiusProfile
}

// Merged is the representative of a bundle.
type Merged struct {
	Centerline tract.Polyline
	Radii      tract.RadiusProfile
	Members    []int // tract indices merged into this tube
}

// Merge collapses members into one polyline. Every member is resampled to
// the length of the longest; the centerline follows policy; the radius at
// each vertex is the mean distance from the centerline to the members,
// never below the base radius of the first member, and is then smoothed.
func Merge(members []Member, policy CenterlinePolicy) (Merged, error) {
	if len(members) == 0 {
		return Merged{}, fmt.Errorf("lod: cannot merge an empty group")
	}

	n := 0
	for i, m := range members {
		if len(m.Line) < 2 {
			return Merged{}, fmt.Errorf("lod: member %d has %d points, need at least 2", i, len(m.Line))
		}
		if len(m.Radii) != len(m.Line) {
			return Merged{}, fmt.Errorf("lod: member %d has %d radii for %d points", i, len(m.Radii), len(m.Line))
		}
		n = max(n, len(m.Line))
	}

	lines := make([]tract.Polyline, len(members))
	for i, m := range members {
		lines[i] = Resample(m.Line, n)
	}
	base := ResampleRadii(members[0].Radii, n)

	var center tract.Polyline
	switch policy {
	case FirstMember:
		center = lines[0]
	case Average:
		center = meanLine(lines)
	default:
		return Merged{}, fmt.Errorf("lod: unsupported centerline policy %v", policy)
	}

	radii := make(tract.RadiusProfile, n)
	dist := make([]float64, len(lines))
	for k := range radii {
		for i, l := range lines {
			dist[i] = l[k].Sub(center[k]).Length()
		}
		radii[k] = max(stat.Mean(dist, nil), base[k])
	}

	smoothed := Smooth(radii)
	for k := range smoothed {
		smoothed[k] = max(smoothed[k], base[k])
	}
	return Merged{Centerline: center, Radii: smoothed}, nil
}

// meanLine returns the pointwise average of equally long polylines.
func meanLine(lines []tract.Polyline) tract.Polyline {
	out := make(tract.Polyline, len(lines[0]))
	inv := 1 / float64(len(lines))
	for k := range out {
		var sum v3.Vec
		for _, l := range lines {
			sum = sum.Add(l[k])
		}
		out[k] = sum.MulScalar(inv)
	}
	return out
}

// Resample returns p with exactly n points, interpolated linearly over the
// vertex index rather than arc length: output point k sits at fractional
// index k*(len(p)-1)/(n-1). Unevenly spaced input therefore yields unevenly
// spaced output. p must have at least two points and n must be at least 2.
func Resample(p tract.Polyline, n int) tract.Polyline {
	out := make(tract.Polyline, n)
	for k := range out {
		i, f := position(k, len(p), n)
		if f == 0 {
			out[k] = p[i]
			continue
		}
		out[k] = p[i].Add(p[i+1].Sub(p[i]).MulScalar(f))
	}
	return out
}

// ResampleRadii resamples a radius profile the same way Resample does.
func ResampleRadii(r tract.RadiusProfile, n int) tract.RadiusProfile {
	out := make(tract.RadiusProfile, n)
	for k := range out {
		i, f := position(k, len(r), n)
		if f == 0 {
			out[k] = r[i]
			continue
		}
		out[k] = r[i] + (r[i+1]-r[i])*f
	}
	return out
}

// position maps output index k of n onto an input of length m, returning
// the segment start and the fraction along it.
func position(k, m, n int) (int, float64) {
	if n < 2 || m < 2 {
		return 0, 0
	}
	t := float64(k) * float64(m-1) / float64(n-1)
	i := int(t)
	if i >= m-1 {
		return m - 1, 0
	}
	return i, t - float64(i)
}

// Smooth convolves r with Kernel normalized to unit sum. Taps that fall
// outside the profile use the nearest end value.
func Smooth(r tract.RadiusProfile) tract.RadiusProfile {
	sum := floats.Sum(Kernel[:])
	half := len(Kernel) / 2
	out := make(tract.RadiusProfile, len(r))
	for k := range r {
		var acc float64
		for j, w := range Kernel {
			idx := min(max(k+j-half, 0), len(r)-1)
			acc += w * r[idx]
		}
		out[k] = acc / sum
	}
	return out
}
