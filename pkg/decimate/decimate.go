// Package decimate simplifies polylines by dropping points where the path
// barely turns. The threshold is an angle in degrees; endpoints are always
// kept.
package decimate

import (
	"math"

	"github.com/chazu/tractview/pkg/tract"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Polyline returns the decimated copy of p for the angle threshold
// thetaDeg. thetaDeg <= 0 disables decimation and returns a deep copy, as
// does any polyline of two or fewer points.
//
// Walking from the first point, the last retained point is the anchor and
// the chord from it to the following point is the reference direction. A
// candidate point is dropped when the chord from the anchor to the point
// after the candidate deviates from the reference by less than thetaDeg;
// otherwise it is retained and becomes the new anchor. The final point is
// always retained. The output never has fewer than two points.
func Polyline(p tract.Polyline, thetaDeg float64) tract.Polyline {
	if thetaDeg <= 0 || len(p) <= 2 {
		return p.Clone()
	}

	out := make(tract.Polyline, 0, len(p))
	out = append(out, p[0])

	anchor := 0
	ref := p[1].Sub(p[0])
	for c := 1; c < len(p)-1; c++ {
		chord := p[c+1].Sub(p[anchor])
		if Angle(ref, chord) < thetaDeg {
			continue
		}
		out = append(out, p[c])
		anchor = c
		ref = p[c+1].Sub(p[c])
	}
	out = append(out, p[len(p)-1])

	if len(out) < 2 {
		return tract.Polyline{p[0], p[len(p)-1]}
	}
	return out
}

// zeroLength2 is the squared magnitude below which a vector has no usable
// direction.
const zeroLength2 = 1e-15

// Angle returns the unsigned angle between a and b in degrees, in [0, 180].
// If either vector is (near) zero the angle is 0.
func Angle(a, b v3.Vec) float64 {
	den := math.Sqrt(a.Length2() * b.Length2())
	if den < zeroLength2 {
		return 0
	}
	cos := a.Dot(b) / den
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}
