package tract

import (
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Normalize returns a copy of s with every axis independently mapped onto
// [0,1] using the set's bounding box. Axes are scaled separately, so the
// result does not preserve aspect ratio. An axis with zero extent maps to 0.
func Normalize(s Set) Set {
	min, max, ok := s.Bounds()
	out := s.Clone()
	if !ok {
		return out
	}
	ext := max.Sub(min)
	for _, p := range out {
		for j, v := range p {
			p[j] = v3.Vec{
				X: normalizeAxis(v.X, min.X, ext.X),
				Y: normalizeAxis(v.Y, min.Y, ext.Y),
				Z: normalizeAxis(v.Z, min.Z, ext.Z),
			}
		}
	}
	return out
}

func normalizeAxis(x, min, ext float64) float64 {
	if ext == 0 {
		return 0
	}
	return (x - min) / ext
}
