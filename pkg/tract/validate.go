package tract

import (
	"fmt"
	"math"
)

// ValidationSeverity indicates whether a finding rejects the set or is
// merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // rejects the set
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	Index    int // offending tract, -1 for set-level findings
	Message  string
	Severity ValidationSeverity
}

func (e ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] tract %d: %s", e.Severity, e.Index, e.Message)
}

// Validate checks every polyline of s. Errors reject the set: fewer than two
// points or non-finite coordinates. Warnings flag polylines whose points all
// coincide, which produce degenerate tubes. Validate never mutates s.
func Validate(s Set) (errs, warnings []ValidationError) {
	for i, p := range s {
		if len(p) < 2 {
			errs = append(errs, ValidationError{
				Index:    i,
				Message:  fmt.Sprintf("polyline has %d points, need at least 2", len(p)),
				Severity: SeverityError,
			})
			continue
		}
		if j, ok := firstNonFinite(p); ok {
			errs = append(errs, ValidationError{
				Index:    i,
				Message:  fmt.Sprintf("point %d has a non-finite coordinate", j),
				Severity: SeverityError,
			})
			continue
		}
		if p.Length() == 0 {
			warnings = append(warnings, ValidationError{
				Index:    i,
				Message:  "polyline has zero length",
				Severity: SeverityWarning,
			})
		}
	}
	return errs, warnings
}

func firstNonFinite(p Polyline) (int, bool) {
	for j, v := range p {
		for _, c := range [3]float64{v.X, v.Y, v.Z} {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return j, true
			}
		}
	}
	return 0, false
}
