package engine

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/chazu/tractview/pkg/tract"
	v3 "github.com/deadsy/sdfx/vec/v3"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms tract script source code before passing it to
// zygomys. It performs two transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: tract-count -> tract_count
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator). This converts kebab-case identifiers
//     to underscore form outside of strings and comments.
//
// Both transformations respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Convert ; line comments to // comments for zygomys.
		// zygomys uses // for line comments, not the traditional Lisp ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			// Skip additional ; characters (;; style).
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers: alpha-alpha -> alpha_alpha.
		// Only when hyphen sits between identifier characters (not a minus operator).
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpVec3 wraps a point.
type sexpVec3 struct {
	vec v3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpTractRef refers to a tract already added to the scene.
type sexpTractRef struct {
	index  int
	points int
}

func (r *sexpTractRef) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(tract #%d, %d points)", r.index, r.points)
}
func (r *sexpTractRef) Type() *zygo.RegisteredType { return nil }

// scene collects the tracts declared by a script, in declaration order.
type scene struct {
	tracts tract.Set
}

func (s *scene) add(p tract.Polyline) *sexpTractRef {
	s.tracts = append(s.tracts, p)
	return &sexpTractRef{index: len(s.tracts) - 1, points: len(p)}
}

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
// Keywords are identified by the __kw_ prefix added during preprocessing.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				// Keyword at end with no value: treat as a flag with nil.
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toVec3 extracts a point from a sexpVec3.
func toVec3(s zygo.Sexp) (v3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return v3.Vec{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// toPoints flattens args into points. Each arg is a vec3 or a list or
// array of vec3.
func toPoints(args []zygo.Sexp) (tract.Polyline, error) {
	var out tract.Polyline
	for _, a := range args {
		if v, ok := a.(*sexpVec3); ok {
			out = append(out, v.vec)
			continue
		}
		items, err := sexpListToSlice(a)
		if err != nil {
			return nil, fmt.Errorf("expected vec3 or list of vec3: %w", err)
		}
		for _, item := range items {
			v, err := toVec3(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// kwFloat reads an optional numeric keyword argument.
func kwFloat(pa kwArgs, key string, def float64) (float64, error) {
	v, ok := pa.kw[key]
	if !ok {
		return def, nil
	}
	return toFloat64(v)
}

// kwVec3 reads a required vec3 keyword argument.
func kwVec3(pa kwArgs, key string) (v3.Vec, error) {
	v, ok := pa.kw[key]
	if !ok {
		return v3.Vec{}, fmt.Errorf("missing :%s", key)
	}
	return toVec3(v)
}

// quadratic evaluates the Bezier curve a-b-c at t.
func quadratic(a, b, c v3.Vec, t float64) v3.Vec {
	u := 1 - t
	return a.MulScalar(u * u).Add(b.MulScalar(2 * u * t)).Add(c.MulScalar(t * t))
}

// jitter returns a vector with components uniform in [-spread, spread].
func jitter(r *rand.Rand, spread float64) v3.Vec {
	return v3.Vec{
		X: (r.Float64()*2 - 1) * spread,
		Y: (r.Float64()*2 - 1) * spread,
		Z: (r.Float64()*2 - 1) * spread,
	}
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// Limits on generated geometry per script.
const (
	maxBundleCount  = 100000
	maxBundlePoints = 10000
)

// registerBuiltins installs the tract script builtins into a zygomys
// environment. Every declared tract is appended to sc.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, sc *scene) {

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}

		x, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: x: %w", err)
		}
		y, err := toFloat64(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: y: %w", err)
		}
		z, err := toFloat64(args[2])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: z: %w", err)
		}

		return &sexpVec3{vec: v3.Vec{X: x, Y: y, Z: z}}, nil
	})

	// -----------------------------------------------------------------------
	// (tract (vec3 0 0 0) (vec3 1 0 0) ...) or (tract (list ...))
	// -----------------------------------------------------------------------
	env.AddFunction("tract", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pts, err := toPoints(args)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("tract: %w", err)
		}
		if len(pts) < 2 {
			return zygo.SexpNull, fmt.Errorf("tract requires at least 2 points, got %d", len(pts))
		}
		return sc.add(pts), nil
	})

	// -----------------------------------------------------------------------
	// (bundle :count 20 :from (vec3 0 0 0) :to (vec3 10 0 0)
	//         :bend (vec3 5 3 0) :points 16 :spread 0.2 :seed 7)
	//
	// Adds count fibres along the quadratic Bezier from-bend-to. Every
	// control point of every fibre is displaced by up to spread on each
	// axis; the same seed always yields the same fibres.
	// -----------------------------------------------------------------------
	env.AddFunction("bundle", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)

		from, err := kwVec3(pa, "from")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("bundle: from: %w", err)
		}
		to, err := kwVec3(pa, "to")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("bundle: to: %w", err)
		}
		bend := from.Add(to).MulScalar(0.5)
		if _, ok := pa.kw["bend"]; ok {
			if bend, err = kwVec3(pa, "bend"); err != nil {
				return zygo.SexpNull, fmt.Errorf("bundle: bend: %w", err)
			}
		}

		count, err := kwFloat(pa, "count", 10)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("bundle: count: %w", err)
		}
		points, err := kwFloat(pa, "points", 16)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("bundle: points: %w", err)
		}
		spread, err := kwFloat(pa, "spread", 0)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("bundle: spread: %w", err)
		}
		seed, err := kwFloat(pa, "seed", 1)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("bundle: seed: %w", err)
		}

		n, m := int(count), int(points)
		if n < 1 || n > maxBundleCount {
			return zygo.SexpNull, fmt.Errorf("bundle: count must be between 1 and %d, got %d", maxBundleCount, n)
		}
		if m < 2 || m > maxBundlePoints {
			return zygo.SexpNull, fmt.Errorf("bundle: points must be between 2 and %d, got %d", maxBundlePoints, m)
		}
		if spread < 0 {
			return zygo.SexpNull, fmt.Errorf("bundle: spread must not be negative, got %g", spread)
		}

		r := rand.New(rand.NewPCG(uint64(int64(seed)), 0x7472616374))
		for f := 0; f < n; f++ {
			a := from.Add(jitter(r, spread))
			b := bend.Add(jitter(r, spread))
			c := to.Add(jitter(r, spread))
			p := make(tract.Polyline, m)
			for k := range p {
				p[k] = quadratic(a, b, c, float64(k)/float64(m-1))
			}
			sc.add(p)
		}
		return &zygo.SexpInt{Val: int64(n)}, nil
	})

	// -----------------------------------------------------------------------
	// (tract-count)
	// -----------------------------------------------------------------------
	env.AddFunction("tract_count", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		return &zygo.SexpInt{Val: int64(len(sc.tracts))}, nil
	})

	// -----------------------------------------------------------------------
	// (offset (vec3 1 0 0) (vec3 0 2 0)) adds vectors.
	// -----------------------------------------------------------------------
	env.AddFunction("offset", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		var sum v3.Vec
		for i, a := range args {
			v, err := toVec3(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("offset: argument %d: %w", i, err)
			}
			sum = sum.Add(v)
		}
		return &sexpVec3{vec: sum}, nil
	})
}
