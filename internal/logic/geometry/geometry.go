package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidGeometry is wrapped by every ConfigError.
var ErrInvalidGeometry = errors.New("invalid finger geometry")

// ConfigError reports which geometry constant made construction fail.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidGeometry, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidGeometry }

// Params holds the physical constants of one finger mechanism.
// Lengths share one linear unit (mm in the shipped configs); angles are degrees.
type Params struct {
	L1         float64 `yaml:"l1"`           // proximal link (actuator to elbow)
	L2         float64 `yaml:"l2"`           // distal link (elbow to distal joint)
	L3         float64 `yaml:"l3"`           // distal joint to fingertip
	Beta       float64 `yaml:"beta"`         // contact surface angle relative to l2
	Gamma      float64 `yaml:"gamma"`        // angle between l2 and l3
	RMinOffset float64 `yaml:"r_min_offset"` // margin added to the singular radius
	RMaxOffset float64 `yaml:"r_max_offset"` // margin removed from full extension
}

// Geometry is the immutable, validated geometry of a finger together with its
// derived constants. Build it with New; the zero value is not usable.
type Geometry struct {
	p Params

	a2Sing float64 // |a2| where the two branches of r(a2) meet (deg)
	lv     float64 // virtual link combining l2 and l3
	gv     float64 // angle between l2 and the virtual link (deg)
	rMin   float64
	rMax   float64
}

// New validates p and computes the derived constants:
//
//	a2_sing = asin(l2/l1)
//	Lv      = sqrt(l2² + l3² − 2·l2·l3·cos(gamma))
//	Gv      = asin(sin(gamma)·l3/Lv)
//	r_min   = sqrt(l1² − l2²) + r_min_offset
//	r_max   = l1 + l2 − r_max_offset
//
// It never returns a partially built Geometry. It is stricter than the
// derived radii alone require: r_min must not fall below l1-l2, r_max must not
// exceed l1+l2, and r_min must not exceed r_max.
func New(p Params) (*Geometry, error) {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"l1", p.L1}, {"l2", p.L2}, {"l3", p.L3},
		{"beta", p.Beta}, {"gamma", p.Gamma},
		{"r_min_offset", p.RMinOffset}, {"r_max_offset", p.RMaxOffset},
	} {
		if !finite(f.v) {
			return nil, &ConfigError{Field: f.name, Reason: "must be finite"}
		}
	}
	if p.L2 <= 0 {
		return nil, &ConfigError{Field: "l2", Reason: fmt.Sprintf("must be > 0, got %g", p.L2)}
	}
	if p.L1 <= p.L2 {
		return nil, &ConfigError{Field: "l1", Reason: fmt.Sprintf("must be > l2 (%g), got %g", p.L2, p.L1)}
	}
	if p.L3 <= 0 {
		return nil, &ConfigError{Field: "l3", Reason: fmt.Sprintf("must be > 0, got %g", p.L3)}
	}

	g := &Geometry{p: p}
	g.a2Sing = deg(math.Asin(p.L2 / p.L1))
	g.lv = math.Sqrt(p.L2*p.L2 + p.L3*p.L3 - 2*p.L2*p.L3*math.Cos(rad(p.Gamma)))
	if !(g.lv > 0) {
		return nil, &ConfigError{Field: "Lv", Reason: "virtual link has zero length"}
	}
	g.gv = deg(math.Asin(math.Sin(rad(p.Gamma)) * p.L3 / g.lv))
	g.rMin = math.Sqrt(p.L1*p.L1-p.L2*p.L2) + p.RMinOffset
	g.rMax = p.L1 + p.L2 - p.RMaxOffset

	for _, f := range []struct {
		name string
		v    float64
	}{
		{"a2_sing", g.a2Sing}, {"Lv", g.lv}, {"Gv", g.gv}, {"r_min", g.rMin}, {"r_max", g.rMax},
	} {
		if !finite(f.v) {
			return nil, &ConfigError{Field: f.name, Reason: "derived value is not finite"}
		}
	}
	// The distal-joint triangle (l1, l2, r) only closes for r in [l1-l2, l1+l2].
	if g.rMin < p.L1-p.L2 {
		return nil, &ConfigError{Field: "r_min_offset", Reason: fmt.Sprintf("r_min %g below l1-l2 (%g)", g.rMin, p.L1-p.L2)}
	}
	if g.rMax > p.L1+p.L2 {
		return nil, &ConfigError{Field: "r_max_offset", Reason: fmt.Sprintf("r_max %g above l1+l2 (%g)", g.rMax, p.L1+p.L2)}
	}
	if g.rMin > g.rMax {
		return nil, &ConfigError{Field: "r_min_offset", Reason: fmt.Sprintf("r_min %g exceeds r_max %g", g.rMin, g.rMax)}
	}
	return g, nil
}

// Params returns the constants the geometry was built from.
func (g *Geometry) Params() Params { return g.p }

// SingularityAngle returns a2_sing in degrees.
func (g *Geometry) SingularityAngle() float64 { return g.a2Sing }

// VirtualLink returns the length Lv and the angle Gv (degrees) of the link
// joining the elbow to the fingertip.
func (g *Geometry) VirtualLink() (length, angle float64) { return g.lv, g.gv }

// RMin returns the smallest distal-joint radius the inverse solver commands.
func (g *Geometry) RMin() float64 { return g.rMin }

// RMax returns the largest distal-joint radius the inverse solver commands.
func (g *Geometry) RMax() float64 { return g.rMax }

func rad(d float64) float64 { return d * math.Pi / 180.0 }

func deg(r float64) float64 { return r * 180.0 / math.Pi }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// clampUnit keeps a cosine/sine argument inside [-1, 1] against rounding.
func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
