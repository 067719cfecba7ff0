package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
)

// ErrUnreachable is wrapped by every UnreachableError.
var ErrUnreachable = errors.New("target out of finger workspace")

// UnreachableError reports a fingertip target outside the reachable envelope.
type UnreachableError struct {
	Side   Side
	Target r2.Point
	Angle  string  // which law-of-cosines step left [-1, 1]
	Cosine float64 // the offending argument
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("%s: finger %s target (%.3f, %.3f): cos(%s) = %g",
		ErrUnreachable, e.Side, e.Target.X, e.Target.Y, e.Angle, e.Cosine)
}

func (e *UnreachableError) Unwrap() error { return ErrUnreachable }

// unitSlack absorbs rounding on targets that sit exactly on the envelope.
const unitSlack = 1e-12

// acosChecked returns acos(v) in degrees, or ok=false when v is outside
// [-1, 1] (NaN included).
func acosChecked(v float64) (float64, bool) {
	if !(v >= -1-unitSlack && v <= 1+unitSlack) {
		return 0, false
	}
	return deg(math.Acos(clampUnit(v))), true
}

// ClampRadius pulls a distal-joint radius into [r_min, r_max].
func (g *Geometry) ClampRadius(r float64) float64 {
	return math.Max(g.rMin, math.Min(r, g.rMax))
}

// IKPoint returns the joint angles placing the distal joint at p. Targets
// outside the annulus [r_min, r_max] are pulled to the nearest reachable
// radius along the same bearing, so it never fails. A2 is the unsigned
// magnitude; the side convention is applied when the angles are encoded
// onto actuators.
func (g *Geometry) IKPoint(p r2.Point) JointAngles {
	l1, l2 := g.p.L1, g.p.L2
	r := g.ClampRadius(p.Norm())
	return JointAngles{
		A1: deg(math.Atan2(p.Y, p.X)),
		A2: deg(math.Acos(clampUnit((l2*l2 - l1*l1 - r*r) / (-2 * l1 * r)))),
	}
}

// IKTip returns the joint angles placing the fingertip at p.
//
// The elbow, fingertip and actuator axis form a triangle with sides l1, Lv
// and |p|. Solving it gives the bearing q1 of the proximal link carrying the
// fingertip and, through Gv, the bearing q2 of l2; the distal joint target
// l1∠q1 + l2∠q2 is then handed to IKPoint.
//
// When the triangle cannot close the target is outside the envelope and an
// *UnreachableError is returned.
func (g *Geometry) IKTip(side Side, p r2.Point) (JointAngles, error) {
	l1, l2 := g.p.L1, g.p.L2
	lv := g.lv

	lt := p.Norm()
	qt := deg(math.Atan2(p.Y, p.X))

	cos1t := (lv*lv - l1*l1 - lt*lt) / (-2 * l1 * lt)
	q1t, ok := acosChecked(cos1t)
	if !ok {
		return JointAngles{}, &UnreachableError{Side: side, Target: p, Angle: "q_1t", Cosine: cos1t}
	}

	cos13 := (lt*lt - l1*l1 - lv*lv) / (-2 * l1 * lv)
	q13, ok := acosChecked(cos13)
	if !ok {
		return JointAngles{}, &UnreachableError{Side: side, Target: p, Angle: "q_13", Cosine: cos13}
	}
	q21 := q13 - g.gv

	var q1, q2 float64
	if side == Right {
		q1 = qt + q1t
		q2 = -180 + q21 + q1
	} else {
		q1 = qt - q1t
		q2 = 180 - q21 + q1
	}

	joint := r2.Point{X: math.Cos(rad(q1)), Y: math.Sin(rad(q1))}.Mul(l1).
		Add(r2.Point{X: math.Cos(rad(q2)), Y: math.Sin(rad(q2))}.Mul(l2))
	return g.IKPoint(joint), nil
}

// IKA1Phi keeps the common-mode angle a1 and returns the spread that orients
// the contact surface at phi (degrees):
//
//	Left:  a2 = asin(sin(a1 + beta − phi)·l2/l1)
//	Right: a2 = asin(sin(−a1 + beta + phi)·l2/l1)
//
// Since l2 < l1 the argument always lies in [-1, 1].
func (g *Geometry) IKA1Phi(side Side, a1, phi float64) JointAngles {
	var q float64
	if side == Right {
		q = -a1 + g.p.Beta + phi
	} else {
		q = a1 + g.p.Beta - phi
	}
	return JointAngles{
		A1: a1,
		A2: deg(math.Asin(math.Sin(rad(q)) * g.p.L2 / g.p.L1)),
	}
}
