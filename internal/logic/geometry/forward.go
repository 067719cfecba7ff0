package geometry

import (
	"math"

	"github.com/golang/geo/r2"
)

// R returns the distance from the actuator axis to the distal joint for a
// half-difference angle a2 (degrees).
//
// Past the singularity (|a2| > a2_sing) the distal links fold back and only
// the projection of l1 remains:
//
//	r = l1·cos(a2)
//
// otherwise the law of cosines gives the outer elbow solution:
//
//	r = l1·cos(a2) + sqrt(l2² − (l1·sin(a2))²)
//
// Both agree at a2_sing, where the square root vanishes.
func (g *Geometry) R(a2 float64) float64 {
	l1, l2 := g.p.L1, g.p.L2
	c := l1 * math.Cos(rad(a2))
	if math.Abs(a2) > g.a2Sing {
		return c
	}
	s := l1 * math.Sin(rad(a2))
	return c + math.Sqrt(math.Max(0, l2*l2-s*s))
}

// DistalJoint returns the distal joint position in the motor frame.
func (g *Geometry) DistalJoint(a JointAngles) r2.Point {
	r := g.R(a.A2)
	return r2.Point{X: r * math.Cos(rad(a.A1)), Y: r * math.Sin(rad(a.A1))}
}

// A3 returns the angle (degrees) between l2 and the vector from the actuator
// axis to the distal joint, for a distal-joint radius r.
func (g *Geometry) A3(r float64) float64 {
	l1, l2 := g.p.L1, g.p.L2
	return deg(math.Acos(clampUnit((l1*l1 - l2*l2 - r*r) / (-2 * l2 * r))))
}

// mirror applies the side convention to an angle measured from a1:
// Left adds it, Right subtracts it.
func mirror(side Side, a1, offset float64) float64 {
	if side == Right {
		return a1 - offset
	}
	return a1 + offset
}

// Phi returns the orientation (degrees) of the finger contact surface.
func (g *Geometry) Phi(side Side, a JointAngles) float64 {
	a3 := g.A3(g.R(a.A2))
	return mirror(side, a.A1, a3+g.p.Beta-180)
}

// Tip returns the fingertip position in the motor frame.
func (g *Geometry) Tip(side Side, a JointAngles) r2.Point {
	return g.TipPose(side, a).Pos
}

// TipPose evaluates the whole forward chain once: distal joint, a3, surface
// orientation and fingertip.
func (g *Geometry) TipPose(side Side, a JointAngles) TipPose {
	r := g.R(a.A2)
	a3 := g.A3(r)
	joint := r2.Point{X: r * math.Cos(rad(a.A1)), Y: r * math.Sin(rad(a.A1))}

	qTip := rad(mirror(side, a.A1, a3+g.p.Gamma-180))
	tip := joint.Add(r2.Point{X: math.Cos(qTip), Y: math.Sin(qTip)}.Mul(g.p.L3))

	return TipPose{
		Pos: tip,
		Phi: mirror(side, a.A1, a3+g.p.Beta-180),
	}
}
