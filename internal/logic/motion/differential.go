package motion

import "github.com/cjeanneret/ddh/internal/logic/geometry"

// ThetaChannel is one calibrated actuator as seen by the kinematics:
// a link angle in degrees that can be read and commanded.
// *actuator.Actuator implements it.
type ThetaChannel interface {
	Theta() (float64, error)
	SetTheta(theta float64) error
}

// Decode turns the two link angles of a finger into (a1, a2).
//
//	a1 = (theta0 + theta1) / 2
//	a2 = (theta1 - theta0) / 2   right
//	a2 = (theta0 - theta1) / 2   left
func Decode(side geometry.Side, theta0, theta1 float64) geometry.JointAngles {
	a := geometry.JointAngles{A1: (theta0 + theta1) / 2}
	if side == geometry.Right {
		a.A2 = (theta1 - theta0) / 2
	} else {
		a.A2 = (theta0 - theta1) / 2
	}
	return a
}

// Encode is the inverse of Decode.
func Encode(side geometry.Side, a geometry.JointAngles) (theta0, theta1 float64) {
	if side == geometry.Right {
		return a.A1 - a.A2, a.A1 + a.A2
	}
	return a.A1 + a.A2, a.A1 - a.A2
}
