package geometry

import (
	"fmt"
	"strings"

	"github.com/golang/geo/r2"
)

// Side selects which finger of the hand a formula is evaluated for. The two
// fingers are mirror images, so every side-dependent formula flips a sign.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	switch s {
	case Left:
		return "L"
	case Right:
		return "R"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// ParseSide accepts "L"/"left" and "R"/"right" (case-insensitive).
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l", "left":
		return Left, nil
	case "r", "right":
		return Right, nil
	default:
		return 0, fmt.Errorf("unknown finger side %q (want L or R)", s)
	}
}

// JointAngles is the differential parameterization of a finger's actuator pair.
type JointAngles struct {
	A1 float64 `json:"a1"` // common-mode angle (yaw), degrees
	A2 float64 `json:"a2"` // half-difference angle (spread), degrees
}

// TipPose is the fingertip position with the contact surface orientation.
type TipPose struct {
	Pos r2.Point `json:"pos"`
	Phi float64  `json:"phi"` // degrees
}
