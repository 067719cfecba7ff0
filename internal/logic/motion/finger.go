package motion

import (
	"fmt"

	"github.com/golang/geo/r2"

	"github.com/cjeanneret/ddh/internal/debug"
	"github.com/cjeanneret/ddh/internal/logic/geometry"
)

// Finger drives one finger through its two actuator channels.
//
// It keeps no pose state: every query reads both channels, and two queries
// may see different poses if the finger moves in between. Commands write
// theta0 then theta1 with no atomicity; callers issuing commands from several
// goroutines must serialize them (Hand does).
type Finger struct {
	side geometry.Side
	geo  *geometry.Geometry
	ch0  ThetaChannel
	ch1  ThetaChannel
}

// FingerPose is a snapshot of every derived quantity, computed from one
// reading of the channels.
type FingerPose struct {
	Side        string   `json:"side"`
	A1          float64  `json:"a1"`
	A2          float64  `json:"a2"`
	DistalJoint r2.Point `json:"distal_joint"`
	Tip         r2.Point `json:"tip"`
	Phi         float64  `json:"phi"`
}

// NewFinger composes a finger from its geometry and channels 0 and 1.
func NewFinger(side geometry.Side, geo *geometry.Geometry, ch0, ch1 ThetaChannel) *Finger {
	return &Finger{side: side, geo: geo, ch0: ch0, ch1: ch1}
}

// Side returns which finger this is.
func (f *Finger) Side() geometry.Side { return f.side }

// Geometry returns the finger's geometry.
func (f *Finger) Geometry() *geometry.Geometry { return f.geo }

// A1A2 reads both channels and decodes the joint angles.
func (f *Finger) A1A2() (geometry.JointAngles, error) {
	t0, err := f.ch0.Theta()
	if err != nil {
		return geometry.JointAngles{}, fmt.Errorf("finger %s: %w", f.side, err)
	}
	t1, err := f.ch1.Theta()
	if err != nil {
		return geometry.JointAngles{}, fmt.Errorf("finger %s: %w", f.side, err)
	}
	return Decode(f.side, t0, t1), nil
}

// SetA1A2 commands both channels.
func (f *Finger) SetA1A2(a1, a2 float64) error {
	debug.Command(f.side.String(), "a1a2", a1, a2)
	t0, t1 := Encode(f.side, geometry.JointAngles{A1: a1, A2: a2})
	if err := f.ch0.SetTheta(t0); err != nil {
		return fmt.Errorf("finger %s: %w", f.side, err)
	}
	if err := f.ch1.SetTheta(t1); err != nil {
		return fmt.Errorf("finger %s: %w", f.side, err)
	}
	return nil
}

// SetA1 changes the yaw and keeps the live spread.
func (f *Finger) SetA1(a1 float64) error {
	a, err := f.A1A2()
	if err != nil {
		return err
	}
	return f.SetA1A2(a1, a.A2)
}

// SetA2 changes the spread and keeps the live yaw.
func (f *Finger) SetA2(a2 float64) error {
	a, err := f.A1A2()
	if err != nil {
		return err
	}
	return f.SetA1A2(a.A1, a2)
}

// SetPoint moves the distal joint towards p. Targets outside the workspace
// are pulled to the nearest reachable radius.
func (f *Finger) SetPoint(p r2.Point) error {
	a := f.geo.IKPoint(p)
	debug.Verbose("Finger %s: point %v -> a1=%.3f a2=%.3f", f.side, p, a.A1, a.A2)
	return f.SetA1A2(a.A1, a.A2)
}

// SetTip moves the fingertip to p. An unreachable target returns an error
// wrapping geometry.ErrUnreachable and leaves the channels untouched.
func (f *Finger) SetTip(p r2.Point) error {
	a, err := f.geo.IKTip(f.side, p)
	if err != nil {
		debug.Live("Finger %s: %v", f.side, err)
		return err
	}
	debug.Verbose("Finger %s: tip %v -> a1=%.3f a2=%.3f", f.side, p, a.A1, a.A2)
	return f.SetA1A2(a.A1, a.A2)
}

// SetA1Phi sets the yaw and picks the spread that orients the contact
// surface at phi.
func (f *Finger) SetA1Phi(a1, phi float64) error {
	a := f.geo.IKA1Phi(f.side, a1, phi)
	debug.Verbose("Finger %s: a1=%.3f phi=%.3f -> a2=%.3f", f.side, a1, phi, a.A2)
	return f.SetA1A2(a.A1, a.A2)
}

var modes = []string{"a1a2", "point", "tip", "a1phi"}

// Modes returns the mode names accepted by Finger.Move.
func Modes() []string { return append([]string(nil), modes...) }

// Move runs a two-argument command by name:
//
//	a1a2   SetA1A2(u, v)
//	point  SetPoint(u, v)
//	tip    SetTip(u, v)
//	a1phi  SetA1Phi(u, v)
func (f *Finger) Move(mode string, u, v float64) error {
	switch mode {
	case "a1a2":
		return f.SetA1A2(u, v)
	case "point":
		return f.SetPoint(r2.Point{X: u, Y: v})
	case "tip":
		return f.SetTip(r2.Point{X: u, Y: v})
	case "a1phi":
		return f.SetA1Phi(u, v)
	}
	return fmt.Errorf("unknown move mode %q", mode)
}

// DistalJoint returns the live distal joint position.
func (f *Finger) DistalJoint() (r2.Point, error) {
	a, err := f.A1A2()
	if err != nil {
		return r2.Point{}, err
	}
	return f.geo.DistalJoint(a), nil
}

// TipPose returns the live fingertip position and surface angle.
func (f *Finger) TipPose() (geometry.TipPose, error) {
	a, err := f.A1A2()
	if err != nil {
		return geometry.TipPose{}, err
	}
	return f.geo.TipPose(f.side, a), nil
}

// Phi returns the live contact surface angle.
func (f *Finger) Phi() (float64, error) {
	a, err := f.A1A2()
	if err != nil {
		return 0, err
	}
	return f.geo.Phi(f.side, a), nil
}

// Pose reads the channels once and derives everything from that reading.
func (f *Finger) Pose() (FingerPose, error) {
	a, err := f.A1A2()
	if err != nil {
		return FingerPose{}, err
	}
	tp := f.geo.TipPose(f.side, a)
	return FingerPose{
		Side:        f.side.String(),
		A1:          a.A1,
		A2:          a.A2,
		DistalJoint: f.geo.DistalJoint(a),
		Tip:         tp.Pos,
		Phi:         tp.Phi,
	}, nil
}
