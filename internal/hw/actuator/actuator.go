package actuator

import (
	"fmt"

	"github.com/cjeanneret/ddh/internal/debug"
	"github.com/cjeanneret/ddh/internal/hw/odrive"
)

// Axis is the driver capability one actuator needs. odrive.Axis implements it.
type Axis interface {
	Position() (float64, error)
	InputPos() (float64, error)
	SetInputPos(turns float64) error
	CurrentState() (odrive.AxisState, error)
	RequestState(s odrive.AxisState) error
	SetInputMode(mode int) error
	PosGain() (float64, error)
	SetPosGain(v float64) error
	VelGain() (float64, error)
	SetVelGain(v float64) error
	Bandwidth() (float64, error)
	SetBandwidth(v float64) error
}

// Calibration holds the affine correction between encoder turns and link angle.
type Calibration struct {
	Offset     float64 // encoder reading (turns) at the motor zero
	Direction  int     // +1 or -1
	LinkOffset float64 // link angle (deg) at the motor zero
}

// Actuator is one calibrated rotary actuator:
//
//	theta = 360·dir·(raw − offset) + link_offset
//	raw   = ((theta − link_offset) / 360)·dir + offset
//
// It holds no position state; every getter reads the controller.
type Actuator struct {
	name string
	axis Axis
	cal  Calibration
}

// New creates an actuator named name (e.g. "R0") on axis.
func New(name string, axis Axis, cal Calibration) (*Actuator, error) {
	if cal.Direction != 1 && cal.Direction != -1 {
		return nil, fmt.Errorf("actuator %s: direction must be +1 or -1, got %d", name, cal.Direction)
	}
	debug.Verbose("Actuator %s: offset=%g dir=%d link_offset=%g", name, cal.Offset, cal.Direction, cal.LinkOffset)
	return &Actuator{name: name, axis: axis, cal: cal}, nil
}

// Name returns the actuator label.
func (a *Actuator) Name() string { return a.name }

// Calibration returns the transform constants.
func (a *Actuator) Calibration() Calibration { return a.cal }

// ThetaFromRaw converts an encoder reading to a link angle.
func (a *Actuator) ThetaFromRaw(raw float64) float64 {
	return 360*float64(a.cal.Direction)*(raw-a.cal.Offset) + a.cal.LinkOffset
}

// RawFromTheta converts a link angle to an encoder setpoint.
func (a *Actuator) RawFromTheta(theta float64) float64 {
	return ((theta-a.cal.LinkOffset)/360)*float64(a.cal.Direction) + a.cal.Offset
}

// Encoder returns the raw position estimate in turns.
func (a *Actuator) Encoder() (float64, error) {
	raw, err := a.axis.Position()
	if err != nil {
		return 0, fmt.Errorf("actuator %s: %w", a.name, err)
	}
	return raw, nil
}

// Theta returns the calibrated link angle in degrees.
func (a *Actuator) Theta() (float64, error) {
	raw, err := a.Encoder()
	if err != nil {
		return 0, err
	}
	return a.ThetaFromRaw(raw), nil
}

// SetTheta commands the link angle in degrees. Travel limits are the
// controller's business.
func (a *Actuator) SetTheta(theta float64) error {
	raw := a.RawFromTheta(theta)
	debug.Trace("Actuator %s: theta=%.4f -> raw=%.6f", a.name, theta, raw)
	if err := a.axis.SetInputPos(raw); err != nil {
		return fmt.Errorf("actuator %s: %w", a.name, err)
	}
	return nil
}

// MotorPos returns the motor angle in degrees, without the link offset.
func (a *Actuator) MotorPos() (float64, error) {
	theta, err := a.Theta()
	if err != nil {
		return 0, err
	}
	return theta - a.cal.LinkOffset, nil
}

// Setpoint returns the last commanded link angle.
func (a *Actuator) Setpoint() (float64, error) {
	raw, err := a.axis.InputPos()
	if err != nil {
		return 0, fmt.Errorf("actuator %s: %w", a.name, err)
	}
	return a.ThetaFromRaw(raw), nil
}

// Arm puts the axis in filtered position control and closes the loop.
// The setpoint is first pinned to the current position so the link does not jump.
func (a *Actuator) Arm() error {
	raw, err := a.Encoder()
	if err != nil {
		return err
	}
	steps := []struct {
		what string
		fn   func() error
	}{
		{"hold position", func() error { return a.axis.SetInputPos(raw) }},
		{"input mode", func() error { return a.axis.SetInputMode(odrive.InputModePosFilter) }},
		{"closed loop", func() error { return a.axis.RequestState(odrive.AxisStateClosedLoopControl) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return fmt.Errorf("actuator %s: arm (%s): %w", a.name, s.what, err)
		}
	}
	debug.Info("Actuator %s armed", a.name)
	return nil
}

// Disarm returns the axis to idle; the link freewheels.
func (a *Actuator) Disarm() error {
	if err := a.axis.RequestState(odrive.AxisStateIdle); err != nil {
		return fmt.Errorf("actuator %s: disarm: %w", a.name, err)
	}
	debug.Info("Actuator %s disarmed", a.name)
	return nil
}

// Armed reports whether the axis is in closed loop control.
func (a *Actuator) Armed() (bool, error) {
	st, err := a.axis.CurrentState()
	if err != nil {
		return false, fmt.Errorf("actuator %s: %w", a.name, err)
	}
	return st == odrive.AxisStateClosedLoopControl, nil
}

// Stiffness returns the position gain.
func (a *Actuator) Stiffness() (float64, error) { return a.axis.PosGain() }

// SetStiffness sets the position gain.
func (a *Actuator) SetStiffness(v float64) error { return a.axis.SetPosGain(v) }

// VelGain returns the velocity gain.
func (a *Actuator) VelGain() (float64, error) { return a.axis.VelGain() }

// SetVelGain sets the velocity gain.
func (a *Actuator) SetVelGain(v float64) error { return a.axis.SetVelGain(v) }

// Bandwidth returns the setpoint filter bandwidth.
func (a *Actuator) Bandwidth() (float64, error) { return a.axis.Bandwidth() }

// SetBandwidth sets the setpoint filter bandwidth.
func (a *Actuator) SetBandwidth(v float64) error { return a.axis.SetBandwidth(v) }

// ApplyGains writes all three tuning values.
func (a *Actuator) ApplyGains(g odrive.Gains) error {
	if err := a.SetStiffness(g.PosGain); err != nil {
		return fmt.Errorf("actuator %s: pos_gain: %w", a.name, err)
	}
	if err := a.SetVelGain(g.VelGain); err != nil {
		return fmt.Errorf("actuator %s: vel_gain: %w", a.name, err)
	}
	if err := a.SetBandwidth(g.Bandwidth); err != nil {
		return fmt.Errorf("actuator %s: bandwidth: %w", a.name, err)
	}
	return nil
}
