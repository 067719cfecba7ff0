package odrive

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when a controller is used after Close.
	ErrClosed = errors.New("odrive: controller closed")
	// ErrProtocol is returned when the controller rejects or garbles a command.
	ErrProtocol = errors.New("odrive: protocol error")
)

// AxisState mirrors the ODrive axis state enum (only the values we use).
type AxisState int

const (
	AxisStateUndefined         AxisState = 0
	AxisStateIdle              AxisState = 1
	AxisStateClosedLoopControl AxisState = 8
)

func (s AxisState) String() string {
	switch s {
	case AxisStateUndefined:
		return "undefined"
	case AxisStateIdle:
		return "idle"
	case AxisStateClosedLoopControl:
		return "closed_loop_control"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// InputModePosFilter makes the controller low-pass filter position setpoints
// with input_filter_bandwidth.
const InputModePosFilter = 3

// Controller is the property-level capability of one motor controller board.
// Property paths follow the ODrive object tree, e.g. "axis0.encoder.pos_estimate".
// Implementations serialize access; callers may share one Controller between
// goroutines.
type Controller interface {
	Read(prop string) (float64, error)
	Write(prop string, value float64) error
	Close() error
}

// Gains groups the position controller tuning applied when arming.
type Gains struct {
	PosGain   float64 `yaml:"pos_gain" json:"pos_gain"` // stiffness, (turn/s)/turn
	VelGain   float64 `yaml:"vel_gain" json:"vel_gain"`
	Bandwidth float64 `yaml:"bandwidth" json:"bandwidth"` // input filter bandwidth, Hz
}

// Axis addresses one motor channel (0 or 1) of a Controller.
type Axis struct {
	ctrl Controller
	num  int
}

// NewAxis returns the handle for axis num of c.
func NewAxis(c Controller, num int) Axis {
	return Axis{ctrl: c, num: num}
}

func (a Axis) prop(path string) string {
	return fmt.Sprintf("axis%d.%s", a.num, path)
}

func (a Axis) read(path string) (float64, error) {
	v, err := a.ctrl.Read(a.prop(path))
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", a.prop(path), err)
	}
	return v, nil
}

func (a Axis) write(path string, v float64) error {
	if err := a.ctrl.Write(a.prop(path), v); err != nil {
		return fmt.Errorf("write %s: %w", a.prop(path), err)
	}
	return nil
}

// Position returns the encoder position estimate in turns.
func (a Axis) Position() (float64, error) { return a.read("encoder.pos_estimate") }

// InputPos returns the last position setpoint in turns.
func (a Axis) InputPos() (float64, error) { return a.read("controller.input_pos") }

// SetInputPos commands a position setpoint in turns.
func (a Axis) SetInputPos(turns float64) error { return a.write("controller.input_pos", turns) }

// CurrentState returns the state the axis is actually in.
func (a Axis) CurrentState() (AxisState, error) {
	v, err := a.read("current_state")
	return AxisState(int(v)), err
}

// RequestState asks the axis to transition to s.
func (a Axis) RequestState(s AxisState) error { return a.write("requested_state", float64(s)) }

// SetInputMode selects how setpoints are shaped.
func (a Axis) SetInputMode(mode int) error {
	return a.write("controller.config.input_mode", float64(mode))
}

// PosGain returns the position loop gain.
func (a Axis) PosGain() (float64, error) { return a.read("controller.config.pos_gain") }

// SetPosGain sets the position loop gain.
func (a Axis) SetPosGain(v float64) error { return a.write("controller.config.pos_gain", v) }

// VelGain returns the velocity loop gain.
func (a Axis) VelGain() (float64, error) { return a.read("controller.config.vel_gain") }

// SetVelGain sets the velocity loop gain.
func (a Axis) SetVelGain(v float64) error { return a.write("controller.config.vel_gain", v) }

// Bandwidth returns the setpoint filter bandwidth.
func (a Axis) Bandwidth() (float64, error) {
	return a.read("controller.config.input_filter_bandwidth")
}

// SetBandwidth sets the setpoint filter bandwidth.
func (a Axis) SetBandwidth(v float64) error {
	return a.write("controller.config.input_filter_bandwidth", v)
}
