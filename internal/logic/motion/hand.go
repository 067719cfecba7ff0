package motion

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/multierr"

	"github.com/cjeanneret/ddh/internal/debug"
	"github.com/cjeanneret/ddh/internal/hw/actuator"
	"github.com/cjeanneret/ddh/internal/hw/odrive"
	"github.com/cjeanneret/ddh/internal/hw/power"
	"github.com/cjeanneret/ddh/internal/logic/geometry"
)

// Selection picks the fingers a whole-hand setting applies to.
type Selection int

const (
	SelectLeft Selection = 1 << iota
	SelectRight
	SelectBoth = SelectLeft | SelectRight
)

// ParseSelection accepts "L", "R" or "LR" (case-insensitive).
func ParseSelection(s string) (Selection, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "L":
		return SelectLeft, nil
	case "R":
		return SelectRight, nil
	case "LR", "RL", "":
		return SelectBoth, nil
	}
	return 0, fmt.Errorf("unknown finger selection %q (want L, R or LR)", s)
}

func (s Selection) sides() []geometry.Side {
	var out []geometry.Side
	if s&SelectLeft != 0 {
		out = append(out, geometry.Left)
	}
	if s&SelectRight != 0 {
		out = append(out, geometry.Right)
	}
	return out
}

// HandPose is a snapshot of both fingers.
type HandPose struct {
	Left  FingerPose `json:"left"`
	Right FingerPose `json:"right"`
}

// Hand owns both fingers and the hardware behind them. Its command methods
// are serialized so two callers never interleave half-applied commands.
type Hand struct {
	mu      sync.Mutex
	fingers [2]*Finger
	acts    [2][2]*actuator.Actuator
	power   *power.Switch
	closers []io.Closer
}

// NewHand builds both fingers on geo. left and right are the actuator pairs
// (channel 0, channel 1). pw may be nil when no relay is wired. closers are
// released by Close, typically the controller boards.
func NewHand(geo *geometry.Geometry, left, right [2]*actuator.Actuator, pw *power.Switch, closers ...io.Closer) *Hand {
	h := &Hand{power: pw, closers: closers}
	h.acts[geometry.Left] = left
	h.acts[geometry.Right] = right
	h.fingers[geometry.Left] = NewFinger(geometry.Left, geo, left[0], left[1])
	h.fingers[geometry.Right] = NewFinger(geometry.Right, geo, right[0], right[1])
	return h
}

// Finger returns the finger on side. Calls on it bypass the hand lock;
// use Do to command it.
func (h *Hand) Finger(side geometry.Side) *Finger { return h.fingers[side] }

// Geometry returns the shared finger geometry.
func (h *Hand) Geometry() *geometry.Geometry { return h.fingers[geometry.Left].Geometry() }

// Actuators returns the four actuators in L0, L1, R0, R1 order.
func (h *Hand) Actuators() []*actuator.Actuator {
	return []*actuator.Actuator{
		h.acts[geometry.Left][0], h.acts[geometry.Left][1],
		h.acts[geometry.Right][0], h.acts[geometry.Right][1],
	}
}

// Do runs fn on the finger on side while holding the command lock.
func (h *Hand) Do(side geometry.Side, fn func(f *Finger) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return fn(h.fingers[side])
}

// SetA1A2 commands one finger's joint angles.
func (h *Hand) SetA1A2(side geometry.Side, a1, a2 float64) error {
	return h.Do(side, func(f *Finger) error { return f.SetA1A2(a1, a2) })
}

// Pose reads both fingers.
func (h *Hand) Pose() (HandPose, error) {
	l, lerr := h.fingers[geometry.Left].Pose()
	r, rerr := h.fingers[geometry.Right].Pose()
	return HandPose{Left: l, Right: r}, multierr.Combine(lerr, rerr)
}

// SetParallelJaw yaws the fingers symmetrically by angle, both contact
// surfaces at phi.
func (h *Hand) SetParallelJaw(angle, phi float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	debug.Live("Parallel jaw: angle=%.2f phi=%.2f", angle, phi)
	return multierr.Combine(
		h.fingers[geometry.Left].SetA1Phi(-angle, phi),
		h.fingers[geometry.Right].SetA1Phi(angle, phi),
	)
}

// Arm powers the motors, applies g and closes the position loop on every
// actuator. If any actuator fails the whole hand is disarmed again.
func (h *Hand) Arm(g odrive.Gains) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	debug.Summary("Arming hand")
	if h.power != nil {
		if err := h.power.On(); err != nil {
			return fmt.Errorf("arm: %w", err)
		}
	}
	var err error
	for _, a := range h.Actuators() {
		if e := a.ApplyGains(g); e != nil {
			err = multierr.Append(err, e)
			continue
		}
		err = multierr.Append(err, a.Arm())
	}
	if err != nil {
		debug.Error(err)
		return multierr.Append(fmt.Errorf("arm: %w", err), h.disarm())
	}
	return nil
}

// Disarm idles every actuator and cuts motor power.
func (h *Hand) Disarm() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disarm()
}

func (h *Hand) disarm() error {
	var err error
	for _, a := range h.Actuators() {
		err = multierr.Append(err, a.Disarm())
	}
	if h.power != nil {
		err = multierr.Append(err, h.power.Off())
	}
	return err
}

// Armed reports whether all four actuators are in closed loop.
func (h *Hand) Armed() (bool, error) {
	all := true
	for _, a := range h.Actuators() {
		ok, err := a.Armed()
		if err != nil {
			return false, err
		}
		all = all && ok
	}
	return all, nil
}

func (h *Hand) each(sel Selection, fn func(a *actuator.Actuator) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var err error
	for _, side := range sel.sides() {
		for _, a := range h.acts[side] {
			err = multierr.Append(err, fn(a))
		}
	}
	return err
}

// SetStiffness sets the position gain of the selected fingers.
func (h *Hand) SetStiffness(sel Selection, v float64) error {
	return h.each(sel, func(a *actuator.Actuator) error { return a.SetStiffness(v) })
}

// SetVelGain sets the velocity gain of the selected fingers.
func (h *Hand) SetVelGain(sel Selection, v float64) error {
	return h.each(sel, func(a *actuator.Actuator) error { return a.SetVelGain(v) })
}

// SetBandwidth sets the setpoint filter bandwidth of the selected fingers.
func (h *Hand) SetBandwidth(sel Selection, v float64) error {
	return h.each(sel, func(a *actuator.Actuator) error { return a.SetBandwidth(v) })
}

// Close disarms the hand and releases the controllers.
func (h *Hand) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	err := h.disarm()
	for _, c := range h.closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}
