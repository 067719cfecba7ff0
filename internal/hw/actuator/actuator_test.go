package actuator

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/cjeanneret/ddh/internal/hw/odrive"
)

const epsilon = 1e-9

func newMock(t *testing.T, cal Calibration) (*Actuator, *odrive.MockController) {
	t.Helper()
	m := odrive.NewMockController()
	a, err := New("R0", odrive.NewAxis(m, 0), cal)
	if err != nil {
		t.Fatal(err)
	}
	return a, m
}

func TestNew_RejectsDirection(t *testing.T) {
	for _, dir := range []int{0, 2, -3} {
		if _, err := New("L1", odrive.NewAxis(odrive.NewMockController(), 1), Calibration{Direction: dir}); err == nil {
			t.Errorf("direction %d: expected error", dir)
		}
	}
}

func TestThetaFromRaw(t *testing.T) {
	cases := []struct {
		name string
		cal  Calibration
		raw  float64
		want float64
	}{
		{"identity", Calibration{Direction: 1}, 0.25, 90},
		{"offset", Calibration{Offset: 0.1, Direction: 1}, 0.1, 0},
		{"reversed", Calibration{Direction: -1}, 0.25, -90},
		{"link_offset", Calibration{Offset: 0.1, Direction: -1, LinkOffset: 45}, 0.35, -45},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a, _ := newMock(t, tc.cal)
			if got := a.ThetaFromRaw(tc.raw); !scalar.EqualWithinAbs(got, tc.want, epsilon) {
				t.Errorf("ThetaFromRaw(%v) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestRawThetaInverse(t *testing.T) {
	for _, cal := range []Calibration{
		{Offset: 0, Direction: 1},
		{Offset: -1.37, Direction: -1, LinkOffset: 12.5},
		{Offset: 0.42, Direction: 1, LinkOffset: -90},
	} {
		a, _ := newMock(t, cal)
		for _, theta := range floats.Span(make([]float64, 25), -180, 180) {
			if got := a.ThetaFromRaw(a.RawFromTheta(theta)); !scalar.EqualWithinAbs(got, theta, epsilon) {
				t.Errorf("%+v: theta %v round-tripped to %v", cal, theta, got)
			}
		}
	}
}

func TestSetThetaWritesRaw(t *testing.T) {
	a, m := newMock(t, Calibration{Offset: 0.5, Direction: -1, LinkOffset: 10})
	if err := a.SetTheta(100); err != nil {
		t.Fatal(err)
	}
	w := m.Writes()
	if len(w) != 1 || w[0].Prop != "axis0.controller.input_pos" {
		t.Fatalf("writes = %+v", w)
	}
	// ((100-10)/360)·(-1) + 0.5 = 0.25
	if !scalar.EqualWithinAbs(w[0].Value, 0.25, epsilon) {
		t.Errorf("raw = %v, want 0.25", w[0].Value)
	}

	theta, err := a.Theta()
	if err != nil {
		t.Fatal(err)
	}
	if !scalar.EqualWithinAbs(theta, 100, epsilon) {
		t.Errorf("Theta() = %v, want 100", theta)
	}
	motor, _ := a.MotorPos()
	if !scalar.EqualWithinAbs(motor, 90, epsilon) {
		t.Errorf("MotorPos() = %v, want 90", motor)
	}
	sp, _ := a.Setpoint()
	if !scalar.EqualWithinAbs(sp, 100, epsilon) {
		t.Errorf("Setpoint() = %v, want 100", sp)
	}
	raw, _ := a.Encoder()
	if !scalar.EqualWithinAbs(raw, 0.25, epsilon) {
		t.Errorf("Encoder() = %v, want 0.25", raw)
	}
}

func TestArmDisarm(t *testing.T) {
	a, m := newMock(t, Calibration{Direction: 1})
	m.Set("axis0.encoder.pos_estimate", 0.2)

	if armed, _ := a.Armed(); armed {
		t.Fatal("armed before Arm")
	}
	if err := a.Arm(); err != nil {
		t.Fatal(err)
	}
	if armed, _ := a.Armed(); !armed {
		t.Error("not armed after Arm")
	}
	want := []odrive.WriteRecord{
		{Prop: "axis0.controller.input_pos", Value: 0.2},
		{Prop: "axis0.controller.config.input_mode", Value: odrive.InputModePosFilter},
		{Prop: "axis0.requested_state", Value: float64(odrive.AxisStateClosedLoopControl)},
	}
	if diff := cmp.Diff(want, m.Writes()); diff != "" {
		t.Errorf("arm writes mismatch (-want +got):\n%s", diff)
	}

	if err := a.Disarm(); err != nil {
		t.Fatal(err)
	}
	if armed, _ := a.Armed(); armed {
		t.Error("still armed after Disarm")
	}
}

func TestApplyGains(t *testing.T) {
	a, _ := newMock(t, Calibration{Direction: 1})
	if err := a.ApplyGains(odrive.Gains{PosGain: 250, VelGain: 1, Bandwidth: 500}); err != nil {
		t.Fatal(err)
	}
	got := make([]float64, 3)
	got[0], _ = a.Stiffness()
	got[1], _ = a.VelGain()
	got[2], _ = a.Bandwidth()
	if diff := cmp.Diff([]float64{250, 1, 500}, got); diff != "" {
		t.Errorf("gains mismatch (-want +got):\n%s", diff)
	}
}

func TestTransportErrorsSurface(t *testing.T) {
	a, m := newMock(t, Calibration{Direction: 1})
	boom := errors.New("serial timeout")
	m.ReadErr = boom
	m.WriteErr = boom

	if _, err := a.Theta(); !errors.Is(err, boom) {
		t.Errorf("Theta error = %v", err)
	}
	if err := a.SetTheta(1); !errors.Is(err, boom) {
		t.Errorf("SetTheta error = %v", err)
	}
	if err := a.Arm(); !errors.Is(err, boom) {
		t.Errorf("Arm error = %v", err)
	}
	if _, err := a.Armed(); !errors.Is(err, boom) {
		t.Errorf("Armed error = %v", err)
	}
}
