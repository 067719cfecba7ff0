package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/cjeanneret/ddh/internal/hw/actuator"
	"github.com/cjeanneret/ddh/internal/hw/odrive"
	"github.com/cjeanneret/ddh/internal/logic/geometry"
	"github.com/cjeanneret/ddh/internal/logic/motion"
)

func newTestHand(t *testing.T) (*motion.Hand, *odrive.MockController) {
	t.Helper()
	geo, err := geometry.New(geometry.Params{L1: 50, L2: 30, L3: 40, Beta: 150, Gamma: 110})
	if err != nil {
		t.Fatal(err)
	}
	ctrl := odrive.NewMockController()
	mk := func(name string, axis int) *actuator.Actuator {
		a, err := actuator.New(name, odrive.NewAxis(ctrl, axis), actuator.Calibration{Direction: 1, LinkOffset: 30})
		if err != nil {
			t.Fatal(err)
		}
		return a
	}
	// Both fingers share one mock board; enough for sampling.
	left := [2]*actuator.Actuator{mk("L0", 0), mk("L1", 1)}
	right := [2]*actuator.Actuator{mk("R0", 0), mk("R1", 1)}
	return motion.NewHand(geo, left, right, nil, ctrl), ctrl
}

func TestSample(t *testing.T) {
	hand, ctrl := newTestHand(t)
	ctrl.Set("axis0.encoder.pos_estimate", 0.25)

	s := NewStreamer(hand, 0, func(Sample) {})
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	smp := s.Sample()
	if smp.Err != "" {
		t.Fatalf("Err = %q", smp.Err)
	}
	if !smp.Time.Equal(fixed) {
		t.Errorf("Time = %v", smp.Time)
	}
	if len(smp.Actuators) != 4 {
		t.Fatalf("got %d actuator samples, want 4", len(smp.Actuators))
	}
	l0 := smp.Actuators[0]
	if l0.Name != "L0" || l0.Encoder != 0.25 {
		t.Errorf("L0 sample = %+v", l0)
	}
	if !scalar.EqualWithinAbs(l0.Motor, 90, 1e-9) || !scalar.EqualWithinAbs(l0.Link, 120, 1e-9) {
		t.Errorf("L0 motor/link = %v/%v, want 90/120", l0.Motor, l0.Link)
	}
	// theta0 = 120, theta1 = 30 on both fingers.
	if !scalar.EqualWithinAbs(smp.Pose.Left.A1, 75, 1e-9) || !scalar.EqualWithinAbs(smp.Pose.Right.A2, -45, 1e-9) {
		t.Errorf("pose = %+v", smp.Pose)
	}
	if s.Period() != 10*time.Millisecond {
		t.Errorf("default period = %v", s.Period())
	}
}

func TestSample_ReportsErrors(t *testing.T) {
	hand, ctrl := newTestHand(t)
	ctrl.ReadErr = errors.New("serial timeout")

	smp := NewStreamer(hand, time.Millisecond, func(Sample) {}).Sample()
	if smp.Err == "" {
		t.Fatal("expected Err to be set")
	}
	if len(smp.Actuators) != 0 {
		t.Errorf("actuator samples = %+v, want none", smp.Actuators)
	}
}

func TestRun_PublishesUntilCancelled(t *testing.T) {
	hand, _ := newTestHand(t)

	var mu sync.Mutex
	count := 0
	got := make(chan struct{})
	s := NewStreamer(hand, time.Millisecond, func(Sample) {
		mu.Lock()
		defer mu.Unlock()
		count++
		if count == 3 {
			close(got)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("no samples published")
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
