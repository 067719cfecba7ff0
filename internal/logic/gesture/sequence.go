package gesture

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/ddh/internal/debug"
	"github.com/cjeanneret/ddh/internal/logic/geometry"
)

// Hand is what a sequence drives. *motion.Hand implements it.
type Hand interface {
	SetA1A2(side geometry.Side, a1, a2 float64) error
	SetParallelJaw(angle, phi float64) error
}

// Step is one pose of a sequence.
type Step struct {
	Name  string
	Apply func(h Hand) error
}

// Fingers sets both fingers' joint angles.
func Fingers(left, right geometry.JointAngles) Step {
	return Step{
		Name: fmt.Sprintf("fingers L(%g,%g) R(%g,%g)", left.A1, left.A2, right.A1, right.A2),
		Apply: func(h Hand) error {
			if err := h.SetA1A2(geometry.Left, left.A1, left.A2); err != nil {
				return err
			}
			return h.SetA1A2(geometry.Right, right.A1, right.A2)
		},
	}
}

// Jaw moves to a parallel jaw pose.
func Jaw(angle, phi float64) Step {
	return Step{
		Name:  fmt.Sprintf("jaw angle=%g phi=%g", angle, phi),
		Apply: func(h Hand) error { return h.SetParallelJaw(angle, phi) },
	}
}

// Sequence is a list of poses played with a fixed pause between them.
type Sequence struct {
	Name  string
	Steps []Step
	Pause time.Duration

	// OnStep, if set, is called after each step is applied (1-based index).
	OnStep func(index, total int, step Step)
}

// StartupDance opens the fingers wide then works the parallel jaw.
func StartupDance() *Sequence {
	return &Sequence{
		Name: "startup dance",
		Steps: []Step{
			Fingers(geometry.JointAngles{A1: -90, A2: 25}, geometry.JointAngles{A1: 90, A2: 25}),
			Jaw(-15, 0),
			Jaw(25, 0),
			Jaw(-15, 0),
			Jaw(-10, 15),
			Jaw(-10, -15),
			Jaw(0, 0),
		},
		Pause: 500 * time.Millisecond,
	}
}

// Run plays the sequence on h. It stops at the first failing step or when
// ctx is done; the hand stays wherever the last applied step left it.
func (s *Sequence) Run(ctx context.Context, h Hand) error {
	debug.Section("Sequence: " + s.Name)
	total := len(s.Steps)
	for i, step := range s.Steps {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.Pause):
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		debug.Step(i+1, step.Name)
		if err := step.Apply(h); err != nil {
			return fmt.Errorf("%s: step %d (%s): %w", s.Name, i+1, step.Name, err)
		}
		if s.OnStep != nil {
			s.OnStep(i+1, total, step)
		}
	}
	debug.Live("Sequence %q complete", s.Name)
	return nil
}
