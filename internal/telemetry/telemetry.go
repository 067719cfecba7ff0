package telemetry

import (
	"context"
	"time"

	"go.uber.org/multierr"

	"github.com/cjeanneret/ddh/internal/debug"
	"github.com/cjeanneret/ddh/internal/hw/actuator"
	"github.com/cjeanneret/ddh/internal/logic/motion"
)

// ActuatorSample is one actuator reading in its three frames.
type ActuatorSample struct {
	Name    string  `json:"name"`
	Encoder float64 `json:"encoder"` // turns
	Motor   float64 `json:"motor"`   // deg, calibrated without link offset
	Link    float64 `json:"link"`    // deg, theta
}

// Sample is one telemetry frame.
type Sample struct {
	Time      time.Time        `json:"time"`
	Actuators []ActuatorSample `json:"actuators"`
	Pose      motion.HandPose  `json:"pose"`
	Err       string           `json:"error,omitempty"`
}

// Source is what the streamer samples. *motion.Hand implements it.
type Source interface {
	Actuators() []*actuator.Actuator
	Pose() (motion.HandPose, error)
}

// Streamer polls a Source at a fixed period and hands each Sample to publish.
type Streamer struct {
	src     Source
	period  time.Duration
	publish func(Sample)
	now     func() time.Time
}

// NewStreamer creates a streamer. A non-positive period defaults to 10ms.
func NewStreamer(src Source, period time.Duration, publish func(Sample)) *Streamer {
	if period <= 0 {
		period = 10 * time.Millisecond
	}
	return &Streamer{src: src, period: period, publish: publish, now: time.Now}
}

// Period returns the sampling period.
func (s *Streamer) Period() time.Duration { return s.period }

// Sample takes one reading. Read failures are reported in Err; the sample
// still carries whatever could be read.
func (s *Streamer) Sample() Sample {
	smp := Sample{Time: s.now()}
	var err error
	for _, a := range s.src.Actuators() {
		raw, e := a.Encoder()
		if e != nil {
			err = multierr.Append(err, e)
			continue
		}
		link := a.ThetaFromRaw(raw)
		smp.Actuators = append(smp.Actuators, ActuatorSample{
			Name:    a.Name(),
			Encoder: raw,
			Motor:   link - a.Calibration().LinkOffset,
			Link:    link,
		})
	}
	pose, e := s.src.Pose()
	smp.Pose = pose
	if err = multierr.Append(err, e); err != nil {
		smp.Err = err.Error()
	}
	return smp
}

// Run publishes a sample every period until ctx is done.
func (s *Streamer) Run(ctx context.Context) error {
	debug.Info("Telemetry: sampling every %v", s.period)
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			debug.Verbose("Telemetry: stopped")
			return ctx.Err()
		case <-ticker.C:
			s.publish(s.Sample())
		}
	}
}
