package power

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cjeanneret/ddh/internal/debug"
	"github.com/cjeanneret/ddh/internal/hw/gpio"
)

// ErrEmergencyStop is returned when power is requested while the e-stop is pressed.
var ErrEmergencyStop = errors.New("emergency stop engaged")

// Config holds the BCM pin numbers. 0 = not used.
type Config struct {
	EnablePin int `yaml:"enable_pin"` // motor power relay, active HIGH
	EstopPin  int `yaml:"estop_pin"`  // e-stop switch to ground, active LOW
}

// Switch controls motor power through a relay and watches the e-stop input.
type Switch struct {
	mu  sync.Mutex
	drv gpio.Driver
	cfg Config
	on  bool
}

// New configures the pins and leaves the relay open (power off).
func New(drv gpio.Driver, cfg Config) (*Switch, error) {
	if cfg.EnablePin > 0 {
		if err := drv.SetupPin(cfg.EnablePin, gpio.Output); err != nil {
			return nil, fmt.Errorf("power: enable pin %d: %w", cfg.EnablePin, err)
		}
		if err := drv.WritePin(cfg.EnablePin, gpio.Low); err != nil {
			return nil, fmt.Errorf("power: enable pin %d: %w", cfg.EnablePin, err)
		}
	}
	if cfg.EstopPin > 0 {
		if err := drv.SetupPin(cfg.EstopPin, gpio.InputPullUp); err != nil {
			return nil, fmt.Errorf("power: estop pin %d: %w", cfg.EstopPin, err)
		}
	}
	debug.Verbose("Power switch: enable_pin=%d estop_pin=%d", cfg.EnablePin, cfg.EstopPin)
	return &Switch{drv: drv, cfg: cfg}, nil
}

// EStopEngaged reports whether the emergency stop is pressed.
// Without an e-stop pin it always reports false.
func (s *Switch) EStopEngaged() (bool, error) {
	if s.cfg.EstopPin <= 0 {
		return false, nil
	}
	l, err := s.drv.ReadPin(s.cfg.EstopPin)
	if err != nil {
		return false, fmt.Errorf("power: read estop: %w", err)
	}
	return l == gpio.Low, nil
}

// On closes the relay. It refuses while the e-stop is engaged.
func (s *Switch) On() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stopped, err := s.EStopEngaged()
	if err != nil {
		return err
	}
	if stopped {
		return ErrEmergencyStop
	}
	if s.cfg.EnablePin > 0 {
		if err := s.drv.WritePin(s.cfg.EnablePin, gpio.High); err != nil {
			return fmt.Errorf("power: relay on: %w", err)
		}
	}
	s.on = true
	debug.Info("Motor power ON")
	return nil
}

// Off opens the relay.
func (s *Switch) Off() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.EnablePin > 0 {
		if err := s.drv.WritePin(s.cfg.EnablePin, gpio.Low); err != nil {
			return fmt.Errorf("power: relay off: %w", err)
		}
	}
	if s.on {
		debug.Info("Motor power OFF")
	}
	s.on = false
	return nil
}

// IsOn reports the last commanded relay state.
func (s *Switch) IsOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.on
}
