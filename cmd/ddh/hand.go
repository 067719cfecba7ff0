package main

import (
	"fmt"
	"io"

	"go.uber.org/multierr"

	"github.com/cjeanneret/ddh/internal/config"
	"github.com/cjeanneret/ddh/internal/debug"
	"github.com/cjeanneret/ddh/internal/hw/actuator"
	"github.com/cjeanneret/ddh/internal/hw/gpio"
	"github.com/cjeanneret/ddh/internal/hw/odrive"
	"github.com/cjeanneret/ddh/internal/hw/power"
	"github.com/cjeanneret/ddh/internal/logic/motion"
)

// openHand builds the hand described by cfg: GPIO and power switch, one
// controller per finger, four calibrated actuators. Closing the hand
// releases all of them.
func openHand(cfg *config.Config) (h *motion.Hand, err error) {
	var closers []io.Closer
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				err = multierr.Append(err, closers[i].Close())
			}
		}
	}()

	debug.Step(1, "Initializing GPIO driver")
	drv, err := gpio.NewDriver(cfg.Defaults.MockDriver)
	if err != nil {
		return nil, fmt.Errorf("init GPIO failed: %w", err)
	}
	closers = append(closers, drv)

	pw, err := power.New(drv, cfg.Power)
	if err != nil {
		return nil, fmt.Errorf("init power switch failed: %w", err)
	}
	debug.PrintStruct("Power config", cfg.Power)

	debug.Step(2, "Connecting motor controllers")
	var ctrls [2]odrive.Controller
	for i, pc := range []odrive.PortConfig{cfg.ODrive.Left, cfg.ODrive.Right} {
		if cfg.Defaults.MockDriver {
			ctrls[i] = odrive.NewMockController()
		} else {
			c, err := odrive.Open(pc)
			if err != nil {
				return nil, err
			}
			ctrls[i] = c
		}
		closers = append(closers, ctrls[i])
	}

	debug.Step(3, "Calibrating actuators")
	var acts [2][2]*actuator.Actuator
	for i, name := range config.MotorNames {
		finger, ch := i/2, i%2
		a, err := actuator.New(name, odrive.NewAxis(ctrls[finger], ch), cfg.Calibration(name))
		if err != nil {
			return nil, err
		}
		debug.PrintStruct("Actuator "+name, a.Calibration())
		acts[finger][ch] = a
	}

	// GPIO is released last.
	return motion.NewHand(cfg.FingerGeometry(), acts[0], acts[1], pw, ctrls[0], ctrls[1], drv), nil
}
