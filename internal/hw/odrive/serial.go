package odrive

import (
	"fmt"
	"time"

	"github.com/tarm/serial"

	"github.com/cjeanneret/ddh/internal/debug"
)

// PortConfig describes the serial link to one controller board.
type PortConfig struct {
	Port          string `yaml:"port"`
	Baud          int    `yaml:"baud"`
	ReadTimeoutMS int    `yaml:"read_timeout_ms"`
}

// Open opens the serial port described by cfg and returns a controller on it.
func Open(cfg PortConfig) (*ASCIIController, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("odrive: no serial port configured")
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.Baud,
		ReadTimeout: time.Duration(cfg.ReadTimeoutMS) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}
	debug.Info("ODrive connected on %s @ %d baud", cfg.Port, cfg.Baud)
	return NewASCIIController(port), nil
}
