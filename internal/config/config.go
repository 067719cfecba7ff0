package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/ddh/internal/hw/actuator"
	"github.com/cjeanneret/ddh/internal/hw/odrive"
	"github.com/cjeanneret/ddh/internal/hw/power"
	"github.com/cjeanneret/ddh/internal/logic/geometry"
)

// MaxConfigFileBytes bounds the size of a config file.
const MaxConfigFileBytes = 1 << 20

// MotorNames lists the four actuators: finger letter, then channel.
var MotorNames = []string{"L0", "L1", "R0", "R1"}

// MotorConfig holds the encoder calibration of one actuator.
type MotorConfig struct {
	Offset float64 `yaml:"offset"` // encoder turns at motor zero
	Dir    int     `yaml:"dir"`    // +1 or -1
}

// ODriveConfig holds one serial link per finger. Axis 0/1 of each board
// drive actuator 0/1 of that finger.
type ODriveConfig struct {
	Left  odrive.PortConfig `yaml:"left"`
	Right odrive.PortConfig `yaml:"right"`
}

// DefaultsConfig contains generic runtime parameters.
type DefaultsConfig struct {
	DebugLevel  int     `yaml:"debug_level"`  // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockDriver  bool    `yaml:"mock_driver"`  // in-memory controllers and GPIO (true=dev/test)
	TelemetryHz float64 `yaml:"telemetry_hz"` // telemetry sampling rate
}

// Config aggregates all application configuration.
type Config struct {
	ODrive   ODriveConfig           `yaml:"odrive"`
	Motors   map[string]MotorConfig `yaml:"motors"`
	Linkages map[string]float64     `yaml:"linkages"` // link offset per actuator, degrees
	Geometry geometry.Params        `yaml:"geometry"`
	Gains    odrive.Gains           `yaml:"gains"`
	Power    power.Config           `yaml:"power"`
	Defaults DefaultsConfig         `yaml:"defaults"`

	geo *geometry.Geometry
}

// ValidateConfigPath rejects paths that are empty, contain "..", do not end
// in .yaml or do not sit directly in a configs/ directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, elem := range strings.Split(filepath.ToSlash(path), "/") {
		if elem == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file %q must be in a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the validated configuration.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file is %d bytes, limit is %d", info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	for _, name := range MotorNames {
		m, ok := cfg.Motors[name]
		if !ok {
			return nil, fmt.Errorf("motors.%s is required", name)
		}
		if m.Dir != 1 && m.Dir != -1 {
			return nil, fmt.Errorf("motors.%s.dir must be 1 or -1, got %d", name, m.Dir)
		}
	}
	if cfg.Linkages == nil {
		cfg.Linkages = make(map[string]float64)
	}

	geo, err := geometry.New(cfg.Geometry)
	if err != nil {
		return nil, fmt.Errorf("geometry: %w", err)
	}
	cfg.geo = geo

	for _, p := range []struct {
		name string
		port *odrive.PortConfig
	}{{"left", &cfg.ODrive.Left}, {"right", &cfg.ODrive.Right}} {
		if p.port.Port == "" && !cfg.Defaults.MockDriver {
			return nil, fmt.Errorf("odrive.%s.port is required unless defaults.mock_driver is set", p.name)
		}
		if p.port.Baud <= 0 {
			p.port.Baud = 115200
		}
		if p.port.ReadTimeoutMS <= 0 {
			p.port.ReadTimeoutMS = 100
		}
	}

	if cfg.Gains.PosGain <= 0 {
		cfg.Gains.PosGain = 250
	}
	if cfg.Gains.VelGain <= 0 {
		cfg.Gains.VelGain = 1
	}
	if cfg.Gains.Bandwidth <= 0 {
		cfg.Gains.Bandwidth = 500
	}
	if cfg.Defaults.TelemetryHz <= 0 {
		cfg.Defaults.TelemetryHz = 100
	}
	if cfg.Defaults.DebugLevel < 0 || cfg.Defaults.DebugLevel > 4 {
		return nil, fmt.Errorf("debug_level must be between 0 and 4, got %d", cfg.Defaults.DebugLevel)
	}
	if cfg.Power.EnablePin < 0 || cfg.Power.EstopPin < 0 {
		return nil, fmt.Errorf("power pins must be >= 0")
	}

	return &cfg, nil
}

// FingerGeometry returns the validated finger geometry built from Geometry.
func (c *Config) FingerGeometry() *geometry.Geometry { return c.geo }

// Calibration returns the actuator transform for name (e.g. "R0").
func (c *Config) Calibration(name string) actuator.Calibration {
	m := c.Motors[name]
	return actuator.Calibration{Offset: m.Offset, Direction: m.Dir, LinkOffset: c.Linkages[name]}
}

// TelemetryPeriod returns the interval between telemetry samples.
func (c *Config) TelemetryPeriod() time.Duration {
	return time.Duration(float64(time.Second) / c.Defaults.TelemetryHz)
}
