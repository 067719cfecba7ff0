package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/cjeanneret/ddh/internal/hw/actuator"
	"github.com/cjeanneret/ddh/internal/hw/odrive"
	"github.com/cjeanneret/ddh/internal/hw/power"
	"github.com/cjeanneret/ddh/internal/logic/geometry"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	// Create a real configs/ directory so filepath.Abs resolves correctly.
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
	if err := ValidateConfigPath(filepath.Join("configs", "default.yaml")); err != nil {
		t.Errorf("relative configs/default.yaml: %v", err)
	}
}

func TestValidateConfigPath_Invalid(t *testing.T) {
	cases := []struct {
		name string
		path string
	}{
		{"empty", ""},
		{"traversal", "../../etc/passwd"},
		{"traversal_through_configs", "configs/../../../etc/shadow"},
		{"dotdot_back_into_configs", "configs/../configs/default.yaml"},
		{"json", "configs/default.json"},
		{"yml", "configs/default.yml"},
		{"no_extension", "configs/default"},
		{"other_dir", "other/default.yaml"},
		{"bare_file", "default.yaml"},
		{"absolute_outside", "/tmp/default.yaml"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateConfigPath(tc.path); err == nil {
				t.Errorf("expected error for %q, got nil", tc.path)
			}
		})
	}
}

func TestValidateConfigPath_SpecialChars(t *testing.T) {
	cfgDir := filepath.Join(t.TempDir(), "configs")
	for _, name := range []string{"con fig.yaml", "café.yaml"} {
		if err := ValidateConfigPath(filepath.Join(cfgDir, name)); err != nil {
			t.Errorf("unexpected error for %q: %v", name, err)
		}
	}
}

func TestValidateConfigPath_VeryLongPath(t *testing.T) {
	long := "configs/" + strings.Repeat("a", 1000) + ".yaml"
	// Must not panic.
	_ = ValidateConfigPath(long)
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgDir := filepath.Join(t.TempDir(), "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
odrive:
  left:
    port: /dev/ttyACM0
    baud: 921600
    read_timeout_ms: 50
  right:
    port: /dev/ttyACM1
motors:
  L0: {offset: 0.125, dir: -1}
  L1: {offset: -0.5, dir: 1}
  R0: {offset: 0.0, dir: 1}
  R1: {offset: 1.25, dir: -1}
linkages:
  L0: 20
  R1: -15.5
geometry:
  l1: 50
  l2: 30
  l3: 40
  beta: 150
  gamma: 110
  r_min_offset: 1
  r_max_offset: 2
gains:
  pos_gain: 100
power:
  enable_pin: 17
  estop_pin: 27
defaults:
  debug_level: 2
  telemetry_hz: 50
`

func TestLoad_ValidFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantODrive := ODriveConfig{
		Left:  odrive.PortConfig{Port: "/dev/ttyACM0", Baud: 921600, ReadTimeoutMS: 50},
		Right: odrive.PortConfig{Port: "/dev/ttyACM1", Baud: 115200, ReadTimeoutMS: 100},
	}
	if diff := cmp.Diff(wantODrive, cfg.ODrive); diff != "" {
		t.Errorf("odrive mismatch (-want +got):\n%s", diff)
	}

	wantParams := geometry.Params{L1: 50, L2: 30, L3: 40, Beta: 150, Gamma: 110, RMinOffset: 1, RMaxOffset: 2}
	if diff := cmp.Diff(wantParams, cfg.Geometry); diff != "" {
		t.Errorf("geometry mismatch (-want +got):\n%s", diff)
	}
	if cfg.FingerGeometry() == nil || cfg.FingerGeometry().RMax() != 78 {
		t.Errorf("FingerGeometry() not built from params: %+v", cfg.FingerGeometry())
	}

	wantGains := odrive.Gains{PosGain: 100, VelGain: 1, Bandwidth: 500}
	if diff := cmp.Diff(wantGains, cfg.Gains); diff != "" {
		t.Errorf("gains mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(power.Config{EnablePin: 17, EstopPin: 27}, cfg.Power); diff != "" {
		t.Errorf("power mismatch (-want +got):\n%s", diff)
	}
	if cfg.Defaults.DebugLevel != 2 {
		t.Errorf("debug_level = %d, want 2", cfg.Defaults.DebugLevel)
	}
	if got := cfg.TelemetryPeriod(); got != 20*time.Millisecond {
		t.Errorf("TelemetryPeriod() = %v, want 20ms", got)
	}
}

func TestConfig_Calibration(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatal(err)
	}
	cases := map[string]actuator.Calibration{
		"L0": {Offset: 0.125, Direction: -1, LinkOffset: 20},
		"L1": {Offset: -0.5, Direction: 1, LinkOffset: 0},
		"R1": {Offset: 1.25, Direction: -1, LinkOffset: -15.5},
	}
	for name, want := range cases {
		if diff := cmp.Diff(want, cfg.Calibration(name)); diff != "" {
			t.Errorf("Calibration(%s) mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	yaml := `
motors:
  L0: {dir: 1}
  L1: {dir: 1}
  R0: {dir: 1}
  R1: {dir: 1}
geometry: {l1: 50, l2: 30, l3: 40, beta: 150, gamma: 110}
defaults:
  mock_driver: true
`
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ODrive.Left.Baud != 115200 || cfg.ODrive.Right.ReadTimeoutMS != 100 {
		t.Errorf("serial defaults = %+v", cfg.ODrive)
	}
	if diff := cmp.Diff(odrive.Gains{PosGain: 250, VelGain: 1, Bandwidth: 500}, cfg.Gains); diff != "" {
		t.Errorf("gain defaults mismatch (-want +got):\n%s", diff)
	}
	if cfg.Defaults.TelemetryHz != 100 {
		t.Errorf("telemetry_hz default = %v, want 100", cfg.Defaults.TelemetryHz)
	}
	if cfg.Linkages == nil {
		t.Error("linkages map is nil")
	}
}

func TestLoad_Invalid(t *testing.T) {
	const motors = `
motors:
  L0: {dir: 1}
  L1: {dir: 1}
  R0: {dir: 1}
  R1: {dir: 1}
`
	const geo = `
geometry: {l1: 50, l2: 30, l3: 40, beta: 150, gamma: 110}
`
	const mock = `
defaults: {mock_driver: true}
`
	cases := []struct {
		name string
		yaml string
	}{
		{"empty", ""},
		{"invalid_yaml", "{{{{invalid yaml!!!!"},
		{"missing_motor", "motors:\n  L0: {dir: 1}\n" + geo + mock},
		{"bad_dir", strings.Replace(motors, "R1: {dir: 1}", "R1: {dir: 0}", 1) + geo + mock},
		{"missing_port", motors + geo},
		{"debug_level_too_high", motors + geo + "defaults: {mock_driver: true, debug_level: 9}\n"},
		{"negative_pin", motors + geo + mock + "power: {enable_pin: -1}\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Errorf("expected error, got nil")
			}
		})
	}
}

func TestLoad_InvalidGeometryIsConfigurationError(t *testing.T) {
	yaml := `
motors:
  L0: {dir: 1}
  L1: {dir: 1}
  R0: {dir: 1}
  R1: {dir: 1}
geometry: {l1: 20, l2: 30, l3: 40, beta: 150, gamma: 110}
defaults: {mock_driver: true}
`
	_, err := Load(writeConfig(t, yaml))
	if !errors.Is(err, geometry.ErrInvalidGeometry) {
		t.Fatalf("error = %v, want ErrInvalidGeometry", err)
	}
	var cfgErr *geometry.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "l1" {
		t.Errorf("error = %v, want ConfigError on l1", err)
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	data := strings.Repeat("#", MaxConfigFileBytes+1)
	if _, err := Load(writeConfig(t, data)); err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	yaml := validYAML + `
unknown_section:
  foo: bar
`
	if _, err := Load(writeConfig(t, yaml)); err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "nonexistent.yaml")
	if _, err := Load(path); err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

func TestLoad_ShippedDefault(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "default.yaml"))
	if err != nil {
		t.Fatalf("configs/default.yaml: %v", err)
	}
	if !cfg.Defaults.MockDriver {
		t.Error("shipped config should default to the mock driver")
	}
}
