package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a configuration file.
const MaxConfigFileBytes = 64 * 1024

// SensorConfig describes the serial link to the inclinometer.
type SensorConfig struct {
	Device        string `yaml:"device"`          // e.g., "/dev/ttyUSB0"
	Baud          int    `yaml:"baud"`            // default 115200
	ReadTimeoutMs int    `yaml:"read_timeout_ms"` // 0 = blocking reads
}

// MotorConfig holds the two direction pins of one H-bridge channel (BCM).
type MotorConfig struct {
	ForwardPin  int `yaml:"forward_pin"`  // elevation up / azimuth clockwise
	BackwardPin int `yaml:"backward_pin"` // elevation down / azimuth counter-clockwise
}

// HomeSwitchConfig describes the azimuth limit switch (active LOW, pull-up).
type HomeSwitchConfig struct {
	Pin             int `yaml:"pin"`
	DebounceSamples int `yaml:"debounce_samples"` // consecutive equal reads, default 3
}

// TrackingConfig bounds every tracking move.
type TrackingConfig struct {
	AzimuthTolerance   float64 `yaml:"azimuth_tolerance"`   // degrees
	ElevationTolerance float64 `yaml:"elevation_tolerance"` // degrees
	StepSize           float64 `yaml:"step_size"`           // degrees per tick (simulation)
	MaxTicks           int     `yaml:"max_ticks"`           // driving ticks before a stall fault
	MotorTimeoutS      int     `yaml:"motor_timeout_s"`     // wall-clock bound of one move
	ElevationMin       float64 `yaml:"elevation_min"`
	ElevationMax       float64 `yaml:"elevation_max"`
	TickMs             int     `yaml:"tick_ms"` // control loop period
}

// HomingConfig bounds the homing sequence.
type HomingConfig struct {
	TimeoutS   int `yaml:"timeout_s"`
	BackoffMs  int `yaml:"backoff_ms"`
	SettleMs   int `yaml:"settle_ms"`
	PulseOnMs  int `yaml:"pulse_on_ms"`
	PulseOffMs int `yaml:"pulse_off_ms"`
}

// DefaultsConfig contains generic runtime parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // simulate motors, switch and sensor (true=dev/test)
	WebPort    int  `yaml:"web_port"`    // status server port used by -web without a value
}

// Config aggregates all application configuration.
type Config struct {
	Sensor         SensorConfig     `yaml:"sensor"`
	AzimuthMotor   MotorConfig      `yaml:"azimuth_motor"`
	ElevationMotor MotorConfig      `yaml:"elevation_motor"`
	HomeSwitch     HomeSwitchConfig `yaml:"home_switch"`
	Tracking       TrackingConfig   `yaml:"tracking"`
	Homing         HomingConfig     `yaml:"homing"`
	Defaults       DefaultsConfig   `yaml:"defaults"`
}

// ValidateConfigPath accepts only "<...>/configs/<name>.yaml" paths without
// parent directory references.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	clean := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(clean), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not reference parent directories", path)
		}
	}
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file, applies defaults and returns the configuration.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Sensor.Baud <= 0 {
		c.Sensor.Baud = 115200
	}
	if c.HomeSwitch.DebounceSamples <= 0 {
		c.HomeSwitch.DebounceSamples = 3
	}

	t := &c.Tracking
	if t.AzimuthTolerance <= 0 {
		t.AzimuthTolerance = 1.0
	}
	if t.ElevationTolerance <= 0 {
		t.ElevationTolerance = 1.0
	}
	if t.StepSize <= 0 {
		t.StepSize = 0.5
	}
	if t.MaxTicks <= 0 {
		t.MaxTicks = 100
	}
	if t.MotorTimeoutS <= 0 {
		t.MotorTimeoutS = 120
	}
	if t.ElevationMin == 0 && t.ElevationMax == 0 {
		t.ElevationMax = 90
	}
	if t.TickMs <= 0 {
		t.TickMs = 100
	}

	h := &c.Homing
	if h.TimeoutS <= 0 {
		h.TimeoutS = 180
	}
	if h.BackoffMs <= 0 {
		h.BackoffMs = 2000
	}
	if h.SettleMs <= 0 {
		h.SettleMs = 500
	}
	if h.PulseOnMs <= 0 {
		h.PulseOnMs = 100
	}
	if h.PulseOffMs <= 0 {
		h.PulseOffMs = 100
	}

	if c.Defaults.WebPort <= 0 {
		c.Defaults.WebPort = 8080
	}
}

func (c *Config) validate() error {
	if !c.Defaults.MockGPIO && c.Sensor.Device == "" {
		return fmt.Errorf("sensor.device is required unless defaults.mock_gpio is set")
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	if c.Defaults.WebPort > 65535 {
		return fmt.Errorf("web_port must be <= 65535, got %d", c.Defaults.WebPort)
	}

	pins := map[int]string{}
	for _, p := range []struct {
		name string
		pin  int
	}{
		{"azimuth_motor.forward_pin", c.AzimuthMotor.ForwardPin},
		{"azimuth_motor.backward_pin", c.AzimuthMotor.BackwardPin},
		{"elevation_motor.forward_pin", c.ElevationMotor.ForwardPin},
		{"elevation_motor.backward_pin", c.ElevationMotor.BackwardPin},
		{"home_switch.pin", c.HomeSwitch.Pin},
	} {
		if p.pin < 1 || p.pin > 27 {
			return fmt.Errorf("%s must be a BCM pin between 1 and 27, got %d", p.name, p.pin)
		}
		if other, ok := pins[p.pin]; ok {
			return fmt.Errorf("%s and %s both use pin %d", other, p.name, p.pin)
		}
		pins[p.pin] = p.name
	}

	t := c.Tracking
	if t.ElevationMin < -90 || t.ElevationMax > 90 || t.ElevationMin >= t.ElevationMax {
		return fmt.Errorf("elevation limits must satisfy -90 <= min < max <= 90, got [%.2f, %.2f]", t.ElevationMin, t.ElevationMax)
	}
	if t.AzimuthTolerance >= 180 || t.ElevationTolerance >= 90 {
		return fmt.Errorf("tolerances out of range (azimuth %.2f, elevation %.2f)", t.AzimuthTolerance, t.ElevationTolerance)
	}
	return nil
}

// SerialReadTimeout returns the sensor read timeout.
func (c *Config) SerialReadTimeout() time.Duration {
	return time.Duration(c.Sensor.ReadTimeoutMs) * time.Millisecond
}

// TickInterval returns the control loop period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Tracking.TickMs) * time.Millisecond
}

// MotorTimeout returns the wall-clock bound of one tracking move.
func (c *Config) MotorTimeout() time.Duration {
	return time.Duration(c.Tracking.MotorTimeoutS) * time.Second
}

// HomingTimeout returns the bound of a whole homing run.
func (c *Config) HomingTimeout() time.Duration {
	return time.Duration(c.Homing.TimeoutS) * time.Second
}

// HomingBackoff returns how long the sequence may try to leave the switch.
func (c *Config) HomingBackoff() time.Duration {
	return time.Duration(c.Homing.BackoffMs) * time.Millisecond
}

// HomingSettle returns how long the switch must stay closed.
func (c *Config) HomingSettle() time.Duration {
	return time.Duration(c.Homing.SettleMs) * time.Millisecond
}

// HomingPulse returns the on and off times of the slow approach.
func (c *Config) HomingPulse() (on, off time.Duration) {
	return time.Duration(c.Homing.PulseOnMs) * time.Millisecond,
		time.Duration(c.Homing.PulseOffMs) * time.Millisecond
}
