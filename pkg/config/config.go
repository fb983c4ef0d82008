// Package config loads and saves the stsjog configuration file.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/gwillem/stsjog/pkg/servo"
	"github.com/gwillem/stsjog/pkg/session"
)

const DefaultConfigFile = "stsjog.json"

// Config holds the tool configuration
type Config struct {
	Port           string       `json:"port"`
	BaudRate       int          `json:"baud_rate,omitempty"`
	TimeoutMs      int          `json:"timeout_ms,omitempty"`
	Scan           ScanConfig   `json:"scan"`
	Motion         MotionConfig `json:"motion"`
	PollIntervalMs int          `json:"poll_interval_ms,omitempty"`
}

// ScanConfig holds the ID range swept by scan
type ScanConfig struct {
	First int `json:"first"`
	Last  int `json:"last"`
}

// MotionConfig holds the default motion parameters for moves
type MotionConfig struct {
	Speed        int `json:"speed"`
	Acceleration int `json:"acceleration"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	return &Config{
		BaudRate:  servo.DefaultBaudRate,
		TimeoutMs: 100,
		Scan: ScanConfig{
			First: servo.DefaultScanRange.First,
			Last:  servo.DefaultScanRange.Last,
		},
		Motion: MotionConfig{
			Speed:        session.DefaultSpeed,
			Acceleration: session.DefaultAcceleration,
		},
		PollIntervalMs: 200,
	}
}

// Load loads configuration from the default config file
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom loads configuration from a specific file. Fields missing from
// the file keep their defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path, falling back to defaults if it does not exist
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := LoadFrom(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Exists returns true if the config file exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Validate checks the configured ranges
func (c *Config) Validate() error {
	var errs []error
	if err := c.ScanRange().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := servo.SpeedRange.Check("speed", c.Motion.Speed); err != nil {
		errs = append(errs, err)
	}
	if err := servo.AccelerationRange.Check("acceleration", c.Motion.Acceleration); err != nil {
		errs = append(errs, err)
	}
	if c.TimeoutMs < 0 {
		errs = append(errs, errors.New("timeout_ms must not be negative"))
	}
	if c.PollIntervalMs <= 0 {
		errs = append(errs, errors.New("poll_interval_ms must be positive"))
	}
	return errors.Join(errs...)
}

// ScanRange returns the configured scan range
func (c *Config) ScanRange() servo.IDRange {
	return servo.IDRange{First: c.Scan.First, Last: c.Scan.Last}
}

// Timeout returns the bus response timeout
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// PollInterval returns the telemetry polling interval
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// BusConfig returns the driver settings for opening a bus
func (c *Config) BusConfig() servo.BusConfig {
	return servo.BusConfig{
		BaudRate: c.BaudRate,
		Timeout:  c.Timeout(),
	}
}
