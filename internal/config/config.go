// Package config loads the teslameter CLI configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top level of the configuration file.
type Config struct {
	Instrument InstrumentConfig `yaml:"instrument"`
	Capture    CaptureConfig    `yaml:"capture"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// InstrumentConfig selects the instrument and its serial settings.
type InstrumentConfig struct {
	SerialNumber  string        `yaml:"serial_number"`
	Port          string        `yaml:"port"`
	BaudRate      int           `yaml:"baud_rate"`
	Timeout       time.Duration `yaml:"timeout"`
	NoFlowControl bool          `yaml:"no_flow_control"`
}

// CaptureConfig describes the buffered data session to run.
type CaptureConfig struct {
	Seconds      float64       `yaml:"seconds"`
	SampleRateMs int           `yaml:"sample_rate_ms"`
	Output       string        `yaml:"output"` // file name without .csv, empty writes to stdout
	MaxPolls     int           `yaml:"max_polls"`
	MaxWallTime  time.Duration `yaml:"max_wall_time"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads, defaults and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Instrument.BaudRate == 0 {
		c.Instrument.BaudRate = 115200
	}
	if c.Instrument.Timeout == 0 {
		c.Instrument.Timeout = 2 * time.Second
	}
	if c.Capture.Seconds == 0 {
		c.Capture.Seconds = 1
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Instrument.Timeout < 0 {
		return errors.New("instrument.timeout must not be negative")
	}
	if c.Capture.Seconds < 0 {
		return errors.New("capture.seconds must not be negative")
	}
	if c.Capture.SampleRateMs < 0 || c.Capture.SampleRateMs%10 != 0 {
		return fmt.Errorf("capture.sample_rate_ms must be a non-negative multiple of 10, got %d", c.Capture.SampleRateMs)
	}
	if c.Capture.MaxPolls < 0 {
		return errors.New("capture.max_polls must not be negative")
	}
	return nil
}
