package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"sensormux/internal/adapters/hal"
)

const (
	TransportMemory     = "memory"
	TransportSocketPair = "socketpair"
)

type Config struct {
	Service     ServiceConfig     `yaml:"service"`
	Hardware    hal.Config        `yaml:"hardware"`
	ActivityLog ActivityLogConfig `yaml:"activity_log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Dump        DumpConfig        `yaml:"dump"`
}

type ServiceConfig struct {
	MinPeriod       time.Duration `yaml:"min_period"`
	FallbackPeriod  time.Duration `yaml:"fallback_period"`
	PollBatch       int           `yaml:"poll_batch"`
	Transport       string        `yaml:"transport"`
	ChannelBufBytes int           `yaml:"channel_buffer_bytes"`
}

// ActivityLogConfig points at the Postgres journal for sensor activations.
// An empty conn_string disables the journal.
type ActivityLogConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// DumpConfig gates the diagnostic report endpoint; requests must present the
// token.
type DumpConfig struct {
	Token string `yaml:"token"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Service.MinPeriod == 0 {
		c.Service.MinPeriod = 10 * time.Millisecond
	}
	if c.Service.FallbackPeriod == 0 {
		c.Service.FallbackPeriod = time.Second
	}
	if c.Service.PollBatch == 0 {
		c.Service.PollBatch = 16
	}
	if c.Service.Transport == "" {
		c.Service.Transport = TransportMemory
	}
	if c.Service.ChannelBufBytes == 0 {
		c.Service.ChannelBufBytes = 4096
	}
	if c.ActivityLog.Table == "" {
		c.ActivityLog.Table = "sensor_activity"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}

	c.Hardware.ApplyDefaults()
}

func (c *Config) Validate() error {
	if c.Service.MinPeriod < 0 {
		return fmt.Errorf("service.min_period must not be negative")
	}
	switch c.Service.Transport {
	case TransportMemory, TransportSocketPair:
	default:
		return fmt.Errorf("service.transport must be %q or %q, got %q",
			TransportMemory, TransportSocketPair, c.Service.Transport)
	}
	if err := c.Hardware.Validate(); err != nil {
		return fmt.Errorf("hardware config: %w", err)
	}
	if c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required")
	}
	return nil
}
