package config

import (
	"fmt"
	"time"
)

// Config represents a billsync.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	API      APIConfig     `yaml:"api"`
	Property string        `yaml:"property"`
	History  HistoryConfig `yaml:"history"`
	Adapter  AdapterConfig `yaml:"adapter"`
	LogLevel string        `yaml:"log_level"`
}

// APIConfig holds sync server defaults.
type APIConfig struct {
	BaseURL       string   `yaml:"base_url"`
	Token         string   `yaml:"token"`
	CancelTimeout Duration `yaml:"cancel_timeout"`
}

// HistoryConfig holds sync history storage defaults.
type HistoryConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds completion notification defaults.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	d.Duration = parsed
	return nil
}

// Validate checks enum-valued fields. Empty values are allowed and
// resolved to defaults by the commands.
func (c *Config) Validate() error {
	switch c.History.Backend {
	case "", "fs", "s3":
	default:
		return fmt.Errorf("history.backend: unsupported value %q (must be fs or s3)", c.History.Backend)
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		return fmt.Errorf("adapter.type: unsupported value %q (must be webhook or redis)", c.Adapter.Type)
	}
	if c.Adapter.Type != "" && c.Adapter.URL == "" {
		return fmt.Errorf("adapter.url is required when adapter.type is %s", c.Adapter.Type)
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		return fmt.Errorf("adapter.retries must not be negative, got %d", *c.Adapter.Retries)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level: unsupported value %q", c.LogLevel)
	}
	return nil
}
