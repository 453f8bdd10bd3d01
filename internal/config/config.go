// Package config loads feedwatch settings from an optional YAML file.
// Missing files fall back to defaults, so a bare binary works out of
// the box.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all tunables. Intervals and timeouts are expressed in
// milliseconds in the file.
type Config struct {
	CycleMillis          int    `yaml:"cycle_ms"`
	AppTimeoutMillis     int    `yaml:"app_timeout_ms"`
	DeepTimeoutMillis    int    `yaml:"deep_timeout_ms"`
	ResolveTimeoutMillis int    `yaml:"resolve_timeout_ms"`
	ProcessRefreshCycles int    `yaml:"process_refresh_cycles"`
	LogLevel             string `yaml:"log_level"`
}

func Default() Config {
	return Config{
		CycleMillis:          1000,
		AppTimeoutMillis:     500,
		DeepTimeoutMillis:    1000,
		ResolveTimeoutMillis: 2000,
		ProcessRefreshCycles: 5,
		LogLevel:             "info",
	}
}

// DefaultPath returns ~/.feedwatch.yaml, or just ".feedwatch.yaml" in
// environments without a home directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".feedwatch.yaml"
	}
	return filepath.Join(home, ".feedwatch.yaml")
}

// Load reads the file at path over the defaults. A missing file is not
// an error; malformed YAML is.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.sanitize()
	return cfg, nil
}

// sanitize snaps non-positive values back to their defaults rather
// than letting a typo stall the cycle driver.
func (c *Config) sanitize() {
	def := Default()
	if c.CycleMillis <= 0 {
		c.CycleMillis = def.CycleMillis
	}
	if c.AppTimeoutMillis <= 0 {
		c.AppTimeoutMillis = def.AppTimeoutMillis
	}
	if c.DeepTimeoutMillis <= 0 {
		c.DeepTimeoutMillis = def.DeepTimeoutMillis
	}
	if c.ResolveTimeoutMillis <= 0 {
		c.ResolveTimeoutMillis = def.ResolveTimeoutMillis
	}
	if c.ProcessRefreshCycles <= 0 {
		c.ProcessRefreshCycles = def.ProcessRefreshCycles
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}

func (c Config) CycleInterval() time.Duration {
	return time.Duration(c.CycleMillis) * time.Millisecond
}

func (c Config) AppProbeTimeout() time.Duration {
	return time.Duration(c.AppTimeoutMillis) * time.Millisecond
}

func (c Config) DeepProbeTimeout() time.Duration {
	return time.Duration(c.DeepTimeoutMillis) * time.Millisecond
}

func (c Config) ResolveTimeout() time.Duration {
	return time.Duration(c.ResolveTimeoutMillis) * time.Millisecond
}
