// Copyright 2026 The Gauge Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Gauge components.
//
// Configuration is loaded from a single file specified by:
//   - GAUGE_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for the Gauge daemon.
type Config struct {
	// Sampling configures the collection scheduler.
	Sampling SamplingConfig `yaml:"sampling"`

	// History configures the in-memory metric history store.
	History HistoryConfig `yaml:"history"`

	// Feed configures the consumer-facing socket.
	Feed FeedConfig `yaml:"feed"`

	// HardwareDB configures the hardware identification database.
	HardwareDB HardwareDBConfig `yaml:"hardware_db"`

	// GPU configures GPU vendor backends.
	GPU GPUConfig `yaml:"gpu"`

	// Logging configures daemon log output.
	Logging LoggingConfig `yaml:"logging"`
}

// SamplingConfig configures the collection scheduler.
type SamplingConfig struct {
	// Interval is the delay between sampling cycles, as a Go
	// duration string. Default: 1s.
	Interval string `yaml:"interval"`

	// DriverDeadline is how long one driver may run during a cycle
	// before its data is carried forward from the previous cycle and
	// the device is flagged degraded. Default: 500ms. Must be
	// shorter than Interval.
	DriverDeadline string `yaml:"driver_deadline"`

	// ProcessLimit caps how many processes are reported per
	// snapshot, keeping the heaviest CPU consumers. 0 means report
	// every process. Default: 0.
	ProcessLimit int `yaml:"process_limit"`
}

// HistoryConfig configures the in-memory metric history store.
type HistoryConfig struct {
	// Capacity is the number of samples retained per metric. Older
	// samples are evicted first. Default: 720 (12 minutes at the
	// default interval).
	Capacity int `yaml:"capacity"`
}

// FeedConfig configures the consumer-facing socket.
type FeedConfig struct {
	// SocketPath is the Unix socket the feed server listens on.
	// Default: ${XDG_RUNTIME_DIR:-/run}/gauge/feed.sock
	SocketPath string `yaml:"socket_path"`

	// SubscriberQueueDepth is the per-subscriber snapshot queue
	// length. When a slow subscriber falls this far behind, the
	// oldest queued snapshot is dropped. Default: 64.
	SubscriberQueueDepth int `yaml:"subscriber_queue_depth"`

	// Compress enables zstd compression of snapshot payloads on the
	// wire. Default: true.
	Compress bool `yaml:"compress"`
}

// HardwareDBConfig configures the hardware identification database.
type HardwareDBConfig struct {
	// Path is the location of the database file. A missing file is
	// not an error: devices fall back to numeric vendor:model names.
	// Default: /usr/share/gauge/gauge.hwdb.
	Path string `yaml:"path"`
}

// GPUConfig configures GPU vendor backends. Disabling a vendor skips
// its probe entirely, even when matching hardware is present.
type GPUConfig struct {
	EnableAMD    bool `yaml:"enable_amd"`
	EnableNVIDIA bool `yaml:"enable_nvidia"`
	EnableIntel  bool `yaml:"enable_intel"`
}

// LoggingConfig configures daemon log output.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	// Default: info.
	Level string `yaml:"level"`
}

// Default returns the default configuration. These defaults are the
// base that the config file merges over; gauged runs with them
// unmodified when no config file is given.
func Default() *Config {
	return &Config{
		Sampling: SamplingConfig{
			Interval:       "1s",
			DriverDeadline: "500ms",
			ProcessLimit:   0,
		},
		History: HistoryConfig{
			Capacity: 720,
		},
		Feed: FeedConfig{
			SocketPath:           "${XDG_RUNTIME_DIR:-/run}/gauge/feed.sock",
			SubscriberQueueDepth: 64,
			Compress:             true,
		},
		HardwareDB: HardwareDBConfig{
			Path: "/usr/share/gauge/gauge.hwdb",
		},
		GPU: GPUConfig{
			EnableAMD:    true,
			EnableNVIDIA: true,
			EnableIntel:  true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the GAUGE_CONFIG environment
// variable. Unlike LoadFile, the variable being unset is not an
// error: gauged is expected to run with defaults on most machines.
func Load() (*Config, error) {
	configPath := os.Getenv("GAUGE_CONFIG")
	if configPath == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, cfg.Validate()
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment
// variables do not override config values; the only expansion
// performed is ${VAR} and ${VAR:-default} in paths for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// configured paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME":            os.Getenv("HOME"),
		"XDG_RUNTIME_DIR": os.Getenv("XDG_RUNTIME_DIR"),
	}

	c.Feed.SocketPath = expandVars(c.Feed.SocketPath, vars)
	c.HardwareDB.Path = expandVars(c.HardwareDB.Path, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	interval, err := time.ParseDuration(c.Sampling.Interval)
	if err != nil {
		errs = append(errs, fmt.Errorf("sampling.interval: %w", err))
	} else if interval <= 0 {
		errs = append(errs, fmt.Errorf("sampling.interval must be positive, got %s", interval))
	}

	deadline, err := time.ParseDuration(c.Sampling.DriverDeadline)
	if err != nil {
		errs = append(errs, fmt.Errorf("sampling.driver_deadline: %w", err))
	} else if deadline <= 0 {
		errs = append(errs, fmt.Errorf("sampling.driver_deadline must be positive, got %s", deadline))
	} else if interval > 0 && deadline >= interval {
		errs = append(errs, fmt.Errorf("sampling.driver_deadline (%s) must be shorter than sampling.interval (%s)", deadline, interval))
	}

	if c.Sampling.ProcessLimit < 0 {
		errs = append(errs, fmt.Errorf("sampling.process_limit must be >= 0, got %d", c.Sampling.ProcessLimit))
	}

	if c.History.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("history.capacity must be positive, got %d", c.History.Capacity))
	}

	if c.Feed.SocketPath == "" {
		errs = append(errs, fmt.Errorf("feed.socket_path is required"))
	}
	if c.Feed.SubscriberQueueDepth <= 0 {
		errs = append(errs, fmt.Errorf("feed.subscriber_queue_depth must be positive, got %d", c.Feed.SubscriberQueueDepth))
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SamplingInterval returns the parsed sampling interval. Call only
// after Validate has succeeded.
func (c *Config) SamplingInterval() time.Duration {
	d, _ := time.ParseDuration(c.Sampling.Interval)
	return d
}

// DriverDeadline returns the parsed per-driver deadline. Call only
// after Validate has succeeded.
func (c *Config) DriverDeadline() time.Duration {
	d, _ := time.ParseDuration(c.Sampling.DriverDeadline)
	return d
}

// EnsureSocketDir creates the directory holding the feed socket.
func (c *Config) EnsureSocketDir() error {
	dir := filepath.Dir(c.Feed.SocketPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}
