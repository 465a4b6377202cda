// config.go: Runtime options and file-based configuration
//
// This file defines the option structs consumed by the executor, health
// checks, the monitor and the shutdown controller, along with RuntimeConfig,
// the file-loadable form. Configuration files may be JSON or YAML; the
// format is detected from the path.
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultHealthCheckTimeout bounds a single database probe.
	DefaultHealthCheckTimeout = 5000 * time.Millisecond

	// DefaultMonitorInterval is the period between background health checks.
	DefaultMonitorInterval = 30 * time.Second

	// DefaultShutdownTimeout bounds the whole teardown sequence.
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultSlowQueryThreshold is the latency above which the query tracker
	// counts a query as slow.
	DefaultSlowQueryThreshold = 100 * time.Millisecond

	// maxConfigFileSize rejects runaway configuration files before parsing.
	maxConfigFileSize = 10 * 1024 * 1024
)

// Options configures an Executor.
type Options struct {
	// Logger receives lifecycle and query-path events; nil disables logging.
	Logger Logger

	// HealthCheckTimeout bounds probes run through Executor.CheckHealth.
	HealthCheckTimeout time.Duration

	// ShutdownTimeout bounds the teardown sequence run by Destroy.
	ShutdownTimeout time.Duration

	// OnShutdown runs first during Destroy, before plugin teardown.
	OnShutdown func(ctx context.Context) error
}

func (o *Options) withDefaults() *Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.Logger == nil {
		out.Logger = DefaultLogger()
	}
	if out.HealthCheckTimeout <= 0 {
		out.HealthCheckTimeout = DefaultHealthCheckTimeout
	}
	if out.ShutdownTimeout <= 0 {
		out.ShutdownTimeout = DefaultShutdownTimeout
	}
	return &out
}

// HealthCheckOptions configures a single CheckDatabaseHealth call.
type HealthCheckOptions struct {
	// Timeout bounds the probe; DefaultHealthCheckTimeout when unset.
	Timeout time.Duration

	// Logger receives probe failures and completion events.
	Logger Logger

	// QueryStats overrides the connection's own query statistics source,
	// letting interception-based trackers feed the health report.
	QueryStats QueryStats
}

func (o *HealthCheckOptions) withDefaults() *HealthCheckOptions {
	out := HealthCheckOptions{}
	if o != nil {
		out = *o
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultHealthCheckTimeout
	}
	if out.Logger == nil {
		out.Logger = DefaultLogger()
	}
	return &out
}

// ShutdownOptions configures a ShutdownController.
type ShutdownOptions struct {
	// Timeout bounds the whole teardown sequence; DefaultShutdownTimeout
	// when unset.
	Timeout time.Duration

	// OnShutdown runs before plugin teardown and connection close.
	OnShutdown func(ctx context.Context) error

	// Logger receives teardown progress and failures.
	Logger Logger
}

func (o *ShutdownOptions) withDefaults() *ShutdownOptions {
	out := ShutdownOptions{}
	if o != nil {
		out = *o
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultShutdownTimeout
	}
	if out.Logger == nil {
		out.Logger = DefaultLogger()
	}
	return &out
}

// MonitorOptions configures a HealthMonitor.
type MonitorOptions struct {
	// Interval is the period between checks; DefaultMonitorInterval when
	// unset.
	Interval time.Duration

	// Timeout bounds each individual probe.
	Timeout time.Duration

	// Logger receives monitor lifecycle and state transition events.
	Logger Logger

	// QueryStats feeds query statistics into each result.
	QueryStats QueryStats

	// OnResult observes every check result.
	OnResult func(HealthCheckResult)

	// OnStateChange fires when consecutive checks disagree on the overall
	// state, including the transition out of StateUnknown on the first
	// check.
	OnStateChange func(previous, current HealthState)
}

func (o *MonitorOptions) withDefaults() *MonitorOptions {
	out := MonitorOptions{}
	if o != nil {
		out = *o
	}
	if out.Interval <= 0 {
		out.Interval = DefaultMonitorInterval
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultHealthCheckTimeout
	}
	if out.Logger == nil {
		out.Logger = DefaultLogger()
	}
	return &out
}

// RuntimeConfig is the file-loadable configuration. Durations are carried as
// integer milliseconds so JSON and YAML files stay unit-explicit.
type RuntimeConfig struct {
	Health   HealthConfig   `json:"health" yaml:"health"`
	Shutdown ShutdownConfig `json:"shutdown" yaml:"shutdown"`
	Tracker  TrackerConfig  `json:"tracker" yaml:"tracker"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
}

// HealthConfig tunes health checking.
type HealthConfig struct {
	TimeoutMs  int64 `json:"timeout_ms" yaml:"timeout_ms"`
	IntervalMs int64 `json:"interval_ms" yaml:"interval_ms"`
}

// ShutdownConfig tunes graceful teardown.
type ShutdownConfig struct {
	TimeoutMs int64 `json:"timeout_ms" yaml:"timeout_ms"`
}

// TrackerConfig tunes the query tracker plugin.
type TrackerConfig struct {
	Enabled     bool  `json:"enabled" yaml:"enabled"`
	SlowQueryMs int64 `json:"slow_query_ms" yaml:"slow_query_ms"`
}

// MetricsConfig tunes Prometheus metric export.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace" yaml:"namespace"`
}

// DefaultRuntimeConfig returns a configuration with every default applied.
func DefaultRuntimeConfig() *RuntimeConfig {
	return &RuntimeConfig{
		Health: HealthConfig{
			TimeoutMs:  DefaultHealthCheckTimeout.Milliseconds(),
			IntervalMs: DefaultMonitorInterval.Milliseconds(),
		},
		Shutdown: ShutdownConfig{
			TimeoutMs: DefaultShutdownTimeout.Milliseconds(),
		},
		Tracker: TrackerConfig{
			Enabled:     true,
			SlowQueryMs: DefaultSlowQueryThreshold.Milliseconds(),
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "kysera",
		},
	}
}

// Validate rejects configurations that cannot be applied.
func (c *RuntimeConfig) Validate() error {
	if c.Health.TimeoutMs < 0 {
		return NewConfigValidationError(
			fmt.Sprintf("health.timeout_ms must not be negative, got %d", c.Health.TimeoutMs))
	}
	if c.Health.IntervalMs < 0 {
		return NewConfigValidationError(
			fmt.Sprintf("health.interval_ms must not be negative, got %d", c.Health.IntervalMs))
	}
	if c.Shutdown.TimeoutMs < 0 {
		return NewConfigValidationError(
			fmt.Sprintf("shutdown.timeout_ms must not be negative, got %d", c.Shutdown.TimeoutMs))
	}
	if c.Tracker.SlowQueryMs < 0 {
		return NewConfigValidationError(
			fmt.Sprintf("tracker.slow_query_ms must not be negative, got %d", c.Tracker.SlowQueryMs))
	}
	return nil
}

// ExecutorOptions maps the configuration onto executor options.
func (c *RuntimeConfig) ExecutorOptions(logger Logger) *Options {
	return &Options{
		Logger:             logger,
		HealthCheckTimeout: time.Duration(c.Health.TimeoutMs) * time.Millisecond,
		ShutdownTimeout:    time.Duration(c.Shutdown.TimeoutMs) * time.Millisecond,
	}
}

// MonitorOptions maps the configuration onto health monitor options.
func (c *RuntimeConfig) MonitorOptions(logger Logger) *MonitorOptions {
	return &MonitorOptions{
		Interval: time.Duration(c.Health.IntervalMs) * time.Millisecond,
		Timeout:  time.Duration(c.Health.TimeoutMs) * time.Millisecond,
		Logger:   logger,
	}
}

// LoadRuntimeConfig reads, parses and validates a configuration file. The
// format is detected from the file extension; JSON and YAML are supported.
func LoadRuntimeConfig(path string) (*RuntimeConfig, error) {
	raw, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultRuntimeConfig()
	if err := parseRuntimeConfig(raw, path, config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// readConfigFile reads the file after checking it is a regular file of
// reasonable size.
func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, NewConfigNotFoundError(path, err)
	}
	if !info.Mode().IsRegular() || info.Size() > maxConfigFileSize {
		return nil, NewConfigValidationError("config file invalid or too large")
	}

	raw, err := os.ReadFile(path) // #nosec G304 -- path validated above
	if err != nil {
		return nil, NewConfigNotFoundError(path, err)
	}
	if len(raw) == 0 {
		return nil, NewConfigValidationError("config file is empty")
	}
	return raw, nil
}

// parseRuntimeConfig decodes raw into config based on the detected format.
func parseRuntimeConfig(raw []byte, path string, config *RuntimeConfig) error {
	var err error
	switch format := argus.DetectFormat(path); format {
	case argus.FormatJSON:
		err = json.Unmarshal(raw, config)
	case argus.FormatYAML:
		err = yaml.Unmarshal(raw, config)
	default:
		return NewConfigParseError(path,
			fmt.Errorf("unsupported config format: %s", format.String()))
	}
	if err != nil {
		return NewConfigParseError(path, err)
	}
	return nil
}
