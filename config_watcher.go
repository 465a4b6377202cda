// config_watcher.go: Configuration hot reload with Argus integration
//
// This file implements the ConfigWatcher struct and its methods. The watcher
// monitors a RuntimeConfig file with Argus, reloads and validates it on
// change, keeps the last known good configuration when a reload fails, and
// maintains an audit trail of configuration events.
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/argus"
)

// ConfigWatcherOptions customizes ConfigWatcher behavior.
type ConfigWatcherOptions struct {
	// PollInterval is how often Argus checks the file for changes.
	PollInterval time.Duration

	// CacheTTL is the Argus stat cache lifetime.
	CacheTTL time.Duration

	// Audit enables the Argus audit trail for configuration events.
	Audit argus.AuditConfig

	// Logger accepts anything NewLogger accepts.
	Logger any

	// OnChange observes every successfully applied configuration,
	// including the initial load.
	OnChange func(*RuntimeConfig)

	// ErrorHandler receives file watching errors; by default they are
	// logged.
	ErrorHandler func(err error, path string)
}

func (o ConfigWatcherOptions) withDefaults() ConfigWatcherOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = time.Second
	}
	return o
}

// ConfigWatcher hot-reloads a RuntimeConfig file.
//
// The watcher loads and applies the file on Start, then watches it for
// changes. A change that fails to load or validate is logged and audited but
// never applied: the previously applied configuration stays current. Start
// and Stop are one-shot; a stopped watcher cannot be restarted.
type ConfigWatcher struct {
	logger Logger

	watcher     *argus.Watcher
	auditLogger *argus.AuditLogger

	configPath string
	current    atomic.Pointer[RuntimeConfig]

	enabled  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
	mutex    sync.Mutex

	options ConfigWatcherOptions
}

// NewConfigWatcher creates a watcher for the configuration file at
// configPath. The watcher does not touch the file until Start.
func NewConfigWatcher(configPath string, opts ConfigWatcherOptions) (*ConfigWatcher, error) {
	if configPath == "" {
		return nil, NewConfigWatcherError("config path must not be empty", nil)
	}
	options := opts.withDefaults()
	logger := NewLogger(options.Logger)

	argusConfig := argus.Config{
		PollInterval:         options.PollInterval,
		CacheTTL:             options.CacheTTL,
		MaxWatchedFiles:      5,
		Audit:                options.Audit,
		OptimizationStrategy: argus.OptimizationSingleEvent,
		ErrorHandler: func(err error, filepath string) {
			if options.ErrorHandler != nil {
				options.ErrorHandler(err, filepath)
			} else {
				logger.Error("config file watching error", "error", err, "file", filepath)
			}
		},
	}

	var auditLogger *argus.AuditLogger
	if options.Audit.Enabled {
		var err error
		auditLogger, err = argus.NewAuditLogger(options.Audit)
		if err != nil {
			return nil, NewConfigWatcherError("failed to create audit logger", err)
		}
	}

	return &ConfigWatcher{
		logger:      logger,
		watcher:     argus.New(argusConfig),
		auditLogger: auditLogger,
		configPath:  configPath,
		options:     options,
	}, nil
}

// Start loads the configuration file, applies it, and begins watching for
// changes. It fails when the initial load fails so callers never run with an
// unvalidated configuration.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	if cw.stopped.Load() {
		return NewConfigWatcherError("config watcher is already stopped", nil)
	}

	cw.mutex.Lock()
	defer cw.mutex.Unlock()

	if !cw.enabled.CompareAndSwap(false, true) {
		return NewConfigWatcherError("config watcher is already running", nil)
	}

	if err := ctx.Err(); err != nil {
		cw.enabled.Store(false)
		return NewConfigWatcherError("context canceled before start", err)
	}

	initial, err := LoadRuntimeConfig(cw.configPath)
	if err != nil {
		cw.enabled.Store(false)
		return NewConfigWatcherError("failed to load initial configuration", err)
	}

	cw.current.Store(initial)
	if cw.options.OnChange != nil {
		cw.options.OnChange(initial)
	}
	cw.auditEvent("configuration_loaded", map[string]any{
		"path":   cw.configPath,
		"source": "initial_load",
	})

	if err := cw.watcher.Watch(cw.configPath, cw.handleChange); err != nil {
		cw.enabled.Store(false)
		return NewConfigWatcherError("failed to watch config file", err)
	}
	if err := cw.watcher.Start(); err != nil {
		cw.enabled.Store(false)
		return NewConfigWatcherError("failed to start config watcher", err)
	}

	cw.logger.Info("configuration watcher started",
		"config_path", cw.configPath,
		"poll_interval", cw.options.PollInterval)
	return nil
}

// Stop halts watching and closes the audit trail. A watcher stops exactly
// once and cannot be restarted afterwards.
func (cw *ConfigWatcher) Stop() error {
	if cw.stopped.Load() {
		return NewConfigWatcherError("config watcher is already stopped", nil)
	}

	var stopErr error
	cw.stopOnce.Do(func() {
		cw.mutex.Lock()
		defer cw.mutex.Unlock()

		if !cw.enabled.CompareAndSwap(true, false) {
			stopErr = NewConfigWatcherError("config watcher is not running", nil)
			return
		}

		cw.stopped.Store(true)

		if err := cw.watcher.Stop(); err != nil {
			stopErr = NewConfigWatcherError("failed to stop config watcher", err)
			return
		}

		if cw.auditLogger != nil {
			if err := cw.auditLogger.Close(); err != nil {
				cw.logger.Warn("failed to close audit logger", "error", err)
			}
		}

		cw.logger.Info("configuration watcher stopped")
	})
	return stopErr
}

// IsRunning reports whether the watcher is actively monitoring the file.
func (cw *ConfigWatcher) IsRunning() bool {
	return cw.enabled.Load()
}

// Current returns the most recently applied configuration, or nil before
// Start.
func (cw *ConfigWatcher) Current() *RuntimeConfig {
	return cw.current.Load()
}

// handleChange reacts to file change events reported by Argus.
func (cw *ConfigWatcher) handleChange(event argus.ChangeEvent) {
	cw.logger.Info("configuration file change detected",
		"path", event.Path,
		"is_create", event.IsCreate,
		"is_delete", event.IsDelete,
		"is_modify", event.IsModify)

	if event.IsDelete {
		cw.logger.Warn("configuration file was deleted, keeping current configuration",
			"path", event.Path)
		cw.auditEvent("configuration_file_deleted", map[string]any{
			"path": event.Path,
		})
		return
	}

	next, err := LoadRuntimeConfig(event.Path)
	if err != nil {
		cw.logger.Error("failed to reload configuration, keeping current configuration",
			"error", err,
			"path", event.Path)
		cw.auditEvent("configuration_reload_failed", map[string]any{
			"path":  event.Path,
			"error": err.Error(),
		})
		return
	}

	cw.current.Store(next)
	cw.auditEvent("configuration_applied", map[string]any{
		"path":   event.Path,
		"source": "hot_reload",
	})
	cw.logger.Info("configuration reloaded", "path", event.Path)

	if cw.options.OnChange != nil {
		cw.options.OnChange(next)
	}
}

// auditEvent records a configuration event when auditing is enabled.
func (cw *ConfigWatcher) auditEvent(eventType string, context map[string]any) {
	if cw.auditLogger != nil {
		cw.auditLogger.LogSecurityEvent(eventType, "Runtime configuration change", context)
	}
}
