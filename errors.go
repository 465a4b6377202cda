// errors.go: structured error definitions for the kysera composition layer
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

import (
	"strings"

	"github.com/agilira/go-errors"
)

// Error codes for the kysera composition layer.
//
// Hook errors raised during interception carry no code here on purpose: they
// propagate to the caller verbatim, never wrapped, so plugins keep full
// control over their own error surface.
const (
	// Validation errors (1100-1199): bad plugin set or arguments,
	// surfaced synchronously at construction, never retried.
	ErrCodeDuplicatePluginName = "VALIDATION_1101"
	ErrCodeMissingDependency   = "VALIDATION_1102"
	ErrCodeDependencyCycle     = "VALIDATION_1103"
	ErrCodeInvalidPluginName   = "VALIDATION_1104"
	ErrCodeSyncInitUnsupported = "VALIDATION_1105"
	ErrCodeNilConnection       = "VALIDATION_1106"
	ErrCodeInvalidHook         = "VALIDATION_1107"

	// Initialization errors (1200-1299): plugin init failures during
	// executor construction, surfaced after rollback.
	ErrCodePluginInitFailed       = "INIT_1201"
	ErrCodeInitRollbackIncomplete = "INIT_1202"

	// Health check errors (1300-1399): never returned from a check, only
	// embedded in unhealthy results.
	ErrCodeHealthProbeFailed  = "HEALTH_1301"
	ErrCodeHealthProbeTimeout = "HEALTH_1302"

	// Shutdown errors (1400-1499): teardown failures reported by the
	// shutdown controller after logging.
	ErrCodeShutdownHookFailed     = "SHUTDOWN_1401"
	ErrCodeShutdownTeardownFailed = "SHUTDOWN_1402"
	ErrCodeShutdownCloseFailed    = "SHUTDOWN_1403"

	// Configuration errors (1500-1599)
	ErrCodeConfigNotFound        = "CONFIG_1501"
	ErrCodeConfigParseError      = "CONFIG_1502"
	ErrCodeConfigValidationError = "CONFIG_1503"
	ErrCodeConfigWatcherError    = "CONFIG_1504"

	// Executor runtime errors (1600-1699)
	ErrCodeExecutorDestroyed = "EXEC_1601"
	ErrCodeTxHandleInvalid   = "EXEC_1602"
	ErrCodeUnknownMethod     = "EXEC_1603"
	ErrCodeTxShortCircuit    = "EXEC_1604"
	ErrCodeNestedTransaction = "EXEC_1605"
)

// Validation error constructors

func NewDuplicatePluginNameError(name string) *errors.Error {
	return errors.New(ErrCodeDuplicatePluginName, "Duplicate plugin name").
		WithUserMessage("Plugin names must be unique within a registered set").
		WithContext("plugin_name", name).
		WithSeverity("error")
}

func NewMissingDependencyError(plugin, dependency string) *errors.Error {
	return errors.New(ErrCodeMissingDependency, "Missing plugin dependency").
		WithUserMessage("A declared dependency is absent from the registered plugin set").
		WithContext("plugin_name", plugin).
		WithContext("dependency", dependency).
		WithSeverity("error")
}

func NewDependencyCycleError(remaining []string) *errors.Error {
	return errors.New(ErrCodeDependencyCycle, "Plugin dependency cycle detected").
		WithUserMessage("Plugin dependencies must form an acyclic graph").
		WithContext("unresolved_plugins", strings.Join(remaining, ", ")).
		WithSeverity("error")
}

func NewInvalidPluginNameError(index int) *errors.Error {
	return errors.New(ErrCodeInvalidPluginName, "Invalid plugin name").
		WithUserMessage("Plugin name is required and cannot be empty").
		WithContext("registration_index", index).
		WithSeverity("error")
}

func NewSyncInitUnsupportedError(name string) *errors.Error {
	return errors.New(ErrCodeSyncInitUnsupported, "Plugin requires blocking initialization").
		WithUserMessage("NewExecutorSync cannot run plugins with context-aware init; use NewExecutor").
		WithContext("plugin_name", name).
		WithSeverity("error")
}

func NewNilConnectionError() *errors.Error {
	return errors.New(ErrCodeNilConnection, "Connection is required").
		WithUserMessage("A non-nil connection must be provided").
		WithSeverity("error")
}

func NewInvalidHookError(plugin string, method QueryMethod) *errors.Error {
	return errors.New(ErrCodeInvalidHook, "Invalid interception hook").
		WithUserMessage("Hooks must name an intercepted method and carry a non-nil function").
		WithContext("plugin_name", plugin).
		WithContext("method", string(method)).
		WithSeverity("error")
}

// Initialization error constructors

func NewPluginInitError(name string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodePluginInitFailed, "Plugin initialization failed").
		WithUserMessage("A plugin failed to initialize; already-initialized plugins were rolled back").
		WithContext("plugin_name", name).
		WithSeverity("error")
}

func NewInitRollbackIncompleteError(name string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeInitRollbackIncomplete, "Rollback teardown failed").
		WithUserMessage("A plugin's teardown failed while rolling back a failed construction").
		WithContext("plugin_name", name).
		WithSeverity("warning")
}

// Health check error constructors. These values never escape a check call;
// their messages populate HealthCheckResult.Errors.

func NewHealthProbeError(cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeHealthProbeFailed, "Database probe failed").
		WithUserMessage("The health probe query returned an error").
		WithSeverity("error").
		AsRetryable()
}

func NewHealthProbeTimeoutError(timeoutMs int64) *errors.Error {
	return errors.New(ErrCodeHealthProbeTimeout, "Database probe timed out").
		WithUserMessage("The health probe did not complete before its deadline").
		WithContext("timeout_ms", timeoutMs).
		WithSeverity("error").
		AsRetryable()
}

// Shutdown error constructors

func NewShutdownHookError(cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeShutdownHookFailed, "Shutdown hook failed").
		WithUserMessage("The user-supplied onShutdown hook returned an error; later teardown steps still ran").
		WithSeverity("error")
}

func NewShutdownTeardownError(name string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeShutdownTeardownFailed, "Plugin teardown failed").
		WithUserMessage("A registered teardown hook returned an error during shutdown").
		WithContext("plugin_name", name).
		WithSeverity("error")
}

func NewShutdownCloseError(cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeShutdownCloseFailed, "Connection close failed").
		WithUserMessage("The underlying connection failed to close cleanly").
		WithSeverity("error")
}

// Configuration error constructors

func NewConfigNotFoundError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigNotFound, "Configuration file not found").
		WithUserMessage("The configuration file could not be read").
		WithContext("path", path).
		WithSeverity("error")
}

func NewConfigParseError(path string, cause error) *errors.Error {
	return errors.Wrap(cause, ErrCodeConfigParseError, "Configuration parse failed").
		WithUserMessage("The configuration file is not valid JSON or YAML").
		WithContext("path", path).
		WithSeverity("error")
}

func NewConfigValidationError(detail string) *errors.Error {
	return errors.New(ErrCodeConfigValidationError, "Configuration validation failed").
		WithUserMessage(detail).
		WithSeverity("error")
}

func NewConfigWatcherError(detail string, cause error) *errors.Error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeConfigWatcherError, "Configuration watcher error").
			WithUserMessage(detail).
			WithSeverity("error")
	}
	return errors.New(ErrCodeConfigWatcherError, "Configuration watcher error").
		WithUserMessage(detail).
		WithSeverity("error")
}

// Executor runtime error constructors

func NewExecutorDestroyedError() *errors.Error {
	return errors.New(ErrCodeExecutorDestroyed, "Executor already destroyed").
		WithUserMessage("This executor has been shut down and cannot run queries").
		WithSeverity("error")
}

func NewTxHandleInvalidError() *errors.Error {
	return errors.New(ErrCodeTxHandleInvalid, "Transaction handle expired").
		WithUserMessage("Transaction sub-handles are only valid inside their transaction callback").
		WithSeverity("error")
}

func NewUnknownMethodError(method QueryMethod) *errors.Error {
	return errors.New(ErrCodeUnknownMethod, "Unknown query method").
		WithUserMessage("Queries must target one of the intercepted entry points").
		WithContext("method", string(method)).
		WithSeverity("error")
}

func NewTxShortCircuitError() *errors.Error {
	return errors.New(ErrCodeTxShortCircuit, "Transaction start was short-circuited").
		WithUserMessage("A transaction hook returned without continuing, so no transaction was opened").
		WithSeverity("error")
}

func NewNestedTransactionError() *errors.Error {
	return errors.New(ErrCodeNestedTransaction, "Nested transactions are not supported").
		WithUserMessage("Run nested work on the existing transaction handle instead of opening another transaction").
		WithSeverity("error")
}
