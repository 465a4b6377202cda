// types.go: Common data types and structures for the composition layer
//
// This file contains all shared data type definitions used throughout the
// library: the query representation threaded through interception chains, the
// tri-state health model, connection pool and query metrics, and the shutdown
// state machine values. The separation of these types from the interface
// definitions improves code organization and maintainability.
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

import (
	"encoding/json"
	"fmt"
	"time"
)

// QueryMethod identifies one of the fixed query-builder entry points eligible
// for plugin interception.
//
// Only these methods thread through plugin chains; arbitrary builder methods
// pass through to the underlying connection unmodified. The set is closed and
// enumerated deliberately - interception never reflects over the builder's
// surface.
type QueryMethod string

const (
	// MethodSelect intercepts read queries.
	MethodSelect QueryMethod = "select"

	// MethodInsert intercepts row creation.
	MethodInsert QueryMethod = "insert"

	// MethodUpdate intercepts row mutation.
	MethodUpdate QueryMethod = "update"

	// MethodDelete intercepts row removal.
	MethodDelete QueryMethod = "delete"

	// MethodTransaction intercepts transaction start.
	MethodTransaction QueryMethod = "transaction"
)

// InterceptedMethods returns the closed set of methods eligible for
// interception, in dispatch-table order.
func InterceptedMethods() []QueryMethod {
	return []QueryMethod{MethodSelect, MethodInsert, MethodUpdate, MethodDelete, MethodTransaction}
}

// IsValid reports whether m names one of the intercepted entry points.
func (m QueryMethod) IsValid() bool {
	switch m {
	case MethodSelect, MethodInsert, MethodUpdate, MethodDelete, MethodTransaction:
		return true
	default:
		return false
	}
}

// Query is the in-flight query representation handed to interception hooks.
//
// The Statement payload is opaque to this layer: it belongs to the underlying
// query-builder runtime and only the connection adapter interprets it. Hooks
// in rewrite mode may replace the Query they forward down the chain; hooks in
// observe mode see it read-only.
//
// Fields:
//   - ID: unique identifier for tracing and correlation, assigned at dispatch
//   - Method: which intercepted entry point issued this query
//   - Table: target table name, informational for plugins (may be empty)
//   - Statement: builder-specific payload, never inspected by the core
//   - Metadata: plugin-to-plugin annotations (user id, tenant, flags)
type Query struct {
	ID        string            `json:"id"`
	Method    QueryMethod       `json:"method"`
	Table     string            `json:"table,omitempty"`
	Statement any               `json:"-"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Clone returns a copy of the query with its own metadata map. The Statement
// payload is shared, not copied - it is owned by the builder runtime.
func (q *Query) Clone() *Query {
	if q == nil {
		return nil
	}
	dup := *q
	if q.Metadata != nil {
		dup.Metadata = make(map[string]string, len(q.Metadata))
		for k, v := range q.Metadata {
			dup.Metadata[k] = v
		}
	}
	return &dup
}

// SetMeta records a metadata annotation, allocating the map on first use.
func (q *Query) SetMeta(key, value string) {
	if q.Metadata == nil {
		q.Metadata = make(map[string]string)
	}
	q.Metadata[key] = value
}

// Row is a single result row keyed by column name.
type Row map[string]any

// Result carries the outcome of an executed query back up the chain.
//
// Read queries populate Rows; write queries populate RowsAffected and, where
// the driver reports it, LastInsertID.
type Result struct {
	Rows         []Row `json:"rows,omitempty"`
	RowsAffected int64 `json:"rows_affected"`
	LastInsertID int64 `json:"last_insert_id,omitempty"`
}

// HealthState represents the tri-state outcome of a database health check.
//
// Ordering matters: a higher value is strictly worse, and an aggregate check
// reports the worst state among its parts (unhealthy > degraded > healthy).
type HealthState int

const (
	// StateUnknown is the zero value before any check ran.
	StateUnknown HealthState = iota

	// StateHealthy means the probe succeeded within its deadline.
	StateHealthy

	// StateDegraded means the database responds but with warning signs
	// (pool saturation, elevated error rate).
	StateDegraded

	// StateUnhealthy means the probe failed or timed out.
	StateUnhealthy
)

// String returns a human-readable representation of the health state.
func (s HealthState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state as its string form so health payloads read
// "healthy"/"degraded"/"unhealthy" rather than bare integers.
func (s HealthState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the string form produced by MarshalJSON.
func (s *HealthState) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw {
	case "healthy":
		*s = StateHealthy
	case "degraded":
		*s = StateDegraded
	case "unhealthy":
		*s = StateUnhealthy
	case "unknown":
		*s = StateUnknown
	default:
		return fmt.Errorf("unknown health state %q", raw)
	}
	return nil
}

// worseOf returns the worse of two health states.
func worseOf(a, b HealthState) HealthState {
	if b > a {
		return b
	}
	return a
}

// HealthCheck is a single named check entry inside a HealthCheckResult.
type HealthCheck struct {
	Name    string      `json:"name"`
	Status  HealthState `json:"status"`
	Message string      `json:"message,omitempty"`
}

// PoolMetrics describes connection pool utilization at a point in time.
//
// Adapters map their pool's native statistics onto these three counters:
// connections currently executing work, connections idle in the pool, and
// callers (or cumulative acquire attempts) waiting for a free connection.
type PoolMetrics struct {
	Active  int64 `json:"active"`
	Idle    int64 `json:"idle"`
	Waiting int64 `json:"waiting"`
}

// QueryMetrics summarizes query traffic observed by a metrics-capable
// connection wrapper or the interception-based tracker.
type QueryMetrics struct {
	Count        int64   `json:"count"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	SlowCount    int64   `json:"slow_count"`
	ErrorCount   int64   `json:"error_count"`
}

// HealthMetrics aggregates the optional measurements attached to a health
// check result. Pool and Query stay nil when the connection does not expose
// the corresponding capability - absence is not an error.
type HealthMetrics struct {
	DatabaseVersion string        `json:"database_version,omitempty"`
	Pool            *PoolMetrics  `json:"pool,omitempty"`
	Query           *QueryMetrics `json:"query,omitempty"`
	CheckLatencyMs  int64         `json:"check_latency_ms"`
}

// HealthCheckResult is the complete outcome of one database health check.
//
// A result is produced fresh on every probe and never mutated after return.
// The overall Status is the worst status among Checks. Probe failures and
// timeouts surface in Errors and as unhealthy check entries - a health check
// itself never fails, so monitoring loops never crash.
type HealthCheckResult struct {
	Status    HealthState   `json:"status"`
	Checks    []HealthCheck `json:"checks"`
	Errors    []string      `json:"errors,omitempty"`
	Metrics   HealthMetrics `json:"metrics"`
	Timestamp time.Time     `json:"timestamp"`
}

// ShutdownState tracks a shutdown controller's position in its single
// forward path. There is no transition back: once a controller leaves
// ShutdownNotStarted it can never run teardown again.
type ShutdownState int32

const (
	// ShutdownNotStarted means Execute has not been called.
	ShutdownNotStarted ShutdownState = iota

	// ShutdownInProgress means the one real teardown is running.
	ShutdownInProgress

	// ShutdownCompleted means teardown finished (successfully or not).
	ShutdownCompleted
)

// String returns a human-readable representation of the shutdown state.
func (s ShutdownState) String() string {
	switch s {
	case ShutdownInProgress:
		return "in_progress"
	case ShutdownCompleted:
		return "completed"
	default:
		return "not_started"
	}
}

// PluginInfo contains identity and ordering metadata for a plugin.
//
// This structure drives registration-time validation and deterministic
// ordering: Name is the unique identity, Priority breaks ties among
// independent plugins (lower runs earlier), and DependsOn names plugins that
// must be ordered before this one.
//
// Fields:
//   - Name: unique identifier for the plugin (required)
//   - Version: plugin version for operational visibility
//   - Description: human-readable summary of plugin behavior
//   - Priority: ordering tie-breaker, lower = earlier (default 0)
//   - DependsOn: names of plugins that must precede this one
//   - Metadata: additional key-value pairs for custom plugin information
//
// Example:
//
//	info := plugin.Info()
//	fmt.Printf("Plugin: %s v%s (priority %d)\n", info.Name, info.Version, info.Priority)
type PluginInfo struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Description string            `json:"description,omitempty"`
	Priority    int               `json:"priority"`
	DependsOn   []string          `json:"depends_on,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
