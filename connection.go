// connection.go: Connection capability consumed from the query-builder layer
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

import (
	"context"
)

// Runner executes finalized queries. It is the terminal stage of every
// interception chain: once all hooks have run, the current query is handed to
// the Runner of the active connection or transaction.
type Runner interface {
	// Run executes a query and returns its result. The Statement payload is
	// interpreted by the implementation; this layer never inspects it.
	Run(ctx context.Context, query *Query) (*Result, error)
}

// Connection is the capability set this layer consumes from the underlying
// query-builder/connection runtime. Any conforming implementation may back an
// Executor - a pooled driver adapter, a single socket, or a test double.
//
// Required capabilities:
//   - Run: execute a finalized query (Runner)
//   - Probe: issue a no-op/lightweight liveness query
//   - Begin: open a transaction-scoped connection
//   - Close: release the underlying resource
//
// Optional capabilities are discovered by interface assertion: PoolStats,
// QueryStats and Versioner enrich health checks when present and are simply
// omitted when absent.
//
// The connection is shared by all callers. This layer never mutates it
// outside the acquire/execute/release protocol the implementation exposes.
type Connection interface {
	Runner

	// Probe issues a minimal liveness query. It must be cheap: health checks
	// run it on an interval and race it against a deadline.
	Probe(ctx context.Context) error

	// Begin opens a transaction and returns its scoped connection.
	Begin(ctx context.Context) (Tx, error)

	// Close releases the underlying resource. Close may block; callers bound
	// it with a deadline and abandon the attempt when the deadline passes.
	Close(ctx context.Context) error
}

// Tx is a transaction-scoped connection produced by Connection.Begin.
//
// Exactly one of Commit or Rollback must be called; afterwards the value is
// spent. Executor transaction sub-handles wrap a Tx and enforce that it never
// escapes the transaction callback.
type Tx interface {
	Runner

	// Commit makes the transaction's effects durable.
	Commit(ctx context.Context) error

	// Rollback discards the transaction's effects.
	Rollback(ctx context.Context) error
}

// PoolStats is an optional connection capability exposing pool utilization
// counters. Health checks merge these into their result when available.
type PoolStats interface {
	PoolMetrics() PoolMetrics
}

// QueryStats is an optional capability exposing aggregated query traffic
// measurements, typically implemented by a metrics-capable connection wrapper
// or the interception-based tracker.
type QueryStats interface {
	QueryMetrics() QueryMetrics
}

// Versioner is an optional capability reporting the server version string for
// health check metadata.
type Versioner interface {
	DatabaseVersion(ctx context.Context) (string, error)
}

// ConnAs reports whether conn, or any connection it wraps, provides the
// capability T. Wrappers expose the layer beneath them through an
// Unwrap() Connection method, mirroring the errors.Unwrap convention.
func ConnAs[T any](conn Connection) (T, bool) {
	current := conn
	for current != nil {
		if capability, ok := current.(T); ok {
			return capability, true
		}
		wrapper, ok := current.(interface{ Unwrap() Connection })
		if !ok {
			break
		}
		current = wrapper.Unwrap()
	}
	var zero T
	return zero, false
}
