// health.go: Point-in-time database health checks
//
// This file implements CheckDatabaseHealth, the single probe underlying both
// ad-hoc health inspection and the periodic HealthMonitor. A check never
// returns an error: probe failures and timeouts are folded into the result
// as unhealthy entries so monitoring loops stay alive.
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agilira/go-timecache"
)

// CheckDatabaseHealth probes conn once and reports its state.
//
// The probe is raced against the configured timeout (DefaultHealthCheckTimeout
// when unset); a probe that outlives the timer yields an unhealthy result
// whose connection check message says it timed out. On a successful probe the
// check inspects the connection's optional capabilities: pool statistics,
// query statistics and the database version, each contributing its own check
// entry. The overall Status is the worst status among the entries.
//
// The result's latency is measured with the monotonic clock and is never
// negative, even across wall-clock adjustments.
func CheckDatabaseHealth(ctx context.Context, conn Connection, opts *HealthCheckOptions) HealthCheckResult {
	options := opts.withDefaults()
	start := time.Now()

	result := HealthCheckResult{Status: StateHealthy}

	if conn == nil {
		result.Status = StateUnhealthy
		result.Checks = append(result.Checks, HealthCheck{
			Name:    "connection",
			Status:  StateUnhealthy,
			Message: "No database connection configured",
		})
		result.Errors = append(result.Errors, NewNilConnectionError().Error())
		result.Metrics.CheckLatencyMs = time.Since(start).Milliseconds()
		result.Timestamp = timecache.CachedTime()
		return result
	}

	pctx, cancel := context.WithTimeout(ctx, options.Timeout)
	defer cancel()

	probeErr, timedOut := raceProbe(pctx, conn, options.Timeout)

	switch {
	case timedOut:
		result.Checks = append(result.Checks, HealthCheck{
			Name:    "connection",
			Status:  StateUnhealthy,
			Message: fmt.Sprintf("Health check timed out after %dms", options.Timeout.Milliseconds()),
		})
		result.Errors = append(result.Errors,
			NewHealthProbeTimeoutError(options.Timeout.Milliseconds()).Error())
		options.Logger.Warn("database health probe timed out", "timeout", options.Timeout)

	case probeErr != nil:
		result.Checks = append(result.Checks, HealthCheck{
			Name:    "connection",
			Status:  StateUnhealthy,
			Message: "Database probe failed: " + probeErr.Error(),
		})
		result.Errors = append(result.Errors, NewHealthProbeError(probeErr).Error())
		options.Logger.Warn("database health probe failed", "error", probeErr)

	default:
		result.Checks = append(result.Checks, HealthCheck{
			Name:    "connection",
			Status:  StateHealthy,
			Message: "Database connection verified",
		})
	}

	if stats, ok := ConnAs[PoolStats](conn); ok {
		pool := stats.PoolMetrics()
		result.Metrics.Pool = &pool
		if pool.Waiting > 0 && pool.Idle == 0 {
			result.Checks = append(result.Checks, HealthCheck{
				Name:   "pool",
				Status: StateDegraded,
				Message: fmt.Sprintf("Connection pool saturated: %d active, %d waiting",
					pool.Active, pool.Waiting),
			})
		} else {
			result.Checks = append(result.Checks, HealthCheck{
				Name:    "pool",
				Status:  StateHealthy,
				Message: fmt.Sprintf("%d active, %d idle connections", pool.Active, pool.Idle),
			})
		}
	}

	queryStats := options.QueryStats
	if queryStats == nil {
		if stats, ok := ConnAs[QueryStats](conn); ok {
			queryStats = stats
		}
	}
	if queryStats != nil {
		query := queryStats.QueryMetrics()
		result.Metrics.Query = &query
	}

	if !timedOut && probeErr == nil {
		if versioner, ok := ConnAs[Versioner](conn); ok {
			version, err := versioner.DatabaseVersion(pctx)
			if err != nil {
				result.Checks = append(result.Checks, HealthCheck{
					Name:    "version",
					Status:  StateDegraded,
					Message: "Version query failed: " + err.Error(),
				})
				options.Logger.Warn("database version query failed", "error", err)
			} else {
				result.Metrics.DatabaseVersion = version
				result.Checks = append(result.Checks, HealthCheck{
					Name:    "version",
					Status:  StateHealthy,
					Message: version,
				})
			}
		}
	}

	for _, check := range result.Checks {
		result.Status = worseOf(result.Status, check.Status)
	}

	result.Metrics.CheckLatencyMs = time.Since(start).Milliseconds()
	result.Timestamp = timecache.CachedTime()

	options.Logger.Debug("database health check completed",
		"status", result.Status.String(),
		"checks", len(result.Checks),
		"latency_ms", result.Metrics.CheckLatencyMs)

	return result
}

// raceProbe runs the connection probe against a hard timer. The timer is
// released on every exit path. A probe that dies on the context deadline
// counts as timed out, not failed.
func raceProbe(ctx context.Context, conn Connection, timeout time.Duration) (probeErr error, timedOut bool) {
	probeCh := make(chan error, 1)
	go func() {
		probeCh <- conn.Probe(ctx)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-probeCh:
		if errors.Is(err, context.DeadlineExceeded) {
			return err, true
		}
		return err, false
	case <-timer.C:
		return nil, true
	}
}
