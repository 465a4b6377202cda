// monitor.go: Periodic database health monitoring
//
// This file implements the HealthMonitor struct and its methods. The monitor
// re-runs CheckDatabaseHealth on a fixed interval, remembers the latest
// result, and notifies callbacks on every result and on state transitions.
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// HealthMonitor periodically probes a database connection in the background.
//
// Monitoring runs in its own goroutine between Start and Stop. Each cycle
// produces a full HealthCheckResult; the newest result is retained for
// LastResult and the configured callbacks observe results and state
// transitions. A consecutive failure counter supports external degradation
// policies.
type HealthMonitor struct {
	conn   Connection
	opts   *MonitorOptions
	logger Logger

	running  atomic.Bool
	stopChan chan struct{}
	doneChan chan struct{}

	consecutiveFailures atomic.Int64

	mu   sync.RWMutex
	last HealthCheckResult
	seen bool
}

// NewHealthMonitor creates a monitor for conn. Nil options get defaults; the
// monitor does not start probing until Start is called.
func NewHealthMonitor(conn Connection, opts *MonitorOptions) *HealthMonitor {
	options := opts.withDefaults()
	return &HealthMonitor{
		conn:   conn,
		opts:   options,
		logger: options.Logger,
	}
}

// Start launches the periodic monitoring goroutine.
//
// An initial check runs immediately, then one per configured interval until
// Stop. The method is idempotent - calling it multiple times is safe.
func (hm *HealthMonitor) Start() {
	if hm.running.CompareAndSwap(false, true) {
		hm.stopChan = make(chan struct{})
		hm.doneChan = make(chan struct{})
		go hm.run()
		hm.logger.Info("health monitor started", "interval", hm.opts.Interval)
	}
}

// Stop halts periodic monitoring and waits for the goroutine to finish its
// in-flight check. The method is idempotent - calling it multiple times is
// safe, and the monitor can be restarted with Start afterwards.
func (hm *HealthMonitor) Stop() {
	if hm.running.CompareAndSwap(true, false) {
		close(hm.stopChan)
		<-hm.doneChan
		hm.logger.Info("health monitor stopped")
	}
}

// IsRunning reports whether the monitoring goroutine is active.
func (hm *HealthMonitor) IsRunning() bool {
	return hm.running.Load()
}

// Done returns a channel closed when the monitoring goroutine exits.
func (hm *HealthMonitor) Done() <-chan struct{} {
	return hm.doneChan
}

// ConsecutiveFailures returns how many checks in a row have come back
// non-healthy. The counter resets to zero on the first healthy result.
func (hm *HealthMonitor) ConsecutiveFailures() int64 {
	return hm.consecutiveFailures.Load()
}

// LastResult returns the most recent check result. The second return is
// false until the first check completes.
func (hm *HealthMonitor) LastResult() (HealthCheckResult, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	return hm.last, hm.seen
}

// Check probes the connection immediately, outside the periodic schedule,
// updating the retained result and firing callbacks exactly as a scheduled
// check would.
func (hm *HealthMonitor) Check(ctx context.Context) HealthCheckResult {
	result := CheckDatabaseHealth(ctx, hm.conn, &HealthCheckOptions{
		Timeout:    hm.opts.Timeout,
		Logger:     hm.logger,
		QueryStats: hm.opts.QueryStats,
	})

	if result.Status == StateHealthy {
		hm.consecutiveFailures.Store(0)
	} else {
		hm.consecutiveFailures.Add(1)
	}

	hm.mu.Lock()
	previous := hm.last.Status
	hm.last = result
	hm.seen = true
	hm.mu.Unlock()

	if hm.opts.OnResult != nil {
		hm.opts.OnResult(result)
	}
	if previous != result.Status {
		hm.logger.Info("database health state changed",
			"previous", previous.String(),
			"current", result.Status.String())
		if hm.opts.OnStateChange != nil {
			hm.opts.OnStateChange(previous, result.Status)
		}
	}

	return result
}

// run is the main monitoring loop.
func (hm *HealthMonitor) run() {
	defer close(hm.doneChan)

	ticker := time.NewTicker(hm.opts.Interval)
	defer ticker.Stop()

	// Initial check so LastResult is populated right away
	hm.Check(context.Background())

	for {
		select {
		case <-ticker.C:
			hm.Check(context.Background())

		case <-hm.stopChan:
			return
		}
	}
}
