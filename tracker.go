// tracker.go: Query tracking and slow query detection
//
// This file implements the QueryTracker counters, the TrackerPlugin that
// feeds them through interception, and the TrackedConnection wrapper that
// counts at the connection level instead. Counters are plain atomics so
// recording stays allocation-free on the query hot path.
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

import (
	"context"
	"sync/atomic"
	"time"
)

// methodCounters is one bucket of query statistics.
type methodCounters struct {
	count          atomic.Int64
	errors         atomic.Int64
	slow           atomic.Int64
	totalLatencyNs atomic.Int64
}

// QueryTracker accumulates query statistics with per-method breakdown.
//
// The method buckets are allocated once at construction and the map is never
// written afterwards, so recording needs no locks. QueryTracker implements
// QueryStats and can feed health check results directly.
type QueryTracker struct {
	slowThreshold time.Duration
	methods       map[QueryMethod]*methodCounters
	total         methodCounters
}

// NewQueryTracker creates a tracker counting queries at or above
// slowThreshold as slow; non-positive thresholds fall back to
// DefaultSlowQueryThreshold.
func NewQueryTracker(slowThreshold time.Duration) *QueryTracker {
	if slowThreshold <= 0 {
		slowThreshold = DefaultSlowQueryThreshold
	}
	methods := make(map[QueryMethod]*methodCounters, len(InterceptedMethods()))
	for _, method := range InterceptedMethods() {
		methods[method] = &methodCounters{}
	}
	return &QueryTracker{
		slowThreshold: slowThreshold,
		methods:       methods,
	}
}

// SlowThreshold returns the latency above which queries count as slow.
func (qt *QueryTracker) SlowThreshold() time.Duration {
	return qt.slowThreshold
}

// Record adds one query observation to the totals and the method's bucket.
func (qt *QueryTracker) Record(method QueryMethod, duration time.Duration, err error) {
	qt.record(&qt.total, duration, err)
	if counters, ok := qt.methods[method]; ok {
		qt.record(counters, duration, err)
	}
}

func (qt *QueryTracker) record(c *methodCounters, duration time.Duration, err error) {
	c.count.Add(1)
	c.totalLatencyNs.Add(duration.Nanoseconds())
	if err != nil {
		c.errors.Add(1)
	}
	if duration >= qt.slowThreshold {
		c.slow.Add(1)
	}
}

// QueryMetrics implements QueryStats with the aggregate over all methods.
func (qt *QueryTracker) QueryMetrics() QueryMetrics {
	return snapshotCounters(&qt.total)
}

// MethodMetrics returns the statistics bucket for a single method.
func (qt *QueryTracker) MethodMetrics(method QueryMethod) QueryMetrics {
	if counters, ok := qt.methods[method]; ok {
		return snapshotCounters(counters)
	}
	return QueryMetrics{}
}

func snapshotCounters(c *methodCounters) QueryMetrics {
	count := c.count.Load()
	avg := 0.0
	if count > 0 {
		avg = float64(c.totalLatencyNs.Load()) / float64(count) / float64(time.Millisecond)
	}
	return QueryMetrics{
		Count:        count,
		AvgLatencyMs: avg,
		SlowCount:    c.slow.Load(),
		ErrorCount:   c.errors.Load(),
	}
}

// TrackerPluginOptions configures NewTrackerPlugin.
type TrackerPluginOptions struct {
	// SlowQueryThreshold marks queries counted and logged as slow;
	// DefaultSlowQueryThreshold when unset.
	SlowQueryThreshold time.Duration

	// Collector additionally exports observations as typed metrics.
	Collector MetricsCollector

	// Logger receives slow query warnings. Accepts anything NewLogger
	// accepts.
	Logger any
}

// TrackerPlugin observes every intercepted method and records latency,
// outcome and slow query counts.
//
// Its hooks run in observe mode and never change queries or results. The
// plugin registers with a low priority so it sits early in the chain and its
// measurements cover the work of every plugin after it. TrackerPlugin
// implements QueryStats, so an executor carrying it feeds query statistics
// into CheckHealth automatically.
type TrackerPlugin struct {
	BasePlugin
	tracker *QueryTracker
	logger  Logger

	queries CounterMetric
	latency HistogramMetric
	slow    CounterMetric
}

// NewTrackerPlugin creates a tracker plugin. Nil options get defaults.
func NewTrackerPlugin(opts *TrackerPluginOptions) *TrackerPlugin {
	options := TrackerPluginOptions{}
	if opts != nil {
		options = *opts
	}

	tp := &TrackerPlugin{
		BasePlugin: BasePlugin{
			PluginInfo: PluginInfo{
				Name:        "query-tracker",
				Version:     "1.0.0",
				Description: "Tracks query latency, errors and slow queries",
				Priority:    -100,
			},
		},
		tracker: NewQueryTracker(options.SlowQueryThreshold),
		logger:  NewLogger(options.Logger),
	}

	if options.Collector != nil {
		tp.queries = options.Collector.CounterWithLabels("queries_total",
			"Total queries by method and status", "method", "status")
		tp.latency = options.Collector.HistogramWithLabels("query_duration_seconds",
			"Query latency by method", nil, "method")
		tp.slow = options.Collector.CounterWithLabels("slow_queries_total",
			"Queries above the slow threshold", "method")
	}

	return tp
}

// Tracker exposes the underlying counters.
func (tp *TrackerPlugin) Tracker() *QueryTracker {
	return tp.tracker
}

// QueryMetrics implements QueryStats.
func (tp *TrackerPlugin) QueryMetrics() QueryMetrics {
	return tp.tracker.QueryMetrics()
}

// Hooks implements Interceptor with one observe hook per intercepted method.
func (tp *TrackerPlugin) Hooks() []Hook {
	methods := InterceptedMethods()
	hooks := make([]Hook, 0, len(methods))
	for _, method := range methods {
		hooks = append(hooks, Hook{Method: method, Mode: HookObserve, Fn: tp.observe})
	}
	return hooks
}

func (tp *TrackerPlugin) observe(ctx context.Context, query *Query, next Next) (*Result, error) {
	start := time.Now()
	result, err := next(ctx, query)
	duration := time.Since(start)

	tp.tracker.Record(query.Method, duration, err)

	if tp.queries != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		tp.queries.Inc(string(query.Method), status)
		tp.latency.Observe(duration.Seconds(), string(query.Method))
		if duration >= tp.tracker.SlowThreshold() {
			tp.slow.Inc(string(query.Method))
		}
	}

	if duration >= tp.tracker.SlowThreshold() {
		tp.logger.Warn("slow query detected",
			"query_id", query.ID,
			"method", string(query.Method),
			"table", query.Table,
			"duration_ms", duration.Milliseconds())
	}

	return result, err
}

// TrackedConnection wraps a Connection and counts every query that reaches
// it, including queries issued inside transactions. Unlike TrackerPlugin it
// sits below the interception chains, so it also sees work that bypasses
// them.
type TrackedConnection struct {
	inner   Connection
	tracker *QueryTracker
}

// NewTrackedConnection wraps inner. A nil tracker gets a fresh one with
// default thresholds.
func NewTrackedConnection(inner Connection, tracker *QueryTracker) *TrackedConnection {
	if tracker == nil {
		tracker = NewQueryTracker(0)
	}
	return &TrackedConnection{inner: inner, tracker: tracker}
}

// Tracker exposes the underlying counters.
func (tc *TrackedConnection) Tracker() *QueryTracker {
	return tc.tracker
}

// Unwrap returns the wrapped connection so capability probes can reach it.
func (tc *TrackedConnection) Unwrap() Connection {
	return tc.inner
}

// QueryMetrics implements QueryStats.
func (tc *TrackedConnection) QueryMetrics() QueryMetrics {
	return tc.tracker.QueryMetrics()
}

// Run implements Runner, recording the observation.
func (tc *TrackedConnection) Run(ctx context.Context, query *Query) (*Result, error) {
	start := time.Now()
	result, err := tc.inner.Run(ctx, query)
	tc.tracker.Record(query.Method, time.Since(start), err)
	return result, err
}

// Probe implements Connection.
func (tc *TrackedConnection) Probe(ctx context.Context) error {
	return tc.inner.Probe(ctx)
}

// Begin implements Connection; queries on the returned transaction are
// recorded too.
func (tc *TrackedConnection) Begin(ctx context.Context) (Tx, error) {
	tx, err := tc.inner.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &trackedTx{inner: tx, tracker: tc.tracker}, nil
}

// Close implements Connection.
func (tc *TrackedConnection) Close(ctx context.Context) error {
	return tc.inner.Close(ctx)
}

type trackedTx struct {
	inner   Tx
	tracker *QueryTracker
}

func (tt *trackedTx) Run(ctx context.Context, query *Query) (*Result, error) {
	start := time.Now()
	result, err := tt.inner.Run(ctx, query)
	tt.tracker.Record(query.Method, time.Since(start), err)
	return result, err
}

func (tt *trackedTx) Commit(ctx context.Context) error {
	return tt.inner.Commit(ctx)
}

func (tt *trackedTx) Rollback(ctx context.Context) error {
	return tt.inner.Rollback(ctx)
}
