// metrics.go: Typed metrics collection interfaces
//
// This file defines the metrics surface consumed by the query tracker and
// the Prometheus bridge, plus an in-memory collector for tests and
// deployments without a metrics backend.
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

import (
	"sort"
	"sync"
)

// MetricsCollector creates strongly-typed metrics with predefined label
// schemas. Implementations must be safe for concurrent use; the returned
// metric handles are called on the query hot path.
type MetricsCollector interface {
	CounterWithLabels(name, description string, labelNames ...string) CounterMetric
	GaugeWithLabels(name, description string, labelNames ...string) GaugeMetric
	HistogramWithLabels(name, description string, buckets []float64, labelNames ...string) HistogramMetric
}

// CounterMetric represents a counter with native label support
type CounterMetric interface {
	Inc(labelValues ...string)
	Add(value float64, labelValues ...string)
}

// GaugeMetric represents a gauge with native label support
type GaugeMetric interface {
	Set(value float64, labelValues ...string)
	Inc(labelValues ...string)
	Dec(labelValues ...string)
}

// HistogramMetric represents a histogram with native label support
type HistogramMetric interface {
	Observe(value float64, labelValues ...string)
}

// MemoryMetricsCollector is a basic in-memory MetricsCollector. Values are
// retained in maps keyed by metric name plus label values, readable through
// Snapshot. Histograms keep a bounded window of observations.
type MemoryMetricsCollector struct {
	mu         sync.RWMutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewMemoryMetricsCollector creates an empty in-memory collector.
func NewMemoryMetricsCollector() *MemoryMetricsCollector {
	return &MemoryMetricsCollector{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

// CounterWithLabels implements MetricsCollector.
func (mc *MemoryMetricsCollector) CounterWithLabels(name, description string, labelNames ...string) CounterMetric {
	return &memoryCounter{collector: mc, name: name, labelNames: labelNames}
}

// GaugeWithLabels implements MetricsCollector.
func (mc *MemoryMetricsCollector) GaugeWithLabels(name, description string, labelNames ...string) GaugeMetric {
	return &memoryGauge{collector: mc, name: name, labelNames: labelNames}
}

// HistogramWithLabels implements MetricsCollector.
func (mc *MemoryMetricsCollector) HistogramWithLabels(name, description string, buckets []float64, labelNames ...string) HistogramMetric {
	return &memoryHistogram{collector: mc, name: name, labelNames: labelNames}
}

// Snapshot returns current counter and gauge values plus summary statistics
// for each histogram.
func (mc *MemoryMetricsCollector) Snapshot() map[string]float64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	snapshot := make(map[string]float64, len(mc.counters)+len(mc.gauges))
	for k, v := range mc.counters {
		snapshot[k] = v
	}
	for k, v := range mc.gauges {
		snapshot[k] = v
	}
	for k, values := range mc.histograms {
		if len(values) == 0 {
			continue
		}
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		snapshot[k+"_count"] = float64(len(values))
		snapshot[k+"_sum"] = sum
		snapshot[k+"_avg"] = sum / float64(len(values))
	}
	return snapshot
}

func (mc *MemoryMetricsCollector) addCounter(key string, value float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.counters[key] += value
}

func (mc *MemoryMetricsCollector) setGauge(key string, value float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.gauges[key] = value
}

func (mc *MemoryMetricsCollector) addGauge(key string, delta float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.gauges[key] += delta
}

func (mc *MemoryMetricsCollector) observe(key string, value float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.histograms[key] = append(mc.histograms[key], value)

	// Keep only recent values to prevent unbounded growth
	if len(mc.histograms[key]) > 1000 {
		mc.histograms[key] = mc.histograms[key][len(mc.histograms[key])-1000:]
	}
}

type memoryCounter struct {
	collector  *MemoryMetricsCollector
	name       string
	labelNames []string
}

func (c *memoryCounter) Inc(labelValues ...string) {
	c.collector.addCounter(metricKey(c.name, c.labelNames, labelValues), 1)
}

func (c *memoryCounter) Add(value float64, labelValues ...string) {
	c.collector.addCounter(metricKey(c.name, c.labelNames, labelValues), value)
}

type memoryGauge struct {
	collector  *MemoryMetricsCollector
	name       string
	labelNames []string
}

func (g *memoryGauge) Set(value float64, labelValues ...string) {
	g.collector.setGauge(metricKey(g.name, g.labelNames, labelValues), value)
}

func (g *memoryGauge) Inc(labelValues ...string) {
	g.collector.addGauge(metricKey(g.name, g.labelNames, labelValues), 1)
}

func (g *memoryGauge) Dec(labelValues ...string) {
	g.collector.addGauge(metricKey(g.name, g.labelNames, labelValues), -1)
}

type memoryHistogram struct {
	collector  *MemoryMetricsCollector
	name       string
	labelNames []string
}

func (h *memoryHistogram) Observe(value float64, labelValues ...string) {
	h.collector.observe(metricKey(h.name, h.labelNames, labelValues), value)
}

// metricKey builds a stable key from a metric name and its label pairs.
func metricKey(name string, labelNames, labelValues []string) string {
	if len(labelNames) == 0 {
		return name
	}

	pairs := make([]string, 0, len(labelNames))
	for i, labelName := range labelNames {
		value := ""
		if i < len(labelValues) {
			value = labelValues[i]
		}
		pairs = append(pairs, labelName+"_"+value)
	}
	sort.Strings(pairs)

	key := name
	for _, pair := range pairs {
		key += "_" + pair
	}
	return key
}
