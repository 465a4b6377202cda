// prometheus.go: Prometheus implementation of MetricsCollector
//
// Copyright (c) 2025 The Kysera Authors
// SPDX-License-Identifier: MPL-2.0

package kysera

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusCollector creates Prometheus-backed metrics under a common
// namespace. Metrics register on construction through promauto; passing a
// dedicated Registerer keeps a library embedder's global registry clean.
type PrometheusCollector struct {
	namespace string
	factory   promauto.Factory
}

// NewPrometheusCollector creates a collector registering on registerer. A
// nil registerer falls back to the Prometheus default registry; an empty
// namespace becomes "kysera".
func NewPrometheusCollector(namespace string, registerer prometheus.Registerer) *PrometheusCollector {
	if namespace == "" {
		namespace = "kysera"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &PrometheusCollector{
		namespace: namespace,
		factory:   promauto.With(registerer),
	}
}

// CounterWithLabels implements MetricsCollector.
func (pc *PrometheusCollector) CounterWithLabels(name, description string, labelNames ...string) CounterMetric {
	return &prometheusCounter{
		vec: pc.factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: pc.namespace,
				Name:      name,
				Help:      description,
			},
			labelNames,
		),
	}
}

// GaugeWithLabels implements MetricsCollector.
func (pc *PrometheusCollector) GaugeWithLabels(name, description string, labelNames ...string) GaugeMetric {
	return &prometheusGauge{
		vec: pc.factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: pc.namespace,
				Name:      name,
				Help:      description,
			},
			labelNames,
		),
	}
}

// HistogramWithLabels implements MetricsCollector. Nil buckets use the
// Prometheus defaults.
func (pc *PrometheusCollector) HistogramWithLabels(name, description string, buckets []float64, labelNames ...string) HistogramMetric {
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	return &prometheusHistogram{
		vec: pc.factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: pc.namespace,
				Name:      name,
				Help:      description,
				Buckets:   buckets,
			},
			labelNames,
		),
	}
}

type prometheusCounter struct {
	vec *prometheus.CounterVec
}

func (c *prometheusCounter) Inc(labelValues ...string) {
	c.vec.WithLabelValues(labelValues...).Inc()
}

func (c *prometheusCounter) Add(value float64, labelValues ...string) {
	c.vec.WithLabelValues(labelValues...).Add(value)
}

type prometheusGauge struct {
	vec *prometheus.GaugeVec
}

func (g *prometheusGauge) Set(value float64, labelValues ...string) {
	g.vec.WithLabelValues(labelValues...).Set(value)
}

func (g *prometheusGauge) Inc(labelValues ...string) {
	g.vec.WithLabelValues(labelValues...).Inc()
}

func (g *prometheusGauge) Dec(labelValues ...string) {
	g.vec.WithLabelValues(labelValues...).Dec()
}

type prometheusHistogram struct {
	vec *prometheus.HistogramVec
}

func (h *prometheusHistogram) Observe(value float64, labelValues ...string) {
	h.vec.WithLabelValues(labelValues...).Observe(value)
}

// PoolStatsCollector is a prometheus.Collector that reads live pool
// utilization on every scrape, so pool gauges never go stale between
// collection intervals.
type PoolStatsCollector struct {
	stats   PoolStats
	active  *prometheus.Desc
	idle    *prometheus.Desc
	waiting *prometheus.Desc
}

// NewPoolStatsCollector exports stats under namespace. Register the returned
// collector on the registry serving your metrics endpoint.
func NewPoolStatsCollector(stats PoolStats, namespace string) *PoolStatsCollector {
	if namespace == "" {
		namespace = "kysera"
	}
	return &PoolStatsCollector{
		stats: stats,
		active: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "active_connections"),
			"Connections currently executing work", nil, nil),
		idle: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "idle_connections"),
			"Connections idle in the pool", nil, nil),
		waiting: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "waiting_count"),
			"Callers waiting for a free connection", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.active
	ch <- c.idle
	ch <- c.waiting
}

// Collect implements prometheus.Collector.
func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	metrics := c.stats.PoolMetrics()
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(metrics.Active))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(metrics.Idle))
	ch <- prometheus.MustNewConstMetric(c.waiting, prometheus.GaugeValue, float64(metrics.Waiting))
}

// MetricsHandler returns an HTTP handler serving the default Prometheus
// registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
