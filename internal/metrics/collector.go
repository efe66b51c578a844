// Package metrics provides Prometheus metrics for scan processing
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects and exposes scan processing metrics
type Collector struct {
	registry *prometheus.Registry

	scansTotal         *prometheus.CounterVec
	scansSuppressed    *prometheus.CounterVec
	inspectionDuration prometheus.Histogram
	activeSessions     prometheus.Gauge
	itemsAborted       prometheus.Counter
}

// NewCollector creates a collector with its own registry. namespace
// prefixes every metric name.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		scansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Total number of scans that produced an outcome",
		}, []string{"outcome"}),
		scansSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_suppressed_total",
			Help:      "Total number of scans dropped by duplicate suppression",
		}, []string{"reason"}),
		inspectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inspection_duration_seconds",
			Help:      "Time between entry and exit scan of completed items",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600, 7200},
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active worker sessions",
		}),
		itemsAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_aborted_total",
			Help:      "Total number of inspection items aborted",
		}),
	}

	c.registry.MustRegister(
		c.scansTotal,
		c.scansSuppressed,
		c.inspectionDuration,
		c.activeSessions,
		c.itemsAborted,
	)

	return c
}

// RecordOutcome counts a scan outcome
func (c *Collector) RecordOutcome(outcome string) {
	c.scansTotal.WithLabelValues(outcome).Inc()
}

// RecordSuppressed counts a suppressed scan
func (c *Collector) RecordSuppressed(reason string) {
	c.scansSuppressed.WithLabelValues(reason).Inc()
}

// RecordInspectionDuration observes the duration of a completed item
func (c *Collector) RecordInspectionDuration(d time.Duration) {
	c.inspectionDuration.Observe(d.Seconds())
}

// SetActiveSessions sets the active session gauge
func (c *Collector) SetActiveSessions(n int) {
	c.activeSessions.Set(float64(n))
}

// RecordAborted counts aborted items
func (c *Collector) RecordAborted(n int) {
	c.itemsAborted.Add(float64(n))
}

// Registry returns the registry backing the collector
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collected metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
