// Package observability exposes prometheus instrumentation for the
// valuation engine.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine collectors. Construct once and share.
type Metrics struct {
	registry *prometheus.Registry

	movementsPosted  *prometheus.CounterVec
	movementDuration *prometheus.HistogramVec
	ncrsCreated      *prometheus.CounterVec
	reconComputed    prometheus.Counter
	integrityIssues  prometheus.Gauge
}

// New builds and registers the engine metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		movementsPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "galley_movements_posted_total",
			Help: "Stock movements committed, by movement type.",
		}, []string{"type"}),
		movementDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "galley_movement_duration_seconds",
			Help:    "Wall time of movement transactions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		ncrsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "galley_ncrs_created_total",
			Help: "Non-conformance reports created, by type and origin.",
		}, []string{"type", "origin"}),
		reconComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "galley_reconciliations_computed_total",
			Help: "Reconciliation calculations performed.",
		}),
		integrityIssues: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "galley_stock_integrity_issues",
			Help: "Stock lines with negative quantity or cost found by the last scan.",
		}),
	}
	reg.MustRegister(
		m.movementsPosted, m.movementDuration, m.ncrsCreated, m.reconComputed, m.integrityIssues,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// MovementPosted records a committed movement and its duration.
func (m *Metrics) MovementPosted(kind string, start time.Time) {
	if m == nil {
		return
	}
	m.movementsPosted.WithLabelValues(kind).Inc()
	m.movementDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// NCRCreated records a report. origin is "auto" or "manual".
func (m *Metrics) NCRCreated(kind, origin string) {
	if m == nil {
		return
	}
	m.ncrsCreated.WithLabelValues(kind, origin).Inc()
}

// ReconComputed records one reconciliation calculation.
func (m *Metrics) ReconComputed() {
	if m == nil {
		return
	}
	m.reconComputed.Inc()
}

// IntegrityIssues records the outcome of a ledger integrity scan.
func (m *Metrics) IntegrityIssues(n int) {
	if m == nil {
		return
	}
	m.integrityIssues.Set(float64(n))
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
