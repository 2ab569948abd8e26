// Package metrics provides Prometheus instrumentation for the toolbar core
// and the dev server.
//
// All metrics are registered in a custom [prometheus.Registry] (not the global
// default) so that only toolbar metrics appear on the /metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors used by the toolbar.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	EventsAcceptedTotal *prometheus.CounterVec
	EventsFilteredTotal prometheus.Counter
	EventsEvictedTotal  prometheus.Counter

	OverridesActive prometheus.Gauge

	SnapshotPollsTotal      prometheus.Counter
	SnapshotPollErrorsTotal prometheus.Counter
}

// New creates and registers all toolbar metrics in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolbar_http_requests_total",
			Help: "Total number of HTTP requests served by the dev server.",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "toolbar_http_request_duration_seconds",
			Help:    "Dev server HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		EventsAcceptedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "toolbar_events_accepted_total",
			Help: "Total number of intercepted events accepted into the store.",
		}, []string{"kind"}),

		EventsFilteredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toolbar_events_filtered_total",
			Help: "Total number of intercepted events rejected by the filter.",
		}),

		EventsEvictedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toolbar_events_evicted_total",
			Help: "Total number of events evicted from the bounded store.",
		}),

		OverridesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toolbar_overrides_active",
			Help: "Number of currently active developer overrides.",
		}),

		SnapshotPollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toolbar_snapshot_polls_total",
			Help: "Total number of successful dev server snapshot polls.",
		}),

		SnapshotPollErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "toolbar_snapshot_poll_errors_total",
			Help: "Total number of failed dev server snapshot polls.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.EventsAcceptedTotal,
		m.EventsFilteredTotal,
		m.EventsEvictedTotal,
		m.OverridesActive,
		m.SnapshotPollsTotal,
		m.SnapshotPollErrorsTotal,
	)

	return m
}

// Handler returns an [http.Handler] that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// IncEventAccepted increments the accepted-event counter for a kind.
func (m *Metrics) IncEventAccepted(kind string) {
	m.EventsAcceptedTotal.WithLabelValues(kind).Inc()
}

// IncEventFiltered increments the filtered-event counter.
func (m *Metrics) IncEventFiltered() {
	m.EventsFilteredTotal.Inc()
}

// IncEventEvicted increments the evicted-event counter.
func (m *Metrics) IncEventEvicted() {
	m.EventsEvictedTotal.Inc()
}

// SetOverridesActive updates the active-override gauge.
func (m *Metrics) SetOverridesActive(n int) {
	m.OverridesActive.Set(float64(n))
}

// IncSnapshotPoll increments the successful-poll counter.
func (m *Metrics) IncSnapshotPoll() {
	m.SnapshotPollsTotal.Inc()
}

// IncSnapshotPollError increments the failed-poll counter.
func (m *Metrics) IncSnapshotPollError() {
	m.SnapshotPollErrorsTotal.Inc()
}
