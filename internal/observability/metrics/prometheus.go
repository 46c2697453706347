// Package metrics provides Prometheus metrics for the summary viewer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes
const (
	OutcomeSuccess    = "success"
	OutcomeValidation = "validation_error"
	OutcomeHTTPError  = "http_error"
	OutcomeTransport  = "transport_error"
	OutcomeDecode     = "decode_error"
	OutcomeRejected   = "circuit_open"
)

// Metrics holds all application metrics
type Metrics struct {
	SummaryFetches       *prometheus.CounterVec
	FetchDuration        prometheus.Histogram
	FetchesInFlight      prometheus.Gauge
	UnresolvedReferences *prometheus.CounterVec
	AuditEvents          *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all metrics and registers them with reg, or with the default
// registry when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		SummaryFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "summary_fetches_total",
			Help: "Patient summary fetches by outcome",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "summary_fetch_duration_seconds",
			Help:    "Upstream summary fetch duration",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		FetchesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "summary_fetches_in_flight",
			Help: "Summary fetches currently awaiting the upstream",
		}),
		UnresolvedReferences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "summary_unresolved_references_total",
			Help: "Composition section references that matched no bundle entry",
		}, []string{"section"}),
		AuditEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "summary_audit_events_total",
			Help: "Access audit events by sink and result",
		}, []string{"sink", "result"}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.SummaryFetches,
		m.FetchDuration,
		m.FetchesInFlight,
		m.UnresolvedReferences,
		m.AuditEvents,
		m.CircuitBreakerState,
	)

	return m
}

// SetBreakerState records a breaker state as 0 (closed), 1 (open) or 2 (half-open).
func (m *Metrics) SetBreakerState(name, state string) {
	var v float64
	switch state {
	case "open":
		v = 1
	case "half-open":
		v = 2
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(v)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
