package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	ApplicationsCreated prometheus.Counter
	TransitionsTotal    *prometheus.CounterVec
	SweepRuns           *prometheus.CounterVec
	SweepFailures       *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credere_http_requests_total",
			Help: "Total number of HTTP requests by route and status class",
		}, []string{"route", "status"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credere_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		ApplicationsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "credere_applications_created_total",
			Help: "Total number of applications created by ingestion",
		}),
		TransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credere_transitions_total",
			Help: "Total number of lifecycle transitions by event",
		}, []string{"event"}),
		SweepRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credere_sweep_runs_total",
			Help: "Total number of policy sweep executions",
		}, []string{"sweep"}),
		SweepFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "credere_sweep_failures_total",
			Help: "Total number of failed policy sweep executions",
		}, []string{"sweep"}),
	}
}

// IncrementTransitions records one lifecycle transition.
func (m *Metrics) IncrementTransitions(event string) {
	m.TransitionsTotal.WithLabelValues(event).Inc()
}
