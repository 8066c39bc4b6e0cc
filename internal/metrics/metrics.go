// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reqlab"

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	InvitationsTotal    *prometheus.CounterVec
	EmailsTotal         *prometheus.CounterVec
	BackupsTotal        *prometheus.CounterVec
}

// New registers every collector on a fresh registry, so tests can build as
// many instances as they like.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		InvitationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "invitation",
				Name:      "events_total",
				Help:      "Invitation lifecycle transitions",
			},
			[]string{"action"}, // created, resent, cancelled, accepted, purged
		),
		EmailsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "email",
				Name:      "dispatch_total",
				Help:      "Email dispatch attempts by outcome",
			},
			[]string{"kind", "outcome"},
		),
		BackupsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "backup",
				Name:      "runs_total",
				Help:      "Database backup runs by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) InvitationEvent(action string, n int) {
	if n <= 0 {
		return
	}
	m.InvitationsTotal.WithLabelValues(action).Add(float64(n))
}

func (m *Metrics) EmailDispatched(kind, outcome string) {
	m.EmailsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) BackupFinished(outcome string) {
	m.BackupsTotal.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
