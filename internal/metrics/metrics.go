package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the auth service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	AuthAttempts       *prometheus.CounterVec
	AuthorizationCalls *prometheus.CounterVec
	PhotoResolutions   *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers every collector on registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		AuthAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_attempts_total",
				Help: "Authentication attempts by flow and outcome",
			},
			[]string{"flow", "outcome"},
		),
		AuthorizationCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_authorization_decisions_total",
				Help: "Access-control decisions by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		PhotoResolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_photo_resolutions_total",
				Help: "Profile photo resolutions by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_http_requests_total",
				Help: "HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "auth_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		gatherer: registry,
	}
}

// RecordAuth counts one login, registration or federation attempt.
func (m *Metrics) RecordAuth(flow, outcome string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(flow, outcome).Inc()
}

// RecordDecision counts one Authenticate or Authorize result.
func (m *Metrics) RecordDecision(stage, outcome string) {
	if m == nil {
		return
	}
	m.AuthorizationCalls.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) RecordPhoto(source, outcome string) {
	if m == nil {
		return
	}
	m.PhotoResolutions.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) RecordRequest(route, method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, status).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(seconds)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
