package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Grants recorded on dealerdesk_issuer_tokens_issued_total.
const (
	grantLogin    = "login"
	grantRefresh  = "refresh"
	grantRegister = "register"
)

// Metrics are the issuer's Prometheus collectors.
type Metrics struct {
	issued   *prometheus.CounterVec
	rejected *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the issuer collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		issued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealerdesk_issuer_tokens_issued_total",
				Help: "Token pairs issued by grant",
			},
			[]string{"grant"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealerdesk_issuer_rejections_total",
				Help: "Auth requests rejected by endpoint and status code",
			},
			[]string{"endpoint", "code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dealerdesk_issuer_http_request_duration_seconds",
				Help:    "Duration of issuer HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"code", "method"},
		),
	}
	reg.MustRegister(m.issued, m.rejected, m.duration)
	return m
}

// instrument records request durations for h.
func (m *Metrics) instrument(h http.Handler) http.Handler {
	return promhttp.InstrumentHandlerDuration(m.duration, h)
}

// MetricsHandler serves the registry in the Prometheus text format.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
