// Package metrics exposes Prometheus collectors for chat, providers and HTTP.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aif_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aif_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	chatRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aif_chat_requests_total",
			Help: "Chat requests by outcome",
		},
		[]string{"provider", "outcome"},
	)

	chatDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aif_chat_duration_seconds",
			Help:    "Time from chat start to answer emission",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)

	historyWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aif_chat_history_write_failures_total",
			Help: "Chat turns that could not be persisted after retries",
		},
	)

	providerHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aif_provider_healthy",
			Help: "1 if the provider's last health probe succeeded",
		},
		[]string{"provider"},
	)

	modelSelectionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aif_model_selection_total",
			Help: "Model selection updates",
		},
		[]string{"provider", "selected"},
	)
)

// Chat outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected" // failed before any output
)

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status/100)+"xx").Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordChat records a chat request outcome.
func RecordChat(provider, outcome string, duration time.Duration) {
	if provider == "" {
		provider = "unknown"
	}
	chatRequestsTotal.WithLabelValues(provider, outcome).Inc()
	if outcome == OutcomeOK {
		chatDuration.WithLabelValues(provider).Observe(duration.Seconds())
	}
}

func RecordHistoryWriteFailure() { historyWriteFailures.Inc() }

// SetProviderHealth records the result of a provider health probe.
func SetProviderHealth(provider string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	providerHealthy.WithLabelValues(provider).Set(v)
}

func ModelSelection(provider string, selected bool) {
	modelSelectionTotal.WithLabelValues(provider, strconv.FormatBool(selected)).Inc()
}

// Handler returns the Prometheus metrics handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
