package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "shopgenie"

// serverMetrics holds the Prometheus instruments owned by a Server. Each
// server registers against its own registry so tests stay hermetic.
type serverMetrics struct {
	// httpRequests counts requests by method, route, and status code.
	httpRequests *prometheus.CounterVec
	// httpDuration tracks request latency by method and route.
	httpDuration *prometheus.HistogramVec
	// queryRequests counts retrieval queries by modality and outcome.
	queryRequests *prometheus.CounterVec
	// queryResults tracks how many products each query returned.
	queryResults prometheus.Histogram
	// chatTurns counts chat turns by outcome.
	chatTurns *prometheus.CounterVec
	// cartOps counts cart operations by action and outcome.
	cartOps *prometheus.CounterVec
}

// newServerMetrics registers the server's instruments with reg.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)
	return &serverMetrics{
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route, and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		queryRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Retrieval queries by modality (text, image) and outcome (ok, error).",
		}, []string{"modality", "outcome"}),
		queryResults: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "query",
			Name:      "results_returned",
			Help:      "Number of products returned per query.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
		}),
		chatTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Chat turns by outcome (ok, error).",
		}, []string{"outcome"}),
		cartOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cart",
			Name:      "operations_total",
			Help:      "Cart operations by action and outcome.",
		}, []string{"action", "outcome"}),
	}
}
