package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scuba_search",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scuba_search",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10},
	}, []string{"method", "path"})

	BackendRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scuba_search",
		Name:      "backend_requests_total",
		Help:      "Total requests to the search backend by engine, category and result status.",
	}, []string{"engine", "category", "status"})

	BackendRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scuba_search",
		Name:      "backend_request_duration_seconds",
		Help:      "Search backend request duration in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 6, 8, 10},
	}, []string{"engine"})

	BackendAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "scuba_search",
		Name:      "backend_available",
		Help:      "Whether a backend is available (1) or blocked by circuit breaker (0).",
	}, []string{"engine"})

	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scuba_search",
		Name:      "cache_hits_total",
		Help:      "Total cache hits by layer (tab, materialized, response).",
	}, []string{"layer"})

	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scuba_search",
		Name:      "cache_misses_total",
		Help:      "Total cache misses by layer (tab, materialized, response).",
	}, []string{"layer"})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scuba_search",
		Name:      "active_sessions",
		Help:      "Number of live tab search sessions.",
	})

	SearchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scuba_search",
		Name:      "searches_total",
		Help:      "Top-level searches by outcome.",
	}, []string{"outcome"})

	StaleResponsesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scuba_search",
		Name:      "stale_responses_dropped_total",
		Help:      "Category responses not rendered because they were no longer relevant, by reason.",
	}, []string{"reason"})

	EventSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scuba_search",
		Name:      "event_subscribers",
		Help:      "Connected websocket event subscribers.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		BackendRequestsTotal,
		BackendRequestDuration,
		BackendAvailable,
		CacheHitsTotal,
		CacheMissesTotal,
		ActiveSessions,
		SearchesTotal,
		StaleResponsesDropped,
		EventSubscribers,
	)
}
