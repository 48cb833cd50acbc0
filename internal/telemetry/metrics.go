package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus collectors for the request path.
var (
	// HTTPRequests counts completed HTTP requests by method, route
	// pattern, and status code.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentfront",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	// UpstreamDuration observes the latency of TypingMind chat calls.
	UpstreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "agentfront",
			Name:      "upstream_request_duration_seconds",
			Help:      "Duration of upstream TypingMind requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// RateLimitDenied counts quota denials by window scope.
	RateLimitDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentfront",
			Name:      "rate_limit_denied_total",
			Help:      "Total number of requests denied by the rate limiter",
		},
		[]string{"scope"},
	)

	// ChatForwarded counts chat requests that reached the upstream, by
	// terminal outcome.
	ChatForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentfront",
			Name:      "chat_forwarded_total",
			Help:      "Total number of chat requests forwarded upstream",
		},
		[]string{"outcome"},
	)
)

// MetricsHandler returns the Prometheus exposition endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
