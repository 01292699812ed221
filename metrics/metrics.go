// Package metrics holds the Prometheus collectors for the web client.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	cacheReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "civicsync",
			Subsystem: "cache",
			Name:      "reads_total",
			Help:      "Cache reads by resource and result (hit, miss, shared, discarded).",
		},
		[]string{"resource", "result"},
	)

	cacheFetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "civicsync",
			Subsystem: "cache",
			Name:      "fetch_errors_total",
			Help:      "Fetches that failed after the immediate retry.",
		},
		[]string{"resource"},
	)

	cacheInvalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "civicsync",
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Cache entries marked stale.",
		},
		[]string{"resource"},
	)

	mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "civicsync",
			Subsystem: "mutations",
			Name:      "total",
			Help:      "Mutations by action and outcome (success, failed, cancelled, rejected).",
		},
		[]string{"action", "outcome"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "civicsync",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path", "status"},
	)

	activeWorkspaces = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "civicsync",
			Subsystem: "session",
			Name:      "workspaces",
			Help:      "Per-session workspaces currently held in memory.",
		},
	)
)

func init() {
	Registry.MustRegister(
		cacheReads,
		cacheFetchErrors,
		cacheInvalidations,
		mutations,
		httpDuration,
		activeWorkspaces,
	)
}

// Handler exposes the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordCacheRead(resource, result string) {
	cacheReads.WithLabelValues(resource, result).Inc()
}

func RecordFetchError(resource string) {
	cacheFetchErrors.WithLabelValues(resource).Inc()
}

func RecordInvalidation(resource string) {
	cacheInvalidations.WithLabelValues(resource).Inc()
}

func RecordMutation(action, outcome string) {
	mutations.WithLabelValues(action, outcome).Inc()
}

func RecordHTTPRequest(method, path, status string, d time.Duration) {
	httpDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}

func SetWorkspaces(n int) {
	activeWorkspaces.Set(float64(n))
}
