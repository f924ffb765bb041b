// Package metrics exposes Prometheus collectors for the ghast service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	referenceCacheTotal        *prometheus.CounterVec
	referenceFetchTotal        *prometheus.CounterVec
	referenceFetchDuration     *prometheus.HistogramVec
	ingestionsTotal            *prometheus.CounterVec
	notificationsTotal         *prometheus.CounterVec
	notificationQueueDepth     prometheus.Gauge
	rateLimitDelaySeconds      prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		referenceCacheTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghast_reference_cache_total",
				Help: "Reference cache lookups, labeled by result (hit or miss).",
			},
			[]string{"result"},
		)

		referenceFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghast_reference_fetch_total",
				Help: "Remote reference fetches, labeled by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		referenceFetchDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ghast_reference_fetch_duration_seconds",
				Help:    "Histogram of reference fetch latencies, labeled by kind.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"kind"},
		)

		ingestionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghast_ingestions_total",
				Help: "Ingestions processed, labeled by flow (create or reaction) and outcome.",
			},
			[]string{"flow", "outcome"},
		)

		notificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghast_notifications_total",
				Help: "Outbound notifications, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		notificationQueueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ghast_notification_queue_depth",
				Help: "Notifications waiting for a worker.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ghast_fetch_rate_limit_delay_seconds",
				Help:    "Histogram of time outbound fetches spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCacheLookup counts a reference cache hit or miss.
func ObserveCacheLookup(hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	referenceCacheTotal.WithLabelValues(result).Inc()
}

// ObserveFetch records one remote reference fetch.
func ObserveFetch(kind, outcome string, duration time.Duration) {
	Init()
	referenceFetchTotal.WithLabelValues(kind, outcome).Inc()
	referenceFetchDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveIngestion counts a finished ingestion.
func ObserveIngestion(flow, outcome string) {
	Init()
	ingestionsTotal.WithLabelValues(flow, outcome).Inc()
}

// ObserveNotification counts a notification outcome (queued, dropped,
// delivered, failed).
func ObserveNotification(outcome string) {
	Init()
	notificationsTotal.WithLabelValues(outcome).Inc()
}

// SetQueueDepth reports the number of pending notifications.
func SetQueueDepth(depth int) {
	Init()
	notificationQueueDepth.Set(float64(depth))
}

// ObserveRateLimitDelay records how long a fetch waited for a rate limit token.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	rateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
