// Package metrics exposes Prometheus collectors for the harvest service.
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
	fetchAttemptsTotal         *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	entriesTotal               *prometheus.CounterVec
	batchesTotal               *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	strategyCooldownsTotal     *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedharvest_fetch_attempts_total",
				Help: "Total fetch attempts, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedharvest_fetch_bytes_total",
				Help: "Total bytes fetched, labeled by strategy.",
			},
			[]string{"strategy"},
		)

		entriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedharvest_entries_total",
				Help: "Total feed entries processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		batchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedharvest_batches_total",
				Help: "Total batches processed, labeled by status.",
			},
			[]string{"status"},
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

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "feedharvest_active_workers",
				Help: "Number of workers currently processing an entry.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "feedharvest_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations per strategy.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"strategy"},
		)

		strategyCooldownsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedharvest_strategy_cooldowns_total",
				Help: "Total times a strategy entered cooldown after repeated failures.",
			},
			[]string{"strategy"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt. Outcome is "success" or a failure
// kind.
func ObserveFetch(strategy, outcome string, bytesFetched int) {
	fetchAttemptsTotal.WithLabelValues(strategy, outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(strategy).Add(float64(bytesFetched))
	}
}

// ObserveEntry records the terminal outcome of one feed entry.
func ObserveEntry(outcome string) {
	entriesTotal.WithLabelValues(outcome).Inc()
}

// ObserveBatch increments the batch counter for the given status.
func ObserveBatch(status string) {
	batchesTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(strategy string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(strategy).Observe(duration.Seconds())
}

// ObserveCooldown counts a strategy entering cooldown.
func ObserveCooldown(strategy string) {
	strategyCooldownsTotal.WithLabelValues(strategy).Inc()
}
