// Package metrics exposes Prometheus collectors for the downloader and the
// optional HTTP listener that serves them.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal                 *prometheus.CounterVec
	robotsFallbackTotal        *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge
	batchesTotal               *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsdl_pages_total",
				Help: "Pages processed, labeled by site and terminal status.",
			},
			[]string{"site", "status"},
		)

		robotsFallbackTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsdl_robots_fallback_total",
				Help: "Hosts whose robots rules could not be loaded and fell back to allow-all.",
			},
			[]string{"site"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "newsdl_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host pacer.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "newsdl_active_workers",
				Help: "Number of fetch workers currently running.",
			},
		)

		batchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsdl_batches_total",
				Help: "Download batches finished, labeled by outcome.",
			},
			[]string{"outcome"},
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

// SanitizeSite extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// The observers below are no-ops until Init has been called so that library
// code can report unconditionally.

// ObservePage counts one terminal per-URL outcome.
func ObservePage(rawURL, status string) {
	if pagesTotal == nil {
		return
	}
	pagesTotal.WithLabelValues(SanitizeSite(rawURL), status).Inc()
}

// ObserveRobotsFallback counts a host whose robots rules fell back to allow-all.
func ObserveRobotsFallback(host string) {
	if robotsFallbackTotal == nil {
		return
	}
	robotsFallbackTotal.WithLabelValues(SanitizeSite(host)).Inc()
}

// ObserveRateLimitDelay records the duration of a pacer wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	if rateLimitDelaySeconds == nil {
		return
	}
	rateLimitDelaySeconds.WithLabelValues(SanitizeSite(host)).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Inc()
	}
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Dec()
	}
}

// ObserveBatch counts a finished batch. outcome is "complete" or "partial".
func ObserveBatch(outcome string) {
	if batchesTotal == nil {
		return
	}
	batchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
