// Package metrics exposes Prometheus collectors for the audit service.
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
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	jobsSubmittedTotal         prometheus.Counter
	jobsTotal                  *prometheus.CounterVec
	jobsInStore                prometheus.Gauge
	jobsSweptTotal             prometheus.Counter
	activeWorkers              prometheus.Gauge
	extractionDurationSeconds  *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	assemblerFallbacksTotal    *prometheus.CounterVec
	insightRequestsTotal       *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 45},
			},
			[]string{"method", "route"},
		)

		jobsSubmittedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "seoaudit_jobs_submitted_total",
				Help: "Total number of crawl jobs accepted.",
			},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seoaudit_jobs_total",
				Help: "Total number of jobs that reached a terminal state, labeled by status.",
			},
			[]string{"status"},
		)

		jobsInStore = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "seoaudit_jobs_in_store",
				Help: "Number of job records currently held.",
			},
		)

		jobsSweptTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "seoaudit_jobs_swept_total",
				Help: "Total number of terminal jobs removed by the retention sweep.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "seoaudit_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		extractionDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seoaudit_extraction_duration_seconds",
				Help:    "Histogram of page extraction durations, labeled by backend and outcome.",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 45, 60},
			},
			[]string{"backend", "outcome"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seoaudit_rate_limit_delays_seconds",
				Help:    "Histogram of per-host rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		assemblerFallbacksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seoaudit_assembler_fallbacks_total",
				Help: "Total number of audits served from the simulator, labeled by reason.",
			},
			[]string{"reason"},
		)

		insightRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seoaudit_insight_requests_total",
				Help: "Total number of AI insight requests, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
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

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveJobSubmitted counts an accepted submission.
func ObserveJobSubmitted() {
	jobsSubmittedTotal.Inc()
}

// ObserveJob increments the job counter for the given terminal status.
func ObserveJob(status string) {
	jobsTotal.WithLabelValues(status).Inc()
}

// SetJobsInStore records the current store size.
func SetJobsInStore(n int) {
	jobsInStore.Set(float64(n))
}

// ObserveSweep counts jobs removed by one retention pass.
func ObserveSweep(removed int) {
	if removed > 0 {
		jobsSweptTotal.Add(float64(removed))
	}
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveExtraction records how long one extraction took.
func ObserveExtraction(backend, outcome string, duration time.Duration) {
	extractionDurationSeconds.WithLabelValues(backend, outcome).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveFallback counts a simulated audit served instead of a real one.
func ObserveFallback(reason string) {
	assemblerFallbacksTotal.WithLabelValues(reason).Inc()
}

// ObserveInsight counts one AI insight request.
func ObserveInsight(provider, outcome string) {
	insightRequestsTotal.WithLabelValues(provider, outcome).Inc()
}
