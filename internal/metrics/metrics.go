// Package metrics exposes Prometheus collectors for the crawl pipeline.
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

// Fetch outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeRetry  = "retry"
	OutcomeFailed = "failed"
)

var (
	upstreamRequestsTotal          *prometheus.CounterVec
	upstreamRequestDurationSeconds *prometheus.HistogramVec
	recordsTotal                   *prometheus.CounterVec
	archivesTotal                  *prometheus.CounterVec
	activeWorkers                  prometheus.Gauge
	pageDelaySeconds               prometheus.Histogram
	httpRequestsTotal              *prometheus.CounterVec
	httpRequestDurationSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		upstreamRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pncp_upstream_requests_total",
				Help: "Upstream API requests, labeled by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		)

		upstreamRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pncp_upstream_request_duration_seconds",
				Help:    "Histogram of upstream request latencies, labeled by endpoint.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"endpoint"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pncp_records_total",
				Help: "Records seen by the crawl, labeled by table and result (new or duplicate).",
			},
			[]string{"table", "result"},
		)

		archivesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pncp_archives_total",
				Help: "Archive inspections, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pncp_active_workers",
				Help: "Number of pool workers currently running a task.",
			},
		)

		pageDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pncp_page_delay_seconds",
				Help:    "Histogram of waits enforced between search page requests.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
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

// ObserveUpstream records one upstream request attempt.
func ObserveUpstream(endpoint, outcome string, duration time.Duration) {
	Init()
	upstreamRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	upstreamRequestDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveRecords adds n records for table with the given result.
func ObserveRecords(table, result string, n int) {
	if n <= 0 {
		return
	}
	Init()
	recordsTotal.WithLabelValues(table, result).Add(float64(n))
}

// ObserveArchive counts one archive inspection.
func ObserveArchive(outcome string) {
	Init()
	archivesTotal.WithLabelValues(outcome).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObservePageDelay records the duration of an inter-page wait.
func ObservePageDelay(duration time.Duration) {
	Init()
	pageDelaySeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
