// Package metrics exposes Prometheus collectors for the announcement crawler.
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
	cacheLookupsTotal          *prometheus.CounterVec
	cacheWritesTotal           *prometheus.CounterVec
	cacheSweptTotal            prometheus.Counter
	remoteFetchTotal           *prometheus.CounterVec
	remoteFetchDurationSeconds *prometheus.HistogramVec
	listingPagesTotal          *prometheus.CounterVec
	recordsTotal               *prometheus.CounterVec
	downloadAttemptsTotal      *prometheus.CounterVec
	downloadBytesTotal         prometheus.Counter
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times; every Observe helper calls
// it, so explicit initialization is only needed to register collectors early.
func Init() {
	once.Do(func() {
		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "announcement_cache_lookups_total",
				Help: "Response cache lookups, labeled by request kind and result (hit, miss, expired, corrupt).",
			},
			[]string{"kind", "result"},
		)

		cacheWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "announcement_cache_writes_total",
				Help: "Response cache writes, labeled by request kind and result.",
			},
			[]string{"kind", "result"},
		)

		cacheSweptTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "announcement_cache_swept_total",
				Help: "Expired cache entries removed by sweeps or lazy deletion.",
			},
		)

		remoteFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "announcement_remote_fetch_total",
				Help: "Network fetches against the remote endpoints, labeled by request kind and result.",
			},
			[]string{"kind", "result"},
		)

		remoteFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "announcement_remote_fetch_duration_seconds",
				Help:    "Latency of network fetches against the remote endpoints.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"kind"},
		)

		listingPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "announcement_listing_pages_total",
				Help: "Listing pages processed, labeled by result.",
			},
			[]string{"result"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "announcement_records_total",
				Help: "Announcement records processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		downloadAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "announcement_download_attempts_total",
				Help: "Document download attempts, labeled by result (ok, transport, integrity).",
			},
			[]string{"result"},
		)

		downloadBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "announcement_download_bytes_total",
				Help: "Bytes of verified documents written to the destination tree.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "announcement_rate_limit_delay_seconds",
				Help:    "Time outbound requests spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of status server requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of status server latencies, labeled by method and route.",
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

// ObserveCacheLookup counts one cache lookup.
func ObserveCacheLookup(kind, result string) {
	Init()
	cacheLookupsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveCacheWrite counts one cache write.
func ObserveCacheWrite(kind string, err error) {
	Init()
	cacheWritesTotal.WithLabelValues(kind, resultLabel(err)).Inc()
}

// ObserveCacheSwept adds n removed entries.
func ObserveCacheSwept(n int) {
	Init()
	if n > 0 {
		cacheSweptTotal.Add(float64(n))
	}
}

// ObserveRemoteFetch records the outcome and latency of one network fetch.
func ObserveRemoteFetch(kind, result string, duration time.Duration) {
	Init()
	remoteFetchTotal.WithLabelValues(kind, result).Inc()
	remoteFetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveListingPage counts one listing page.
func ObserveListingPage(result string) {
	Init()
	listingPagesTotal.WithLabelValues(result).Inc()
}

// ObserveRecord counts one processed record.
func ObserveRecord(outcome string) {
	Init()
	recordsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDownloadAttempt counts one download attempt.
func ObserveDownloadAttempt(result string) {
	Init()
	downloadAttemptsTotal.WithLabelValues(result).Inc()
}

// ObserveDownloadBytes adds the size of a verified document.
func ObserveDownloadBytes(n int64) {
	Init()
	if n > 0 {
		downloadBytesTotal.Add(float64(n))
	}
}

// ObserveRateLimitDelay records time spent waiting for a rate limit token.
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
