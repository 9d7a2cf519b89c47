// Package metrics provides Prometheus metrics for the indexfs mount.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache lookup results.
const (
	LookupHit      = "hit"
	LookupNegative = "negative_hit"
	LookupMiss     = "miss"
)

var (
	// Upstream request metrics
	upstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexfs_upstream_requests_total",
			Help: "Total number of requests sent to the origin",
		},
		[]string{"method", "code"},
	)

	upstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "indexfs_upstream_request_duration_seconds",
			Help:    "Origin request duration in seconds, until response headers",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	upstreamRedirectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "indexfs_upstream_redirects_total",
			Help: "Total number of same-origin redirects followed",
		},
	)

	// Cache metrics
	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexfs_cache_lookups_total",
			Help: "Cache lookups by cache and result",
		},
		[]string{"cache", "result"},
	)

	// Read metrics
	readBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "indexfs_read_bytes_total",
			Help: "Total bytes returned by range reads",
		},
	)

	workersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "indexfs_upstream_workers",
			Help: "Number of upstream worker connections created",
		},
	)
)

// RecordUpstream records one origin round trip. code is 0 for transport failures.
func RecordUpstream(method string, code int, duration time.Duration) {
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	upstreamRequestsTotal.WithLabelValues(method, label).Inc()
	upstreamRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordRedirect counts a followed redirect.
func RecordRedirect() {
	upstreamRedirectsTotal.Inc()
}

// RecordCacheLookup records a cache lookup result.
func RecordCacheLookup(cache, result string) {
	cacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// RecordReadBytes adds n bytes to the read counter.
func RecordReadBytes(n int) {
	readBytesTotal.Add(float64(n))
}

// SetWorkers sets the number of live upstream workers.
func SetWorkers(n int) {
	workersActive.Set(float64(n))
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
