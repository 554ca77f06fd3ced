// Package metrics provides Prometheus metrics for the MemoryTau API client.
// It tracks API call counts and latencies, memoization cache performance,
// rate limiter waits, and continuation traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const (
	Namespace = "memorytau"
)

var (
	// APIRequestsTotal counts API round trips by action and status
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "api_requests_total",
		Help:      "Total number of MediaWiki API requests",
	}, []string{"action", "status"})

	// APIRequestDuration measures API call latency distribution by action
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "api_request_duration_seconds",
		Help:      "MediaWiki API request latency distribution by action",
		Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"action"})

	// CacheHits counts memoization cache hits
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "cache_hits_total",
		Help:      "Total memoization cache hit count",
	})

	// CacheMisses counts memoization cache misses
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "cache_misses_total",
		Help:      "Total memoization cache miss count",
	})

	// RateLimitWaits counts requests that blocked on the rate limiter
	RateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "rate_limit_waits_total",
		Help:      "Requests that waited for the minimum-interval rate limiter",
	})

	// ContinuationRequests counts follow-up requests issued while draining
	// continued queries
	ContinuationRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "continuation_requests_total",
		Help:      "Follow-up requests issued to drain continued query results",
	})

	// RedirectsFollowed counts redirects resolved during page resolution
	RedirectsFollowed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "redirects_followed_total",
		Help:      "Redirects transparently followed during page resolution",
	})

	// PageResolutions counts page resolutions by outcome
	PageResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "page_resolutions_total",
		Help:      "Page resolutions by outcome",
	}, []string{"status"})
)

// RecordAPIRequest records a completed API round trip with its duration and status
func RecordAPIRequest(action string, duration float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	APIRequestsTotal.WithLabelValues(action, status).Inc()
	APIRequestDuration.WithLabelValues(action).Observe(duration)
}

// RecordCacheAccess records a memoization cache hit or miss
func RecordCacheAccess(hit bool) {
	if hit {
		CacheHits.Inc()
	} else {
		CacheMisses.Inc()
	}
}

// RecordPageResolution records a page resolution outcome
func RecordPageResolution(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	PageResolutions.WithLabelValues(status).Inc()
}
