// Package metrics defines the custom Prometheus metrics of the portal client.
// It is the single source of truth for metric names, labels, and help strings.
//
// All metrics are registered with the default Prometheus registry on package
// initialisation via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "schoolms"

// ── Request metrics ───────────────────────────────────────────────────────────

// RequestsTotal counts API calls issued by the request executor.
// Labels:
//   - method: HTTP method
//   - outcome: "2xx", "4xx", "5xx" or "network_error"
var RequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "Total number of API requests, by method and outcome.",
	},
	[]string{"method", "outcome"},
)

// RequestDuration measures round-trip latency of a single API call.
var RequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "Duration of API requests from send to fully read body.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method"},
)

// ── Session metrics ───────────────────────────────────────────────────────────

// RefreshTotal counts token refresh decisions.
// Label:
//   - result: "success", "failure", "shared" (joined an in-flight refresh),
//     "skipped" (token already rotated) or "no_refresh_token"
var RefreshTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refresh_total",
		Help:      "Total number of token refresh outcomes.",
	},
	[]string{"result"},
)

// LoginsTotal counts login attempts.
// Label:
//   - result: "success", "demo", "invalid_credentials", "two_factor" or "error"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// ── Cache metrics ─────────────────────────────────────────────────────────────

// CacheReadsTotal counts cache reads.
// Label:
//   - result: "hit", "miss", "stale" or "error"
var CacheReadsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_reads_total",
		Help:      "Total number of query cache reads, by result.",
	},
	[]string{"result"},
)

// CacheEntries tracks the number of live cache entries.
var CacheEntries = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_entries",
		Help:      "Current number of entries held by the query cache.",
	},
)

// CacheInvalidationsTotal counts entries marked stale, by tag.
var CacheInvalidationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_invalidated_entries_total",
		Help:      "Total number of cache entries marked stale, by invalidated tag.",
	},
	[]string{"tag"},
)

// NotifyQueueDepth tracks pending subscriber notifications per dispatcher worker.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var NotifyQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "notify_queue_depth",
		Help:      "Current number of notifications pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)
