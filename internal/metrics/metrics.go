// Package metrics defines and registers the Prometheus metrics for the auth
// client and the reference identity API. It is the single source of truth for
// metric names, labels, and help strings.
//
// All vectors register with the default Prometheus registry on package init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "authclient"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// ── Transport metrics ─────────────────────────────────────────────────────────

// ClientRequestsTotal counts API calls made by the transport client.
// Labels:
//   - method: HTTP method
//   - path:   request path without query (e.g. "/auth/login")
//   - status: HTTP status, "0" for network failures, "408" for timeouts
var ClientRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "client_requests_total",
		Help:      "Total number of API requests issued by the transport client.",
	},
	[]string{"method", "path", "status"},
)

// ClientRequestDuration measures API call latency including body decoding.
var ClientRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "client_request_duration_seconds",
		Help:      "Duration of API requests issued by the transport client.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path"},
)

// ── Session metrics ───────────────────────────────────────────────────────────

// AuthOperationsTotal counts authentication service operations.
// Labels:
//   - operation: e.g. "login", "register", "google", "setup_mfa"
//   - result:    "success" or "failure"
var AuthOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_operations_total",
		Help:      "Total number of authentication operations, by operation and result.",
	},
	[]string{"operation", "result"},
)

// RefreshOutcomesTotal counts token refreshes by outcome
// ("succeeded", "no_credentials", "rejected", "network_failure", "storage_failure").
var RefreshOutcomesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_outcomes_total",
		Help:      "Total number of token refreshes, by outcome.",
	},
	[]string{"outcome"},
)

// StorageOperationsTotal counts secure-store calls.
// Labels:
//   - op:     "get", "set", "remove", "clear"
//   - result: "success", "failure" or "miss"
var StorageOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "storage_operations_total",
		Help:      "Total number of secure storage operations.",
	},
	[]string{"op", "result"},
)

// ── Reference API metrics ─────────────────────────────────────────────────────

// IdentityOperationsTotal counts server-side identity operations.
var IdentityOperationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "mockapi",
		Name:      "identity_operations_total",
		Help:      "Total number of identity operations handled by the reference API.",
	},
	[]string{"operation", "result"},
)

// NotificationsQueueDepth tracks pending notifications per dispatcher worker.
var NotificationsQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "mockapi",
		Name:      "notifications_queue_depth",
		Help:      "Current number of notifications pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// NotificationsSentTotal counts delivered notifications.
var NotificationsSentTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "mockapi",
		Name:      "notifications_sent_total",
		Help:      "Total number of notifications delivered, by kind and result.",
	},
	[]string{"kind", "result"},
)

// Result maps an error to the result label.
func Result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

// ── HTTP server metrics ───────────────────────────────────────────────────────

// HTTPRequestsTotal counts requests served by the reference API.
// Labels:
//   - method: HTTP method
//   - route:  matched route pattern (e.g. "/auth/login"), "unmatched" otherwise
//   - status: response status code
var HTTPRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "mockapi",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests served by the reference API.",
	},
	[]string{"method", "route", "status"},
)

// HTTPRequestDuration measures request handling latency.
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "mockapi",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests served by the reference API.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route"},
)
