// Package metrics defines the custom Prometheus metrics of the identity API.
// HTTP request metrics come from echoprometheus; these cover the
// authentication flows themselves.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "identity"

// LoginsTotal counts login attempts.
// Labels:
//   - method: "password" or "external"
//   - result: "success" or the error class (e.g. "invalid_credentials", "blocked")
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by method and result.",
	},
	[]string{"method", "result"},
)

// TokenRefreshesTotal counts refresh token rotations.
var TokenRefreshesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refreshes_total",
		Help:      "Total number of refresh token rotations, by result.",
	},
	[]string{"result"},
)

// ExternalCallbacksTotal counts provider callbacks.
// Labels:
//   - client: the auth client uri
//   - result: "success" or the error class
var ExternalCallbacksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "external_callbacks_total",
		Help:      "Total number of external provider callbacks, by client and result.",
	},
	[]string{"client", "result"},
)

// ExternalCallbackDuration measures a callback from code exchange to redirect.
var ExternalCallbackDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "external_callback_duration_seconds",
		Help:      "Duration of external provider callbacks.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"client"},
)

// RateLimitedTotal counts requests rejected by the rate limiter.
var RateLimitedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Total number of requests rejected by the rate limiter, by scope.",
	},
	[]string{"scope"},
)
