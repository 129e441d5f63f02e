// Package telemetry provides observability primitives for the control plane.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the control plane.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ActiveRequests   prometheus.Gauge
	DaemonDuration   *prometheus.HistogramVec
	DaemonErrors     prometheus.Counter
	DaemonUp         prometheus.Gauge
	RateLimitRejects *prometheus.CounterVec
	TokensProcessed  *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proxypal",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "proxypal",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "proxypal",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		DaemonDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "proxypal",
			Name:                            "daemon_duration_seconds",
			Help:                            "Forwarding daemon call duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"provider", "model"}),

		DaemonErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "proxypal",
			Name:      "daemon_errors_total",
			Help:      "Total failed calls to the forwarding daemon.",
		}),

		DaemonUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "proxypal",
			Name:      "daemon_up",
			Help:      "Whether the forwarding daemon process is running (1) or stopped (0).",
		}),

		RateLimitRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proxypal",
			Name:      "ratelimit_rejects_total",
			Help:      "Total rate limit rejections.",
		}, []string{"type"}),

		TokensProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proxypal",
			Name:      "tokens_processed_total",
			Help:      "Total tokens relayed through the control plane.",
		}, []string{"model", "type"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.DaemonDuration,
		m.DaemonErrors,
		m.DaemonUp,
		m.RateLimitRejects,
		m.TokensProcessed,
	)

	return m
}
