// Package metrics has the prometheus metrics of the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MethodDuration observes JMAP method call durations, partitioned by
	// method name and result ("ok" or the method level error type).
	MethodDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jmapd_method_duration_seconds",
			Help:    "JMAP method call duration and result.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.100, 0.5, 1, 5, 10},
		},
		[]string{"method", "result"},
	)

	// HTTPRequests counts requests to the JMAP endpoints by handler and
	// HTTP status code.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jmapd_http_requests_total",
			Help: "HTTP requests by handler and status code.",
		},
		[]string{"handler", "code"},
	)

	// AuthFailures counts failed authentication attempts.
	AuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jmapd_authentication_failures_total",
			Help: "Failed HTTP basic authentication attempts.",
		},
	)
)
