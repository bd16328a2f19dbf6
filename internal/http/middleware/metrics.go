// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus instrumentation for HTTP traffic. Labels use
// the registered Gin route (e.g. /webhooks/:provider/:tenantId) rather than
// the raw URL so cardinality stays bounded; unmatched requests fall back to
// the raw path. Webhook deliveries are additionally counted per provider.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// Status is left out to keep the histogram small.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_response_size_bytes",
			Help: "Size of HTTP responses in bytes.",
			Buckets: []float64{
				200, 500, 1 << 10, 2 << 10, 5 << 10,
				10 << 10, 25 << 10, 50 << 10,
				100 << 10, 250 << 10, 500 << 10,
				1 << 20, 2 << 20, 5 << 20,
			},
		},
		[]string{"method", "path"},
	)

	webhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Webhook deliveries by provider tag and response status.",
		},
		[]string{"provider", "status"},
	)

	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the per-tenant rate limiter.",
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, webhookDeliveries, rateLimitedTotal)
}

// Metrics instruments every request. Mount /metrics with promhttp.Handler().
//
// Unknown provider tags are recorded as "unknown" so a scanner probing
// random paths cannot grow the label set.
func Metrics(knownProviders ...string) gin.HandlerFunc {
	known := make(map[string]struct{}, len(knownProviders))
	for _, p := range knownProviders {
		known[p] = struct{}{}
	}
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		httpReqs.WithLabelValues(method, path, status).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		// Size is -1 when nothing was written (hijacked or status-only).
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}

		if provider := c.Param("provider"); provider != "" {
			if _, ok := known[provider]; !ok {
				provider = "unknown"
			}
			webhookDeliveries.WithLabelValues(provider, status).Inc()
		}
	}
}
