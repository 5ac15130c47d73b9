package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// unmatchedRoute labels requests no route matched, keeping raw paths (and the
// ids inside them) out of label values.
const unmatchedRoute = "unmatched"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "setlogs",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, status and outcome code.",
	}, []string{"method", "route", "status", "outcome"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "setlogs",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	httpInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "setlogs",
		Subsystem: "http",
		Name:      "requests_inflight",
		Help:      "Requests currently being served.",
	})

	httpResponseBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "setlogs",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "Response body size.",
		Buckets:   prometheus.ExponentialBuckets(128, 4, 8), // 128B..2MiB
	}, []string{"method", "route"})

	// httpReplays counts mutations answered from the idempotency ledger.
	httpReplays = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "setlogs",
		Subsystem: "http",
		Name:      "idempotent_replays_total",
		Help:      "Keyed mutations served from a stored response.",
	}, []string{"route"})
)

// Metrics records request count, latency, size and in-flight gauge per route.
// The outcome label is the error code set by SetOutcome, "replayed" or "ok",
// so stale-lock and key-conflict rates can be graphed per endpoint.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method
		outcome := Outcome(c)

		httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status()), outcome).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if n := c.Writer.Size(); n >= 0 {
			httpResponseBytes.WithLabelValues(method, route).Observe(float64(n))
		}
		if outcome == "replayed" {
			httpReplays.WithLabelValues(route).Inc()
		}
	}
}
