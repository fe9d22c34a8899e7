package middleware

import (
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// Metrics holds simple in-process request counters, a lightweight
// alternative to wiring a full metrics backend.
type Metrics struct {
	totalRequests atomic.Uint64
	totalLatency  atomic.Uint64 // sum of request durations in milliseconds
	totalErrors   atomic.Uint64
}

var defaultMetrics = &Metrics{}

// MetricsMiddleware records request count, latency, and error rate.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start).Milliseconds()
		defaultMetrics.totalRequests.Add(1)
		defaultMetrics.totalLatency.Add(uint64(duration))
		if c.Writer.Status() >= 500 {
			defaultMetrics.totalErrors.Add(1)
		}
	}
}

// Snapshot returns the current metrics as a JSON-friendly map.
func Snapshot() map[string]any {
	requests := defaultMetrics.totalRequests.Load()
	latencySum := defaultMetrics.totalLatency.Load()
	avgMs := float64(0)
	if requests > 0 {
		avgMs = float64(latencySum) / float64(requests)
	}
	return map[string]any{
		"total_requests": requests,
		"total_errors":   defaultMetrics.totalErrors.Load(),
		"avg_latency_ms": avgMs,
	}
}
