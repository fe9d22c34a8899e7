package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type rateLimitEntry struct {
	count       int
	windowStart time.Time
}

// RateLimit enforces a fixed-window, per-IP rate limit on ingestion starts
// (the only endpoint expensive enough to need one: it writes a raw blob
// and spins up the whole pipeline). Returns 429 with a Retry-After header.
//
// Tracking is in-memory and per-process, not distributed across instances.
func RateLimit(limit int, window time.Duration) gin.HandlerFunc {
	var mu sync.Mutex
	hits := make(map[string]rateLimitEntry)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			mu.Lock()
			now := time.Now()
			for ip, entry := range hits {
				if now.Sub(entry.windowStart) >= window {
					delete(hits, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		mu.Lock()
		entry := hits[ip]
		if entry.windowStart.IsZero() || now.Sub(entry.windowStart) >= window {
			entry.windowStart = now
			entry.count = 0
		}

		if entry.count >= limit {
			remaining := window - now.Sub(entry.windowStart)
			mu.Unlock()

			retryAfter := int(math.Ceil(remaining.Seconds()))
			if retryAfter < 0 {
				retryAfter = 0
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorPayload{
				Error: "rate limit exceeded, retry later",
			})
			return
		}

		entry.count++
		hits[ip] = entry
		mu.Unlock()

		c.Next()
	}
}
