package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gin-gonic/gin"
)

const RequestIDHeader = "X-Request-ID"

type contextKey struct{}

var RequestIDContextKey = contextKey{}

// RequestID generates and injects a unique request ID, and logs structured
// start/end lines for every request.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		c.Writer.Header().Set(RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), RequestIDContextKey, requestID))

		startedAt := time.Now()
		logger := slog.With("request_id", requestID)
		logger.Info("request started",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)

		c.Next()

		logger.Info("request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(startedAt).Milliseconds(),
		)
	}
}

// GetRequestID returns the request ID injected by RequestID, or "" if
// called outside that middleware.
func GetRequestID(c *gin.Context) string {
	if v, ok := c.Request.Context().Value(RequestIDContextKey).(string); ok {
		return v
	}
	return ""
}
