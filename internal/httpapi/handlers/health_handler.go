package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourorg/csv-ingest/internal/httpapi/middleware"
)

// HealthHandler handles GET /health.
func HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// MetricsHandler handles GET /metrics.
func MetricsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, middleware.Snapshot())
}
