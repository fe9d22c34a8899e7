// Package httpapi assembles the gin router: middleware chain, route
// table, and the handler structs that wrap the orchestrator.
package httpapi

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/yourorg/csv-ingest/internal/config"
	"github.com/yourorg/csv-ingest/internal/httpapi/handlers"
	"github.com/yourorg/csv-ingest/internal/httpapi/middleware"
	"github.com/yourorg/csv-ingest/internal/orchestrator"
	"github.com/yourorg/csv-ingest/internal/relstore"
	"github.com/yourorg/csv-ingest/internal/sheetsource"
)

// SetupRouter builds the gin engine with every middleware and route
// mounted. sheets may be nil if Google Sheets ingestion is not configured.
func SetupRouter(cfg *config.Config, orch *orchestrator.Orchestrator, store relstore.Store, sheets *sheetsource.Fetcher) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		slog.Error("failed to set trusted proxies", "error", err)
	}
	// MaxMultipartMemory controls when gin spills uploaded files to disk;
	// kept well below MaxUploadBytes to avoid OOM under concurrent uploads.
	router.MaxMultipartMemory = 8 << 20

	router.Use(middleware.CORS(cfg))
	router.Use(middleware.RequestID())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.ErrorHandler())

	router.GET("/health", handlers.HealthHandler)
	router.GET("/metrics", handlers.MetricsHandler)

	ingestionHandler := handlers.NewIngestionHandler(orch, cfg, sheets)
	schemaHandler := handlers.NewSchemaHandler(store)

	ingestRateLimit := middleware.RateLimit(cfg.IngestRateLimit, cfg.RateLimitWindow)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/schemas", schemaHandler.Create)
		v1.GET("/schemas/:id", schemaHandler.Get)

		v1.POST("/ingestions", ingestRateLimit, ingestionHandler.StartFromUpload)
		v1.POST("/ingestions/sheet", ingestRateLimit, ingestionHandler.StartFromSheet)
		v1.GET("/ingestions/:id", ingestionHandler.GetIngestion)
		v1.GET("/ingestions/:id/decisions", ingestionHandler.ListDecisions)
		v1.POST("/ingestions/:id/resume", ingestionHandler.ResumeReview)
		v1.GET("/ingestions/:id/output", ingestionHandler.FetchOutput)
	}

	return router
}
