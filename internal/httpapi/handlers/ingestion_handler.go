// Package handlers implements the gin HTTP handlers wrapping the
// orchestrator's operations: one handler struct per resource area,
// constructed with its dependencies and mounted by the router.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourorg/csv-ingest/internal/config"
	"github.com/yourorg/csv-ingest/internal/httpapi/middleware"
	"github.com/yourorg/csv-ingest/internal/model"
	"github.com/yourorg/csv-ingest/internal/orchestrator"
	"github.com/yourorg/csv-ingest/internal/relstore"
	"github.com/yourorg/csv-ingest/internal/sheetsource"
	"github.com/yourorg/csv-ingest/internal/xlsxsource"
)

// IngestionHandler serves the upload, status, review, and output
// endpoints. It holds everything StartIngestion* needs to convert an
// upload into CSV bytes before handing off to the orchestrator.
type IngestionHandler struct {
	orch  *orchestrator.Orchestrator
	cfg   *config.Config
	xlsx  *xlsxsource.Converter
	sheet *sheetsource.Fetcher // nil when Google Sheets ingestion is not configured
}

func NewIngestionHandler(orch *orchestrator.Orchestrator, cfg *config.Config, sheet *sheetsource.Fetcher) *IngestionHandler {
	return &IngestionHandler{orch: orch, cfg: cfg, xlsx: xlsxsource.New(), sheet: sheet}
}

type startIngestionResponse struct {
	ID string `json:"id"`
}

// StartFromUpload handles POST /api/v1/ingestions, a multipart upload of
// a .csv or .xlsx file plus an optional schema_id form field.
func (h *IngestionHandler) StartFromUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxUploadBytes+1<<20)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.Error(&middleware.ErrRequestTooLarge{Err: fmt.Errorf("file exceeds %d byte limit", h.cfg.MaxUploadBytes)})
			return
		}
		c.Error(&middleware.ErrBadRequest{Err: errors.New("file is required")})
		return
	}
	defer file.Close()

	if header.Size > h.cfg.MaxUploadBytes {
		c.Error(&middleware.ErrRequestTooLarge{Err: fmt.Errorf("file exceeds %d byte limit", h.cfg.MaxUploadBytes)})
		return
	}

	data := make([]byte, header.Size)
	if _, err := io.ReadFull(file, data); err != nil {
		c.Error(&middleware.ErrBadRequest{Err: fmt.Errorf("read upload: %w", err)})
		return
	}

	schemaID := optionalFormValue(c, "schema_id")

	ext := strings.ToLower(filepath.Ext(header.Filename))
	var (
		id       string
		startErr error
	)
	switch ext {
	case ".xlsx":
		id, startErr = h.orch.StartIngestionFromXLSX(c.Request.Context(), h.xlsx, data, header.Filename, schemaID)
	case ".csv", "":
		id, startErr = h.orch.StartIngestion(c.Request.Context(), data, header.Filename, schemaID, model.SourceBlob)
	default:
		c.Error(&middleware.ErrBadRequest{Err: fmt.Errorf("unsupported file extension %q", ext)})
		return
	}
	if startErr != nil {
		c.Error(startErr)
		return
	}
	c.JSON(http.StatusAccepted, startIngestionResponse{ID: id})
}

type startFromSheetRequest struct {
	SpreadsheetID string  `json:"spreadsheet_id" binding:"required"`
	SheetName     string  `json:"sheet_name"`
	SchemaID      *string `json:"schema_id"`
}

// StartFromSheet handles POST /api/v1/ingestions/sheet.
func (h *IngestionHandler) StartFromSheet(c *gin.Context) {
	if h.sheet == nil {
		c.Error(&middleware.ErrBadRequest{Err: errors.New("google sheets ingestion is not configured")})
		return
	}
	var req startFromSheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(&middleware.ErrBadRequest{Err: err})
		return
	}
	id, err := h.orch.StartIngestionFromSheet(c.Request.Context(), h.sheet, req.SpreadsheetID, req.SheetName, req.SchemaID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, startIngestionResponse{ID: id})
}

// GetIngestion handles GET /api/v1/ingestions/:id.
func (h *IngestionHandler) GetIngestion(c *gin.Context) {
	id := c.Param("id")
	ing, err := h.orch.GetIngestion(c.Request.Context(), id)
	if err != nil {
		c.Error(notFoundOr(err, id))
		return
	}
	c.JSON(http.StatusOK, ing)
}

// ListDecisions handles GET /api/v1/ingestions/:id/decisions.
func (h *IngestionHandler) ListDecisions(c *gin.Context) {
	id := c.Param("id")
	logs, err := h.orch.ListDecisions(c.Request.Context(), id)
	if err != nil {
		c.Error(notFoundOr(err, id))
		return
	}
	c.JSON(http.StatusOK, logs)
}

type resumeReviewRequest struct {
	Decisions map[string]string `json:"decisions" binding:"required"`
}

// ResumeReview handles POST /api/v1/ingestions/:id/resume.
func (h *IngestionHandler) ResumeReview(c *gin.Context) {
	id := c.Param("id")
	var req resumeReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(&middleware.ErrBadRequest{Err: err})
		return
	}
	if err := h.orch.ResumeReview(c.Request.Context(), id, req.Decisions); err != nil {
		c.Error(conflictOr(err, id))
		return
	}
	c.Status(http.StatusNoContent)
}

// FetchOutput handles GET /api/v1/ingestions/:id/output?format=csv|json.
func (h *IngestionHandler) FetchOutput(c *gin.Context) {
	id := c.Param("id")
	format := c.DefaultQuery("format", "csv")
	data, err := h.orch.FetchOutput(c.Request.Context(), id, format)
	if err != nil {
		c.Error(conflictOr(err, id))
		return
	}
	contentType := "text/csv"
	if format == "json" {
		contentType = "application/json"
	}
	c.Data(http.StatusOK, contentType, data)
}

func notFoundOr(err error, id string) error {
	if errors.Is(err, relstore.ErrNotFound) {
		return &middleware.ErrNotFound{Err: fmt.Errorf("ingestion %s not found", id)}
	}
	return err
}

func conflictOr(err error, id string) error {
	if errors.Is(err, relstore.ErrNotFound) {
		return &middleware.ErrNotFound{Err: fmt.Errorf("ingestion %s not found", id)}
	}
	// Orchestrator wraps status-mismatch failures (wrong status to
	// resume/fetch output) as plain fmt.Errorf, not relstore.ErrNotFound;
	// everything else here is a 409 against the state machine.
	return &middleware.ErrConflict{Err: err}
}

func optionalFormValue(c *gin.Context, field string) *string {
	v := strings.TrimSpace(c.PostForm(field))
	if v == "" {
		return nil
	}
	return &v
}
