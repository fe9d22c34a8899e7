package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yourorg/csv-ingest/internal/httpapi/middleware"
	"github.com/yourorg/csv-ingest/internal/model"
	"github.com/yourorg/csv-ingest/internal/relstore"
)

// SchemaHandler manages canonical schema definitions. Schemas are
// immutable once created; "updating" one means creating a new ID and
// pointing future ingestions at it.
type SchemaHandler struct {
	store relstore.Store
}

func NewSchemaHandler(store relstore.Store) *SchemaHandler {
	return &SchemaHandler{store: store}
}

type createSchemaRequest struct {
	Name        string                   `json:"name" binding:"required"`
	Description string                   `json:"description"`
	Columns     []model.ColumnDefinition `json:"columns" binding:"required"`
	ErrorPolicy model.ErrorPolicy        `json:"error_policy"`
	Strict      bool                     `json:"strict"`
}

// Create handles POST /api/v1/schemas.
func (h *SchemaHandler) Create(c *gin.Context) {
	var req createSchemaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(&middleware.ErrBadRequest{Err: err})
		return
	}
	if req.ErrorPolicy == "" {
		req.ErrorPolicy = model.PolicyFlag
	}

	schema := &model.CanonicalSchema{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Version:     1,
		Description: req.Description,
		Columns:     req.Columns,
		ErrorPolicy: req.ErrorPolicy,
		Strict:      req.Strict,
	}
	if err := h.store.SaveSchema(c.Request.Context(), schema); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, schema)
}

// Get handles GET /api/v1/schemas/:id.
func (h *SchemaHandler) Get(c *gin.Context) {
	id := c.Param("id")
	schema, err := h.store.GetSchema(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, relstore.ErrNotFound) {
			c.Error(&middleware.ErrNotFound{Err: err})
			return
		}
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, schema)
}
