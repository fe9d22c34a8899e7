// Package relstore defines the relational store interface consumed by the
// orchestrator: row-level CRUD on schemas, ingestions, mapping_templates,
// and decision_logs. JSON-typed columns are opaque blobs from the
// store's perspective — callers marshal/unmarshal.
package relstore

import (
	"context"

	"github.com/yourorg/csv-ingest/internal/journal"
	"github.com/yourorg/csv-ingest/internal/model"
)

// Store is the full persistence surface. It embeds journal.Store so a
// single backing implementation serves both the ingestion/schema tables
// and the decision journal.
type Store interface {
	journal.Store

	SaveSchema(ctx context.Context, schema *model.CanonicalSchema) error
	GetSchema(ctx context.Context, id string) (*model.CanonicalSchema, error)

	SaveIngestion(ctx context.Context, ingestion *model.Ingestion) error
	GetIngestion(ctx context.Context, id string) (*model.Ingestion, error)

	SaveMappingTemplate(ctx context.Context, tmpl *model.MappingTemplate) error
	GetMappingTemplate(ctx context.Context, schemaID, fingerprint string) (*model.MappingTemplate, bool, error)
	IncrementTemplateUsage(ctx context.Context, id string) error
}

// ErrNotFound is returned by Get* methods when the row does not exist.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "relstore: row not found" }
