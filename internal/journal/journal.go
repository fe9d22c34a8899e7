// Package journal implements the decision journal: the single,
// append-only source of explainability for every automated and human
// choice made during an ingestion's lifecycle.
package journal

import (
	"context"

	"github.com/yourorg/csv-ingest/internal/model"
)

// Store is the append/read interface the relational store backs. Entries
// are immutable once appended; PurgeStage exists solely for the
// idempotent-retry rule (a stage purges its own prior entries before
// re-appending).
type Store interface {
	Append(ctx context.Context, entry model.DecisionLog) error
	ListByIngestion(ctx context.Context, ingestionID string) ([]model.DecisionLog, error)
	ListByStage(ctx context.Context, ingestionID string, stage model.Stage) ([]model.DecisionLog, error)
	PurgeStage(ctx context.Context, ingestionID string, stage model.Stage) error
}
