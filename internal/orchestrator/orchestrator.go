// Package orchestrator implements the ingestion state machine: it
// creates ingestion records, starts the pipeline, composes the five
// stage handlers behind the queue abstraction, and handles resume after
// human review.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/csv-ingest/internal/blobstore"
	"github.com/yourorg/csv-ingest/internal/config"
	"github.com/yourorg/csv-ingest/internal/journal"
	"github.com/yourorg/csv-ingest/internal/model"
	"github.com/yourorg/csv-ingest/internal/pipeline/mapping"
	"github.com/yourorg/csv-ingest/internal/queue"
	"github.com/yourorg/csv-ingest/internal/relstore"
)

const (
	QueueParse    = "parse"
	QueueInfer    = "infer"
	QueueMap      = "map"
	QueueValidate = "validate"
	QueueOutput   = "output"
)

// Advisor is the optional non-authoritative mapping-advisory hook; a nil
// Advisor disables the feature entirely.
type Advisor interface {
	Advise(ctx context.Context, mapping *model.ColumnMapping) (note string, err error)
}

type Orchestrator struct {
	blobs   blobstore.Store
	store   relstore.Store
	q       queue.Queue
	cfg     *config.Config
	advisor Advisor
}

func New(blobs blobstore.Store, store relstore.Store, q queue.Queue, cfg *config.Config, advisor Advisor) *Orchestrator {
	return &Orchestrator{blobs: blobs, store: store, q: q, cfg: cfg, advisor: advisor}
}

// concurrentSubscriber is implemented by queue backends that support
// per-queue worker pools (inmemory.Queue); backends that don't get a
// single worker via the plain Subscribe method instead.
type concurrentSubscriber interface {
	SubscribeWithConcurrency(queueName string, handler queue.Handler, concurrency int) error
}

// RegisterWorkers subscribes every stage handler to its queue, at the
// configured per-stage concurrency where the backend supports it.
func (o *Orchestrator) RegisterWorkers() error {
	stages := []struct {
		name        string
		concurrency int
		handler     queue.Handler
	}{
		{QueueParse, o.cfg.ParseConcurrency, o.handleParse},
		{QueueInfer, o.cfg.InferConcurrency, o.handleInfer},
		{QueueMap, o.cfg.MapConcurrency, o.handleMap},
		{QueueValidate, o.cfg.ValidateConcurrency, o.handleValidate},
		{QueueOutput, o.cfg.OutputConcurrency, o.handleOutput},
	}
	for _, s := range stages {
		var err error
		if cq, ok := o.q.(concurrentSubscriber); ok {
			err = cq.SubscribeWithConcurrency(s.name, s.handler, s.concurrency)
		} else {
			err = o.q.Subscribe(s.name, s.handler)
		}
		if err != nil {
			return fmt.Errorf("orchestrator: subscribe %s: %w", s.name, err)
		}
	}
	return nil
}

func rawKey(ingestionID, ext string) string { return fmt.Sprintf("raw/%s.%s", ingestionID, ext) }

// StartIngestion stores the blob, persists a pending ingestion, and
// enqueues the parse job. No schemaID means passthrough.
func (o *Orchestrator) StartIngestion(ctx context.Context, data []byte, originalFilename string, schemaID *string, source model.Source) (string, error) {
	id := uuid.NewString()
	ext := extensionFor(source)
	key := rawKey(id, ext)

	if err := o.blobs.Save(ctx, key, data); err != nil {
		return "", fmt.Errorf("orchestrator: save raw blob: %w", err)
	}

	now := time.Now()
	ing := &model.Ingestion{
		ID:               id,
		SchemaID:         schemaID,
		Status:           model.StatusPending,
		RawFileKey:       key,
		OriginalFilename: originalFilename,
		Source:           source,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := o.store.SaveIngestion(ctx, ing); err != nil {
		return "", fmt.Errorf("orchestrator: persist ingestion: %w", err)
	}

	if err := o.enqueue(ctx, QueueParse, fmt.Sprintf("%s-%s", QueueParse, id), id); err != nil {
		return "", err
	}
	return id, nil
}

// XLSXConverter turns an uploaded workbook's first sheet into CSV bytes
// (implemented by internal/xlsxsource). Kept as a narrow local interface
// so orchestrator does not import the adapter package directly.
type XLSXConverter interface {
	ToCSV(data []byte) ([]byte, error)
}

// SheetsFetcher fetches one Google Sheets tab as CSV bytes (implemented by
// internal/sheetsource).
type SheetsFetcher interface {
	FetchCSV(ctx context.Context, spreadsheetID, sheetName string) ([]byte, error)
}

// StartIngestionFromXLSX converts the workbook to CSV before handing off
// to StartIngestion, so the rest of the pipeline never has to know the
// original format.
func (o *Orchestrator) StartIngestionFromXLSX(ctx context.Context, conv XLSXConverter, data []byte, originalFilename string, schemaID *string) (string, error) {
	csvData, err := conv.ToCSV(data)
	if err != nil {
		return "", fmt.Errorf("orchestrator: convert xlsx: %w", err)
	}
	return o.StartIngestion(ctx, csvData, originalFilename, schemaID, model.SourceXLSX)
}

// StartIngestionFromSheet fetches a Google Sheets tab as CSV before
// handing off to StartIngestion.
func (o *Orchestrator) StartIngestionFromSheet(ctx context.Context, fetcher SheetsFetcher, spreadsheetID, sheetName string, schemaID *string) (string, error) {
	csvData, err := fetcher.FetchCSV(ctx, spreadsheetID, sheetName)
	if err != nil {
		return "", fmt.Errorf("orchestrator: fetch sheet: %w", err)
	}
	return o.StartIngestion(ctx, csvData, sheetName+".csv", schemaID, model.SourceSheets)
}

func extensionFor(source model.Source) string {
	switch source {
	case model.SourceXLSX:
		return "xlsx"
	case model.SourceSheets:
		return "sheet.csv"
	default:
		return "csv"
	}
}

func (o *Orchestrator) enqueue(ctx context.Context, queueName, jobID, ingestionID string) error {
	return o.q.Enqueue(ctx, queue.Job{ID: jobID, Queue: queueName, Payload: []byte(ingestionID)})
}

func (o *Orchestrator) GetIngestion(ctx context.Context, id string) (*model.Ingestion, error) {
	return o.store.GetIngestion(ctx, id)
}

func (o *Orchestrator) ListDecisions(ctx context.Context, id string) ([]model.DecisionLog, error) {
	return o.store.ListByIngestion(ctx, id)
}

// FetchOutput returns the requested artifact's bytes; fails if the
// ingestion is not complete.
func (o *Orchestrator) FetchOutput(ctx context.Context, id, format string) ([]byte, error) {
	ing, err := o.store.GetIngestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if ing.Status != model.StatusComplete {
		return nil, fmt.Errorf("orchestrator: ingestion %s is not complete (status=%s)", id, ing.Status)
	}
	var key string
	switch format {
	case "csv":
		key = fmt.Sprintf("output/%s.csv", id)
	case "json":
		key = fmt.Sprintf("output/%s.json", id)
	default:
		return nil, fmt.Errorf("orchestrator: unsupported output format %q", format)
	}
	return o.blobs.Load(ctx, key)
}

// ResumeReview applies human decisions to a suspended ingestion and
// re-enters the map stage. Fails if status is not awaiting_review.
func (o *Orchestrator) ResumeReview(ctx context.Context, id string, decisions map[string]string) error {
	ing, err := o.store.GetIngestion(ctx, id)
	if err != nil {
		return err
	}
	if ing.Status != model.StatusAwaitingReview {
		return fmt.Errorf("orchestrator: cannot resume ingestion %s: status is %s, not awaiting_review", id, ing.Status)
	}
	if ing.MappingResult == nil {
		return fmt.Errorf("orchestrator: ingestion %s has no mapping result to resume", id)
	}

	before := make(map[string]model.ColumnMapping, len(decisions))
	for _, m := range ing.MappingResult.Mappings {
		if _, ok := decisions[m.SourceColumn]; ok {
			before[m.SourceColumn] = m
		}
	}

	updated := mapping.Resume(ing.MappingResult, decisions)
	ing.MappingResult = updated
	ing.Status = model.StatusMapping
	ing.UpdatedAt = time.Now()

	if err := o.store.SaveIngestion(ctx, ing); err != nil {
		return err
	}

	for _, m := range updated.Mappings {
		prior, ok := before[m.SourceColumn]
		if !ok {
			continue
		}
		diffText, _ := journal.RenderMappingDiff(prior, m)
		if err := o.store.Append(ctx, model.DecisionLog{
			ID:           uuid.NewString(),
			IngestionID:  id,
			Stage:        model.StageMap,
			DecisionType: "human_resolved",
			Details: map[string]any{
				"source_column": m.SourceColumn,
				"target_column": m.TargetColumn,
				"diff":          diffText,
			},
			CreatedAt: time.Now(),
		}); err != nil {
			return err
		}
	}

	return o.advanceFromMapping(ctx, ing)
}
