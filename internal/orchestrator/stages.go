package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/csv-ingest/internal/model"
	"github.com/yourorg/csv-ingest/internal/pipeline/infer"
	"github.com/yourorg/csv-ingest/internal/pipeline/mapping"
	"github.com/yourorg/csv-ingest/internal/pipeline/output"
	"github.com/yourorg/csv-ingest/internal/pipeline/parse"
	"github.com/yourorg/csv-ingest/internal/pipeline/validate"
	"github.com/yourorg/csv-ingest/internal/queue"
)

// parsedPayload is the parse stage's output, persisted to the blob store
// so the infer stage can load the sampled rows without re-parsing the raw
// upload. Validate and output re-parse the raw upload in full instead.
type parsedPayload struct {
	Columns     []string              `json:"columns"`
	Rows        []map[string]string   `json:"rows"`
	ParseErrors []model.ParseRowError `json:"parse_errors,omitempty"`
}

func parsedKey(id string) string { return fmt.Sprintf("parsed/%s.json", id) }

func (o *Orchestrator) savePayload(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return o.blobs.Save(ctx, key, data)
}

func (o *Orchestrator) loadParsed(ctx context.Context, id string) (*parsedPayload, error) {
	data, err := o.blobs.Load(ctx, parsedKey(id))
	if err != nil {
		return nil, err
	}
	var p parsedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// transition saves the ingestion's new status and advances the queue,
// unless next is empty (a move with no follow-up job, e.g. into
// awaiting_review or complete). Callers journal before calling it.
func (o *Orchestrator) transition(ctx context.Context, ing *model.Ingestion, newStatus model.Status, next string) error {
	ing.Status = newStatus
	ing.UpdatedAt = time.Now()
	if err := o.store.SaveIngestion(ctx, ing); err != nil {
		return err
	}
	if next == "" {
		return nil
	}
	return o.enqueue(ctx, next, fmt.Sprintf("%s-%s", next, ing.ID), ing.ID)
}

func (o *Orchestrator) fail(ctx context.Context, ing *model.Ingestion, stage model.Stage, err error) error {
	ing.Status = model.StatusFailed
	ing.Error = err.Error()
	ing.UpdatedAt = time.Now()
	if saveErr := o.store.SaveIngestion(ctx, ing); saveErr != nil {
		return saveErr
	}
	return o.store.Append(ctx, model.DecisionLog{
		ID:           uuid.NewString(),
		IngestionID:  ing.ID,
		Stage:        stage,
		DecisionType: "stage_failed",
		Details:      map[string]any{"error": err.Error()},
		CreatedAt:    time.Now(),
	})
}

// journalStage purges any prior entries this stage logged for this
// ingestion, then appends the fresh set, so a retried stage never leaves
// stale or duplicated entries behind.
func (o *Orchestrator) journalStage(ctx context.Context, ingestionID string, stage model.Stage, entries ...model.DecisionLog) error {
	if err := o.store.PurgeStage(ctx, ingestionID, stage); err != nil {
		return err
	}
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now()
		}
		e.IngestionID = ingestionID
		e.Stage = stage
		if err := o.store.Append(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) handleParse(ctx context.Context, job queue.Job) error {
	id := string(job.Payload)
	ing, err := o.store.GetIngestion(ctx, id)
	if err != nil {
		return err
	}
	if ing.Status != model.StatusPending {
		slog.Debug("parse: skipping already-advanced ingestion", "ingestion_id", id, "status", ing.Status)
		return nil
	}

	raw, err := o.blobs.Load(ctx, ing.RawFileKey)
	if err != nil {
		return o.fail(ctx, ing, model.StageParse, err)
	}

	result, err := parse.Parse(raw, o.cfg.ParseSampleSize)
	if err != nil {
		return o.fail(ctx, ing, model.StageParse, err)
	}

	if err := o.savePayload(ctx, parsedKey(id), parsedPayload{
		Columns:     result.Columns,
		Rows:        result.Rows,
		ParseErrors: result.ParseErrors,
	}); err != nil {
		return err
	}

	ing.DetectedDelimiter = result.DetectedDelimiter
	rowCount := result.TotalRowCount
	ing.RowCount = &rowCount

	if err := o.journalStage(ctx, id, model.StageParse, model.DecisionLog{
		DecisionType: "parse_complete",
		Details: map[string]any{
			"columns":          result.Columns,
			"total_row_count":  result.TotalRowCount,
			"parse_error_count": len(result.ParseErrors),
			"delimiter":        result.DetectedDelimiter,
		},
	}); err != nil {
		return err
	}

	return o.transition(ctx, ing, model.StatusInferring, QueueInfer)
}

func (o *Orchestrator) handleInfer(ctx context.Context, job queue.Job) error {
	id := string(job.Payload)
	ing, err := o.store.GetIngestion(ctx, id)
	if err != nil {
		return err
	}
	if ing.Status != model.StatusInferring {
		slog.Debug("infer: skipping already-advanced ingestion", "ingestion_id", id, "status", ing.Status)
		return nil
	}

	parsed, err := o.loadParsed(ctx, id)
	if err != nil {
		return o.fail(ctx, ing, model.StageInfer, err)
	}

	totalRowCount := 0
	if ing.RowCount != nil {
		totalRowCount = *ing.RowCount
	}
	inferred := infer.Run(parsed.Columns, parsed.Rows, totalRowCount, parsed.ParseErrors)
	ing.InferredSchema = inferred

	entries := make([]model.DecisionLog, 0, len(inferred.Columns))
	for _, c := range inferred.Columns {
		entries = append(entries, model.DecisionLog{
			DecisionType: "type_inference",
			Details: map[string]any{
				"column":        c.Name,
				"inferred_type": c.InferredType,
				"confidence":    c.Confidence,
			},
		})
	}
	if err := o.journalStage(ctx, id, model.StageInfer, entries...); err != nil {
		return err
	}

	return o.transition(ctx, ing, model.StatusMapping, QueueMap)
}

func (o *Orchestrator) handleMap(ctx context.Context, job queue.Job) error {
	id := string(job.Payload)
	ing, err := o.store.GetIngestion(ctx, id)
	if err != nil {
		return err
	}
	if ing.Status != model.StatusMapping {
		slog.Debug("map: skipping already-advanced ingestion", "ingestion_id", id, "status", ing.Status)
		return nil
	}

	var schema *model.CanonicalSchema
	schemaID := ""
	if ing.SchemaID != nil {
		schemaID = *ing.SchemaID
		schema, err = o.store.GetSchema(ctx, schemaID)
		if err != nil {
			return o.fail(ctx, ing, model.StageMap, err)
		}
	}

	lookup := func(schemaID, fingerprint string) (*model.MappingTemplate, bool) {
		tmpl, found, err := o.store.GetMappingTemplate(ctx, schemaID, fingerprint)
		if err != nil || !found {
			return nil, false
		}
		return tmpl, true
	}

	result := mapping.Run(schemaID, ing.InferredSchema, schema, o.cfg.FuzzyThreshold, lookup)
	ing.MappingResult = result

	entries := make([]model.DecisionLog, 0, len(result.Mappings))
	for _, m := range result.Mappings {
		decisionType := "column_mapped"
		if m.Method == model.MethodUnmapped {
			decisionType = "column_unmapped"
		} else if m.Method == model.MethodExact && schema == nil {
			decisionType = "passthrough_mapping"
		}
		entries = append(entries, model.DecisionLog{
			DecisionType: decisionType,
			Details: map[string]any{
				"source_column": m.SourceColumn,
				"target_column": m.TargetColumn,
				"method":        m.Method,
				"confidence":    m.Confidence,
			},
		})
	}
	if err := o.journalStage(ctx, id, model.StageMap, entries...); err != nil {
		return err
	}

	if o.advisor != nil {
		for i := range result.Mappings {
			if note, err := o.advisor.Advise(ctx, &result.Mappings[i]); err == nil && note != "" {
				result.Mappings[i].AdvisoryNote = note
			} else if err != nil {
				slog.Warn("mapping advisory failed", "ingestion_id", id, "source_column", result.Mappings[i].SourceColumn, "error", err)
			}
		}
	}

	return o.advanceFromMapping(ctx, ing)
}

// advanceFromMapping resolves the branch point: either suspend for human
// review, or proceed to validation.
func (o *Orchestrator) advanceFromMapping(ctx context.Context, ing *model.Ingestion) error {
	if ing.MappingResult.RequiresReview {
		return o.transition(ctx, ing, model.StatusAwaitingReview, "")
	}
	return o.transition(ctx, ing, model.StatusValidating, QueueValidate)
}

func (o *Orchestrator) handleValidate(ctx context.Context, job queue.Job) error {
	id := string(job.Payload)
	ing, err := o.store.GetIngestion(ctx, id)
	if err != nil {
		return err
	}
	if ing.Status != model.StatusValidating {
		slog.Debug("validate: skipping already-advanced ingestion", "ingestion_id", id, "status", ing.Status)
		return nil
	}

	raw, err := o.blobs.Load(ctx, ing.RawFileKey)
	if err != nil {
		return o.fail(ctx, ing, model.StageValidate, err)
	}
	parsed, err := parse.ParseAll(raw)
	if err != nil {
		return o.fail(ctx, ing, model.StageValidate, err)
	}

	var schema *model.CanonicalSchema
	if ing.SchemaID != nil {
		schema, err = o.store.GetSchema(ctx, *ing.SchemaID)
		if err != nil {
			return o.fail(ctx, ing, model.StageValidate, err)
		}
	}

	result, err := validate.Run(schema, ing.MappingResult, parsed.Rows)
	if err != nil {
		// abort is a deliberate, schema-declared outcome, not a transient
		// failure; it terminates the ingestion without retry.
		return o.fail(ctx, ing, model.StageValidate, err)
	}
	ing.ValidationResult = result
	validRows := result.ValidRowCount
	ing.ValidRowCount = &validRows

	policy := model.PolicyFlag
	if schema != nil && schema.ErrorPolicy != "" {
		policy = schema.ErrorPolicy
	}
	sample := result.RowErrors
	if len(sample) > 10 {
		sample = sample[:10]
	}
	entries := []model.DecisionLog{{
		DecisionType: "validation_complete",
		Details: map[string]any{
			"error_policy":      policy,
			"valid_row_count":   result.ValidRowCount,
			"invalid_row_count": result.InvalidRowCount,
			"errors_by_column":  result.ErrorsByColumn,
			"row_error_sample":  sample,
		},
	}}
	for _, re := range result.RowErrors {
		if re.Action == model.ActionRejected {
			entries = append(entries, model.DecisionLog{
				DecisionType: "row_rejected",
				Details:      map[string]any{"row_index": re.RowIndex, "errors": re.Errors},
			})
		}
	}
	if err := o.journalStage(ctx, id, model.StageValidate, entries...); err != nil {
		return err
	}

	return o.transition(ctx, ing, model.StatusOutputting, QueueOutput)
}

func (o *Orchestrator) handleOutput(ctx context.Context, job queue.Job) error {
	id := string(job.Payload)
	ing, err := o.store.GetIngestion(ctx, id)
	if err != nil {
		return err
	}
	if ing.Status != model.StatusOutputting {
		slog.Debug("output: skipping already-advanced ingestion", "ingestion_id", id, "status", ing.Status)
		return nil
	}

	raw, err := o.blobs.Load(ctx, ing.RawFileKey)
	if err != nil {
		return o.fail(ctx, ing, model.StageOutput, err)
	}
	parsed, err := parse.ParseAll(raw)
	if err != nil {
		return o.fail(ctx, ing, model.StageOutput, err)
	}

	var schema *model.CanonicalSchema
	if ing.SchemaID != nil {
		schema, err = o.store.GetSchema(ctx, *ing.SchemaID)
		if err != nil {
			return o.fail(ctx, ing, model.StageOutput, err)
		}
	}

	artifacts, err := output.Run(id, schema, ing.InferredSchema, ing.MappingResult, ing.ValidationResult, parsed.Rows, time.Now())
	if err != nil {
		return o.fail(ctx, ing, model.StageOutput, err)
	}

	csvKey := fmt.Sprintf("output/%s.csv", id)
	jsonKey := fmt.Sprintf("output/%s.json", id)
	if err := o.blobs.Save(ctx, csvKey, artifacts.CSV); err != nil {
		return err
	}
	if err := o.blobs.Save(ctx, jsonKey, artifacts.JSON); err != nil {
		return err
	}
	if artifacts.Schema != nil {
		_ = o.blobs.Save(ctx, fmt.Sprintf("output/%s/schema.json", id), artifacts.Schema)
	}
	if artifacts.Errors != nil {
		_ = o.blobs.Save(ctx, fmt.Sprintf("output/%s/errors.json", id), artifacts.Errors)
	}
	if decisions, err := o.store.ListByIngestion(ctx, id); err == nil {
		if decisionsBytes, err := output.BuildDecisionsArtifact(decisions); err == nil {
			_ = o.blobs.Save(ctx, fmt.Sprintf("output/%s/decisions.json", id), decisionsBytes)
		}
	}

	ing.OutputFileKey = csvKey
	now := time.Now()
	ing.CompletedAt = &now

	if err := o.journalStage(ctx, id, model.StageOutput, model.DecisionLog{
		DecisionType: "output_complete",
		Details: map[string]any{
			"csv_key":  csvKey,
			"json_key": jsonKey,
		},
	}); err != nil {
		return err
	}

	return o.transition(ctx, ing, model.StatusComplete, "")
}
