// Package sqlite is a relstore.Store backed by modernc.org/sqlite (pure Go,
// no cgo). Grounded on the pack's database/sql + sqlite driver-registration
// pattern; suitable for single-node deployments and tests that want real
// SQL semantics without a Postgres dependency.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yourorg/csv-ingest/internal/model"
	"github.com/yourorg/csv-ingest/internal/relstore"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schemas (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			body TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ingestions (
			id TEXT PRIMARY KEY,
			schema_id TEXT,
			status TEXT NOT NULL,
			body TEXT NOT NULL,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS mapping_templates (
			id TEXT PRIMARY KEY,
			schema_id TEXT NOT NULL,
			source_fingerprint TEXT NOT NULL,
			usage_count INTEGER NOT NULL DEFAULT 0,
			body TEXT NOT NULL,
			UNIQUE(schema_id, source_fingerprint)
		)`,
		`CREATE TABLE IF NOT EXISTS decision_logs (
			id TEXT PRIMARY KEY,
			ingestion_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			decision_type TEXT NOT NULL,
			details TEXT,
			created_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decision_logs_ingestion ON decision_logs(ingestion_id)`,
		`CREATE INDEX IF NOT EXISTS idx_decision_logs_stage ON decision_logs(ingestion_id, stage)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migration failed: %w", err)
		}
	}
	return nil
}

func (s *Store) SaveSchema(ctx context.Context, schema *model.CanonicalSchema) error {
	body, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schemas (id, name, version, body) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, version = excluded.version, body = excluded.body
	`, schema.ID, schema.Name, schema.Version, body)
	return err
}

func (s *Store) GetSchema(ctx context.Context, id string) (*model.CanonicalSchema, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM schemas WHERE id = ?`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, relstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var schema model.CanonicalSchema
	if err := json.Unmarshal([]byte(body), &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

func (s *Store) SaveIngestion(ctx context.Context, ing *model.Ingestion) error {
	body, err := json.Marshal(ing)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ingestions (id, schema_id, status, body, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET schema_id = excluded.schema_id, status = excluded.status, body = excluded.body, updated_at = excluded.updated_at
	`, ing.ID, ing.SchemaID, string(ing.Status), body, ing.CreatedAt, ing.UpdatedAt)
	return err
}

func (s *Store) GetIngestion(ctx context.Context, id string) (*model.Ingestion, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM ingestions WHERE id = ?`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, relstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var ing model.Ingestion
	if err := json.Unmarshal([]byte(body), &ing); err != nil {
		return nil, err
	}
	return &ing, nil
}

func (s *Store) SaveMappingTemplate(ctx context.Context, tmpl *model.MappingTemplate) error {
	body, err := json.Marshal(tmpl)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mapping_templates (id, schema_id, source_fingerprint, usage_count, body) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(schema_id, source_fingerprint) DO UPDATE SET usage_count = excluded.usage_count, body = excluded.body
	`, tmpl.ID, tmpl.SchemaID, tmpl.SourceFingerprint, tmpl.UsageCount, body)
	return err
}

func (s *Store) GetMappingTemplate(ctx context.Context, schemaID, fingerprint string) (*model.MappingTemplate, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM mapping_templates WHERE schema_id = ? AND source_fingerprint = ?
	`, schemaID, fingerprint).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var tmpl model.MappingTemplate
	if err := json.Unmarshal([]byte(body), &tmpl); err != nil {
		return nil, false, err
	}
	return &tmpl, true, nil
}

func (s *Store) IncrementTemplateUsage(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE mapping_templates SET usage_count = usage_count + 1 WHERE id = ?`, id)
	return err
}

func (s *Store) Append(ctx context.Context, entry model.DecisionLog) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decision_logs (id, ingestion_id, stage, decision_type, details, created_at) VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.IngestionID, string(entry.Stage), entry.DecisionType, details, entry.CreatedAt)
	return err
}

func (s *Store) ListByIngestion(ctx context.Context, ingestionID string) ([]model.DecisionLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ingestion_id, stage, decision_type, details, created_at FROM decision_logs
		WHERE ingestion_id = ? ORDER BY created_at ASC
	`, ingestionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDecisionLogs(rows)
}

func (s *Store) ListByStage(ctx context.Context, ingestionID string, stage model.Stage) ([]model.DecisionLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ingestion_id, stage, decision_type, details, created_at FROM decision_logs
		WHERE ingestion_id = ? AND stage = ? ORDER BY created_at ASC
	`, ingestionID, string(stage))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDecisionLogs(rows)
}

func (s *Store) PurgeStage(ctx context.Context, ingestionID string, stage model.Stage) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM decision_logs WHERE ingestion_id = ? AND stage = ?`, ingestionID, string(stage))
	return err
}

func scanDecisionLogs(rows *sql.Rows) ([]model.DecisionLog, error) {
	var out []model.DecisionLog
	for rows.Next() {
		var entry model.DecisionLog
		var details sql.NullString
		var stage string
		var createdAt time.Time
		if err := rows.Scan(&entry.ID, &entry.IngestionID, &stage, &entry.DecisionType, &details, &createdAt); err != nil {
			return nil, err
		}
		entry.Stage = model.Stage(stage)
		entry.CreatedAt = createdAt
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &entry.Details); err != nil {
				return nil, err
			}
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

var _ relstore.Store = (*Store)(nil)
