// Package postgres is a relstore.Store backed by jackc/pgx. Grounded on the
// teacher's internal/database (pool + migrations) and internal/repositories
// (pool-per-store, context-threaded SQL) conventions.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourorg/csv-ingest/internal/model"
	"github.com/yourorg/csv-ingest/internal/relstore"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrations := []struct {
		name string
		sql  string
	}{
		{
			name: "create_schemas",
			sql: `CREATE TABLE IF NOT EXISTS schemas (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				name VARCHAR(255) NOT NULL,
				version INTEGER NOT NULL DEFAULT 1,
				body JSONB NOT NULL,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);`,
		},
		{
			name: "create_ingestions",
			sql: `CREATE TABLE IF NOT EXISTS ingestions (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				schema_id UUID REFERENCES schemas(id),
				status VARCHAR(32) NOT NULL,
				body JSONB NOT NULL,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_ingestions_status ON ingestions(status);`,
		},
		{
			name: "create_mapping_templates",
			sql: `CREATE TABLE IF NOT EXISTS mapping_templates (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				schema_id UUID NOT NULL REFERENCES schemas(id),
				source_fingerprint VARCHAR(64) NOT NULL,
				usage_count INTEGER NOT NULL DEFAULT 0,
				body JSONB NOT NULL,
				UNIQUE(schema_id, source_fingerprint)
			);`,
		},
		{
			name: "create_decision_logs",
			sql: `CREATE TABLE IF NOT EXISTS decision_logs (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				ingestion_id UUID NOT NULL REFERENCES ingestions(id) ON DELETE CASCADE,
				stage VARCHAR(32) NOT NULL,
				decision_type VARCHAR(64) NOT NULL,
				details JSONB,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_decision_logs_ingestion ON decision_logs(ingestion_id);
			CREATE INDEX IF NOT EXISTS idx_decision_logs_stage ON decision_logs(ingestion_id, stage);`,
		},
	}

	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.name, err)
		}
	}
	return nil
}

func (s *Store) SaveSchema(ctx context.Context, schema *model.CanonicalSchema) error {
	body, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO schemas (id, name, version, body)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = $2, version = $3, body = $4
	`, schema.ID, schema.Name, schema.Version, body)
	return err
}

func (s *Store) GetSchema(ctx context.Context, id string) (*model.CanonicalSchema, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM schemas WHERE id = $1`, id).Scan(&body)
	if err == pgx.ErrNoRows {
		return nil, relstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var schema model.CanonicalSchema
	if err := json.Unmarshal(body, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

func (s *Store) SaveIngestion(ctx context.Context, ing *model.Ingestion) error {
	body, err := json.Marshal(ing)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO ingestions (id, schema_id, status, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET schema_id = $2, status = $3, body = $4, updated_at = $6
	`, ing.ID, ing.SchemaID, string(ing.Status), body, ing.CreatedAt, ing.UpdatedAt)
	return err
}

func (s *Store) GetIngestion(ctx context.Context, id string) (*model.Ingestion, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM ingestions WHERE id = $1`, id).Scan(&body)
	if err == pgx.ErrNoRows {
		return nil, relstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var ing model.Ingestion
	if err := json.Unmarshal(body, &ing); err != nil {
		return nil, err
	}
	return &ing, nil
}

func (s *Store) SaveMappingTemplate(ctx context.Context, tmpl *model.MappingTemplate) error {
	body, err := json.Marshal(tmpl)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO mapping_templates (id, schema_id, source_fingerprint, usage_count, body)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (schema_id, source_fingerprint) DO UPDATE SET usage_count = $4, body = $5
	`, tmpl.ID, tmpl.SchemaID, tmpl.SourceFingerprint, tmpl.UsageCount, body)
	return err
}

func (s *Store) GetMappingTemplate(ctx context.Context, schemaID, fingerprint string) (*model.MappingTemplate, bool, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `
		SELECT body FROM mapping_templates WHERE schema_id = $1 AND source_fingerprint = $2
	`, schemaID, fingerprint).Scan(&body)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var tmpl model.MappingTemplate
	if err := json.Unmarshal(body, &tmpl); err != nil {
		return nil, false, err
	}
	return &tmpl, true, nil
}

func (s *Store) IncrementTemplateUsage(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE mapping_templates SET usage_count = usage_count + 1 WHERE id = $1`, id)
	return err
}

func (s *Store) Append(ctx context.Context, entry model.DecisionLog) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO decision_logs (id, ingestion_id, stage, decision_type, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.IngestionID, string(entry.Stage), entry.DecisionType, details, entry.CreatedAt)
	return err
}

func (s *Store) ListByIngestion(ctx context.Context, ingestionID string) ([]model.DecisionLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, ingestion_id, stage, decision_type, details, created_at
		FROM decision_logs WHERE ingestion_id = $1 ORDER BY created_at ASC
	`, ingestionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDecisionLogs(rows)
}

func (s *Store) ListByStage(ctx context.Context, ingestionID string, stage model.Stage) ([]model.DecisionLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, ingestion_id, stage, decision_type, details, created_at
		FROM decision_logs WHERE ingestion_id = $1 AND stage = $2 ORDER BY created_at ASC
	`, ingestionID, string(stage))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDecisionLogs(rows)
}

func (s *Store) PurgeStage(ctx context.Context, ingestionID string, stage model.Stage) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM decision_logs WHERE ingestion_id = $1 AND stage = $2`, ingestionID, string(stage))
	return err
}

func scanDecisionLogs(rows pgx.Rows) ([]model.DecisionLog, error) {
	var out []model.DecisionLog
	for rows.Next() {
		var entry model.DecisionLog
		var details []byte
		var stage string
		var createdAt time.Time
		if err := rows.Scan(&entry.ID, &entry.IngestionID, &stage, &entry.DecisionType, &details, &createdAt); err != nil {
			return nil, err
		}
		entry.Stage = model.Stage(stage)
		entry.CreatedAt = createdAt
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, err
			}
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

var _ relstore.Store = (*Store)(nil)
