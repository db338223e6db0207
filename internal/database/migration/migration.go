// Package migration applies the ordered schema steps for the document and audit tables.
package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_documents",
		SQL: `CREATE TABLE IF NOT EXISTS documents (
  id            UUID        PRIMARY KEY,
  owner_id      TEXT        NOT NULL,
  object_key    TEXT        NOT NULL,
  bucket        TEXT        NOT NULL,
  etag          TEXT,
  title         TEXT        NOT NULL,
  mime_type     TEXT        NOT NULL,
  size          BIGINT      NOT NULL CHECK (size >= 0),
  tags          JSONB       NOT NULL DEFAULT '[]'::jsonb,
  category_code TEXT,
  created_at    TIMESTAMPTZ NOT NULL,
  updated_at    TIMESTAMPTZ NOT NULL,
  checked_in_at TIMESTAMPTZ,
  checked_in_by TEXT,
  version       BIGINT      NOT NULL DEFAULT 0,
  UNIQUE (bucket, object_key)
);`,
	},
	{
		Name: "create_index_documents_owner_created",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_owner_created ON documents (owner_id, created_at DESC, id DESC);`,
	},
	{
		// No foreign key: DELETE audits are written after the document row is gone.
		Name: "create_table_document_audits",
		SQL: `CREATE TABLE IF NOT EXISTS document_audits (
  id          UUID        PRIMARY KEY,
  document_id UUID        NOT NULL,
  type        TEXT        NOT NULL,
  at          TIMESTAMPTZ NOT NULL,
  by_owner    TEXT        NOT NULL,
  payload     JSONB       NOT NULL DEFAULT '{}'::jsonb
);`,
	},
	{
		Name: "create_index_document_audits_document_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_document_audits_document_at ON document_audits (document_id, at DESC);`,
	},
}

const (
	createLedger = `CREATE TABLE IF NOT EXISTS schema_migrations (
  name       TEXT        PRIMARY KEY,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`
	selectApplied = `SELECT name FROM schema_migrations`
	insertApplied = `INSERT INTO schema_migrations (name) VALUES ($1)`
)

// Run applies every step not yet recorded in schema_migrations, each in its own transaction.
// It returns the number of steps applied.
func Run(ctx context.Context, db *sql.DB, log zerolog.Logger) (int, error) {
	start := time.Now()
	log = log.With().Str("component", "database").Logger()
	log.Info().Str("event", "db_migration_check").Msg("checking schema")

	if _, err := db.ExecContext(ctx, createLedger); err != nil {
		return 0, fail(log, start, "", fmt.Errorf("create migration ledger: %w", err))
	}

	applied, err := appliedSteps(ctx, db)
	if err != nil {
		return 0, fail(log, start, "", err)
	}

	n := 0
	for _, step := range steps {
		if applied[step.Name] {
			continue
		}
		stepStart := time.Now()
		if err := apply(ctx, db, step); err != nil {
			return n, fail(log, start, step.Name, err)
		}
		n++
		log.Info().
			Str("event", "db_migration_step").
			Str("migration_step", step.Name).
			Int64("step_duration_ms", time.Since(stepStart).Milliseconds()).
			Msg("migration step applied")
	}

	event := "db_migration_success"
	if n == 0 {
		event = "db_migration_skip"
	}
	log.Info().
		Str("event", event).
		Int("applied", n).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("schema up to date")
	return n, nil
}

func appliedSteps(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, selectApplied)
	if err != nil {
		return nil, fmt.Errorf("read migration ledger: %w", err)
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan migration ledger: %w", err)
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func apply(ctx context.Context, db *sql.DB, step migrationStep) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration step %s: begin: %w", step.Name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, step.SQL); err != nil {
		return fmt.Errorf("migration step %s failed: %w", step.Name, err)
	}
	if _, err := tx.ExecContext(ctx, insertApplied, step.Name); err != nil {
		return fmt.Errorf("migration step %s: record: %w", step.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration step %s: commit: %w", step.Name, err)
	}
	return nil
}

func fail(log zerolog.Logger, start time.Time, step string, err error) error {
	ev := log.Error().Err(err).Str("event", "db_migration_failed").Int64("duration_ms", time.Since(start).Milliseconds())
	if step != "" {
		ev = ev.Str("migration_step", step)
	}
	ev.Msg("migration failed")
	return err
}
