package migration

import (
	"context"
	"log/slog"

	"emcon/internal/errors"
	"emcon/internal/logging"

	"github.com/jmoiron/sqlx"
)

// MigrationRunner creates the summary store schema. Every statement is valid
// for both SQLite and PostgreSQL.
type MigrationRunner struct {
	version string
	logger  *slog.Logger
}

// NewRunner creates a new migration runner
func NewRunner(logger *slog.Logger) *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
		logger:  logging.OrDiscard(logger),
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all migrations in order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createRunsTable(ctx, db); err != nil {
		return errors.DatabaseError("failed to create processing_runs table", err)
	}

	if err := r.createSummaryValuesTable(ctx, db); err != nil {
		return errors.DatabaseError("failed to create summary_values table", err)
	}

	r.createIndexes(ctx, db)
	return nil
}

func (r *MigrationRunner) createRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS processing_runs (
			id VARCHAR(36) PRIMARY KEY,
			command VARCHAR(100) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'running',
			subjects INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP
		)
	`)
	return err
}

// summary_values is the long form of every summary table: one row per
// (summary, subject, measure) cell. NULL stores an undefined value.
func (r *MigrationRunner) createSummaryValuesTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS summary_values (
			summary VARCHAR(100) NOT NULL,
			sub_id VARCHAR(50) NOT NULL,
			measure VARCHAR(100) NOT NULL,
			position INTEGER NOT NULL,
			value DOUBLE PRECISION,
			run_id VARCHAR(36) NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (summary, sub_id, measure)
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_summary_values_run ON summary_values(run_id)",
		"CREATE INDEX IF NOT EXISTS idx_summary_values_measure ON summary_values(summary, measure)",
		"CREATE INDEX IF NOT EXISTS idx_runs_started_at ON processing_runs(started_at)",
	}

	for _, idxSQL := range indexes {
		if _, err := db.ExecContext(ctx, idxSQL); err != nil {
			r.logger.Warn("failed to create index", "sql", idxSQL, "error", err)
		}
	}
}
