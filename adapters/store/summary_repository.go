package store

import (
	"context"
	"database/sql"
	"math"
	"sort"
	"time"

	"emcon/internal/errors"
	"emcon/internal/table"
	"emcon/ports"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// summaryRepository implements ports.SummaryStore over sqlx
type summaryRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSummaryRepository creates a summary store on an open, migrated database
func NewSummaryRepository(db *sqlx.DB) ports.SummaryStore {
	return &summaryRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// BeginRun records the start of a processing command
func (r *summaryRepository) BeginRun(ctx context.Context, command string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO processing_runs (id, command, status, subjects, started_at)
		VALUES (?, ?, ?, 0, ?)
	`), id.String(), command, ports.RunRunning, r.now())
	if err != nil {
		return uuid.Nil, errors.DatabaseError("failed to record run", err)
	}
	return id, nil
}

// FinishRun closes a run with its final status
func (r *summaryRepository) FinishRun(ctx context.Context, runID uuid.UUID, status ports.RunStatus, subjects int) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE processing_runs SET status = ?, subjects = ?, finished_at = ?
		WHERE id = ?
	`), status, subjects, r.now(), runID.String())
	if err != nil {
		return errors.DatabaseError("failed to finish run", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("run " + runID.String())
	}
	return nil
}

// ListRuns returns the most recent runs first
func (r *summaryRepository) ListRuns(ctx context.Context, limit int) ([]ports.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []ports.Run
	err := r.db.SelectContext(ctx, &runs, r.db.Rebind(`
		SELECT id, command, status, subjects, started_at, finished_at
		FROM processing_runs
		ORDER BY started_at DESC
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, errors.DatabaseError("failed to list runs", err)
	}
	return runs, nil
}

// SaveSummary upserts every cell of summary in one transaction. Undefined
// values are stored as NULL so a later run can clear an earlier value.
func (r *summaryRepository) SaveSummary(ctx context.Context, runID uuid.UUID, name string, summary *table.Summary) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO summary_values (summary, sub_id, measure, position, value, run_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (summary, sub_id, measure) DO UPDATE SET
			position = excluded.position,
			value = excluded.value,
			run_id = excluded.run_id,
			updated_at = excluded.updated_at
	`))
	if err != nil {
		return errors.DatabaseError("failed to prepare upsert", err)
	}
	defer stmt.Close()

	now := r.now()
	columns := summary.Columns()
	for _, id := range summary.IDs() {
		row := summary.Row(id)
		for pos, col := range columns {
			v, ok := row[col]
			if !ok {
				continue
			}
			value := sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
			if _, err := stmt.ExecContext(ctx, name, id, col, pos, value, runID.String(), now); err != nil {
				return errors.DatabaseError("failed to upsert "+name+" "+id+" "+col, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("failed to commit summary", err)
	}
	return nil
}

type summaryValue struct {
	SubID    string          `db:"sub_id"`
	Measure  string          `db:"measure"`
	Position int             `db:"position"`
	Value    sql.NullFloat64 `db:"value"`
}

// LoadSummary rebuilds a summary with subjects sorted and columns in saved order
func (r *summaryRepository) LoadSummary(ctx context.Context, name string) (*table.Summary, error) {
	var values []summaryValue
	err := r.db.SelectContext(ctx, &values, r.db.Rebind(`
		SELECT sub_id, measure, position, value
		FROM summary_values
		WHERE summary = ?
		ORDER BY sub_id, position
	`), name)
	if err != nil {
		return nil, errors.DatabaseError("failed to load summary "+name, err)
	}
	if len(values) == 0 {
		return nil, errors.NotFound("summary " + name)
	}

	position := make(map[string]int)
	for _, v := range values {
		if p, ok := position[v.Measure]; !ok || v.Position < p {
			position[v.Measure] = v.Position
		}
	}
	columns := make([]string, 0, len(position))
	for m := range position {
		columns = append(columns, m)
	}
	sort.SliceStable(columns, func(i, j int) bool {
		if position[columns[i]] != position[columns[j]] {
			return position[columns[i]] < position[columns[j]]
		}
		return columns[i] < columns[j]
	})

	summary := table.NewSummary("sub_id", columns...)
	for _, v := range values {
		if v.Value.Valid {
			summary.Set(v.SubID, v.Measure, v.Value.Float64)
		} else {
			summary.Set(v.SubID, v.Measure, math.NaN())
		}
	}
	return summary, nil
}

// Close releases the database connection
func (r *summaryRepository) Close() error {
	return r.db.Close()
}
