// Package store keeps summary tables in a SQL database. SQLite serves a
// single workstation; PostgreSQL serves a shared lab server.
package store

import (
	"context"
	"log/slog"

	"emcon/internal/config"
	"emcon/internal/errors"
	"emcon/internal/logging"
	"emcon/internal/migration"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Open connects to the configured database and runs migrations
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*sqlx.DB, error) {
	if !cfg.Enabled() {
		return nil, errors.ConfigInvalid("no summary store configured")
	}

	db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, errors.DatabaseError("failed to connect to "+cfg.Driver, err)
	}

	if cfg.Driver == "sqlite" {
		// One writer at a time; parallel writers would hit SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	logger = logging.OrDiscard(logger)
	runner := migration.NewRunner(logger)
	if err := runner.Run(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "database migration failed")
	}
	logger.Debug("schema ready", "version", runner.Version())

	return db, nil
}
