package container

import (
	"context"
	"fmt"
	"log/slog"

	"emcon/adapters/figures"
	"emcon/adapters/report"
	"emcon/adapters/store"
	"emcon/app"
	"emcon/internal/config"
	"emcon/internal/logging"
	"emcon/ports"

	"github.com/jmoiron/sqlx"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config

	// Infrastructure
	DB    *sqlx.DB
	Store ports.SummaryStore

	// Services
	Behavior  *app.BehaviorService
	Repair    *app.RepairService
	Averaging *app.AveragingService
	Figures   *app.FiguresService

	logger *slog.Logger
}

// New creates a container. The summary store is opened only when configured.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	c := &Container{
		Config: cfg,
		logger: logging.OrDiscard(logger),
	}

	if cfg.Store.Enabled() {
		if err := c.initStore(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize summary store: %w", err)
		}
	}
	c.initServices()
	return c, nil
}

// initStore opens the database and wraps it in the summary repository
func (c *Container) initStore(ctx context.Context) error {
	logger := logging.New(c.logger, "store")
	db, err := store.Open(ctx, c.Config.Store, logger)
	if err != nil {
		return err
	}
	c.DB = db
	c.Store = store.NewSummaryRepository(db)
	logger.Debug("summary store ready", "driver", c.Config.Store.Driver)
	return nil
}

func (c *Container) initServices() {
	cfg := c.Config
	c.Behavior = app.NewBehaviorService(cfg, c.Store, logging.New(c.logger, "behav"))
	c.Repair = app.NewRepairService(cfg.Paths.PsychopyDir, logging.New(c.logger, "repair"))
	c.Averaging = app.NewAveragingService(cfg.Paths, logging.New(c.logger, "average"))
	c.Figures = app.NewFiguresService(cfg.Paths, cfg.Figures,
		figures.NewBoxStripRenderer(),
		report.HTMLRenderer{Title: "EmCon memory descriptives"},
		logging.New(c.logger, "figures"))
}

// Shutdown releases the database connection
func (c *Container) Shutdown() error {
	if c.Store != nil {
		return c.Store.Close()
	}
	return nil
}
