package ports

import (
	"context"
	"time"

	"emcon/internal/table"

	"github.com/google/uuid"
)

// SummaryStore persists summary tables cell by cell so several runs and
// machines can share one database
type SummaryStore interface {
	// Run bookkeeping
	BeginRun(ctx context.Context, command string) (uuid.UUID, error)
	FinishRun(ctx context.Context, runID uuid.UUID, status RunStatus, subjects int) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Summary values
	SaveSummary(ctx context.Context, runID uuid.UUID, name string, summary *table.Summary) error
	LoadSummary(ctx context.Context, name string) (*table.Summary, error)

	Close() error
}

// RunStatus is the lifecycle state of a processing run
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is one invocation of a processing command
type Run struct {
	ID         uuid.UUID  `db:"id"`
	Command    string     `db:"command"`
	Status     RunStatus  `db:"status"`
	Subjects   int        `db:"subjects"`
	StartedAt  time.Time  `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
}
