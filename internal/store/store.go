// Package store persists validation runs and their per-row results,
// backed by SQLite for single-machine use or PostgreSQL for shared
// deployments.
package store

import (
	"context"

	"github.com/veridata/crosscheck-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines run persistence. Rows are saved as they complete so a
// crashed batch still leaves a usable partial record.
type Store interface {
	// CreateRun records a run in the running state.
	CreateRun(ctx context.Context, run *model.ValidationRun) error
	// SaveRow upserts one row result; re-running a row overwrites it.
	SaveRow(ctx context.Context, runID string, row model.RowResult) error
	// CompleteRun stores the terminal status, completion time, and counts.
	CompleteRun(ctx context.Context, run *model.ValidationRun) error
	// GetRun loads a run with all of its rows, ordered by row index.
	GetRun(ctx context.Context, runID string) (*model.ValidationRun, error)
	// ListRuns returns run summaries (no rows), newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]model.ValidationRun, error)

	Migrate(ctx context.Context) error
	Close() error
}
