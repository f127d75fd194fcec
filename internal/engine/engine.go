// Package engine sequences validation work: per-row navigation,
// extraction, and verdicts, fanned out across a bounded worker pool at
// the batch level. Provider faults are absorbed into row results; one
// bad row never takes down a batch.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veridata/crosscheck-cli/internal/model"
	"github.com/veridata/crosscheck-cli/internal/provider"
	"github.com/veridata/crosscheck-cli/internal/reconcile"
	"github.com/veridata/crosscheck-cli/internal/resilience"
	"github.com/veridata/crosscheck-cli/internal/validate"
)

// Config holds the orchestration knobs.
type Config struct {
	// URLTemplate addresses each record's page, with {column} placeholders.
	URLTemplate string
	// RowConcurrency bounds rows validated in parallel.
	RowConcurrency int
	// FieldConcurrency bounds fields extracted in parallel within a row.
	FieldConcurrency int
	// RowTimeout is the wall-clock budget for one row, zero for none.
	RowTimeout time.Duration
	// SnapshotPages captures a full-page screenshot per row for evidence.
	SnapshotPages bool
}

// Deps are the engine's collaborators.
type Deps struct {
	Navigator provider.Navigator
	NavPolicy *resilience.Policy
	Extractor *reconcile.Extractor
	Validator *validate.Validator
	Sink      provider.EvidenceSink
	Mappings  *model.MappingSet

	// OnRowComplete, when set, is invoked from the worker goroutine as
	// each row finishes, before the batch is aggregated. Used to persist
	// rows incrementally so a crashed run keeps its finished rows.
	OnRowComplete func(ctx context.Context, runID string, row model.RowResult)
}

// Engine validates batches of records against live pages.
type Engine struct {
	nav       provider.Navigator
	navPolicy *resilience.Policy
	extractor *reconcile.Extractor
	validator *validate.Validator
	sink      provider.EvidenceSink
	mappings  *model.MappingSet
	onRow     func(ctx context.Context, runID string, row model.RowResult)
	cfg       Config

	nowFunc func() time.Time
}

// New builds an engine. Concurrency limits default to 5 rows and 4
// fields when unset.
func New(deps Deps, cfg Config) *Engine {
	if cfg.RowConcurrency <= 0 {
		cfg.RowConcurrency = 5
	}
	if cfg.FieldConcurrency <= 0 {
		cfg.FieldConcurrency = 4
	}
	return &Engine{
		nav:       deps.Navigator,
		navPolicy: deps.NavPolicy,
		extractor: deps.Extractor,
		validator: deps.Validator,
		sink:      deps.Sink,
		mappings:  deps.Mappings,
		onRow:     deps.OnRowComplete,
		cfg:       cfg,
		nowFunc:   time.Now,
	}
}

// NewRunID mints a run identifier.
func NewRunID() string {
	return "run-" + uuid.NewString()
}

// rowComplete hands a finished row to the completion hook, if any.
func (e *Engine) rowComplete(ctx context.Context, runID string, row model.RowResult) {
	if e.onRow == nil {
		return
	}
	e.onRow(ctx, runID, row)
}

// RunBatch validates every record and returns the aggregated run.
// Cancelling ctx stops admitting new rows; rows already in flight run
// to completion of their own budgets, and unstarted rows are marked
// cancelled.
func (e *Engine) RunBatch(ctx context.Context, runID string, records []model.Record) *model.ValidationRun {
	run := &model.ValidationRun{
		ID:        runID,
		Status:    model.RunRunning,
		StartedAt: e.nowFunc(),
	}
	if snapshot, err := json.Marshal(e.cfg); err == nil {
		run.ConfigSnapshot = snapshot
	}

	zap.L().Info("starting validation run",
		zap.String("run_id", runID),
		zap.Int("rows", len(records)),
		zap.Int("concurrency", e.cfg.RowConcurrency),
	)

	results := make([]model.RowResult, len(records))

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.RowConcurrency)
	for i, rec := range records {
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = model.RowResult{
					Index:  rec.Index,
					Status: model.RowCancelled,
					Fault:  model.ConditionCancelled,
				}
				e.rowComplete(ctx, runID, results[i])
				return nil
			}

			defer func() {
				if r := recover(); r != nil {
					zap.L().Error("row validation panicked",
						zap.String("run_id", runID),
						zap.Int("row", rec.Index),
						zap.Any("panic", r),
					)
					results[i] = model.RowResult{
						Index:  rec.Index,
						Status: model.RowFailed,
						Fault:  fmt.Sprintf("panic: %v", r),
					}
				}
				e.rowComplete(ctx, runID, results[i])
			}()

			results[i] = e.ValidateRow(ctx, runID, rec)

			zap.L().Debug("row validated",
				zap.String("run_id", runID),
				zap.Int("row", rec.Index),
				zap.String("status", string(results[i].Status)),
			)
			return nil
		})
	}
	_ = g.Wait()

	run.Rows = results
	run.CompletedAt = e.nowFunc()
	if ctx.Err() != nil {
		run.Status = model.RunCancelled
	} else {
		run.Status = model.RunComplete
	}
	run.Aggregate()

	zap.L().Info("validation run finished",
		zap.String("run_id", runID),
		zap.String("status", string(run.Status)),
		zap.Int("success", run.Counts.Success),
		zap.Int("partial", run.Counts.Partial),
		zap.Int("failed", run.Counts.Failed),
		zap.Int("cancelled", run.Counts.Cancelled),
		zap.Float64("match_rate", run.Counts.MatchRate()),
	)
	return run
}
