package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veridata/crosscheck-cli/internal/model"
	"github.com/veridata/crosscheck-cli/internal/provider"
	"github.com/veridata/crosscheck-cli/internal/resilience"
)

// interpolateURL substitutes {column} placeholders in the URL template
// with query-escaped record values. A placeholder with no matching
// column is a hard error: the row cannot be addressed.
func interpolateURL(template string, rec model.Record) (string, error) {
	var b strings.Builder
	rest := template
	for {
		open := strings.Index(rest, "{")
		if open < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		closing := strings.Index(rest[open:], "}")
		if closing < 0 {
			return "", fmt.Errorf("unterminated placeholder in url template %q", template)
		}
		closing += open

		b.WriteString(rest[:open])
		column := rest[open+1 : closing]
		value, ok := rec.Value(column)
		if !ok || value == "" {
			return "", fmt.Errorf("url template references column %q with no value in row %d", column, rec.Index)
		}
		b.WriteString(url.QueryEscape(value))
		rest = rest[closing+1:]
	}
}

// ValidateRow runs the full per-record sequence: navigate, extract and
// validate every mapped field, then persist evidence. Provider faults
// never escape; they land in the RowResult.
func (e *Engine) ValidateRow(ctx context.Context, runID string, rec model.Record) model.RowResult {
	start := e.nowFunc()
	result := model.RowResult{Index: rec.Index}

	rowCtx := ctx
	var cancel context.CancelFunc
	if e.cfg.RowTimeout > 0 {
		rowCtx, cancel = context.WithTimeout(ctx, e.cfg.RowTimeout)
		defer cancel()
	}

	defer func() {
		result.ElapsedMS = e.nowFunc().Sub(start).Milliseconds()
	}()

	target, err := interpolateURL(e.cfg.URLTemplate, rec)
	if err != nil {
		result.Status = model.RowFailed
		result.Fault = err.Error()
		return result
	}
	result.Navigation.URL = target

	// Count navigation retries for the row's audit record.
	var navRetries int
	navPolicy := e.navPolicy
	if navPolicy != nil {
		p := *navPolicy
		parent := p.Retry.OnRetry
		p.Retry.OnRetry = func(attempt int, err error) {
			navRetries++
			if parent != nil {
				parent(attempt, err)
			}
		}
		navPolicy = &p
	}

	page, err := resilience.Call(rowCtx, navPolicy, func(ctx context.Context) (*provider.Page, error) {
		return e.nav.Open(ctx, target)
	})
	result.RetryCount = navRetries
	if err != nil {
		result.Navigation.Error = err.Error()
		result.Status = e.faultStatus(ctx, rowCtx, &result, err)
		e.storeEvidence(runID, &result, nil, nil)
		return result
	}

	result.Navigation.OK = true
	result.Navigation.FinalURL = page.FinalURL
	result.Navigation.StatusCode = page.StatusCode

	defer func() {
		// Close with a fresh context so a spent row budget still
		// releases the page.
		closeCtx, closeCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer closeCancel()
		if err := e.nav.ClosePage(closeCtx, page.ID); err != nil {
			zap.L().Debug("page close failed", zap.String("page_id", page.ID), zap.Error(err))
		}
	}()

	fields := make([]model.FieldResult, len(e.mappings.Mappings))
	crops := make(map[string][]byte)
	var cropsMu sync.Mutex

	g, gCtx := errgroup.WithContext(rowCtx)
	g.SetLimit(e.cfg.FieldConcurrency)
	for i := range e.mappings.Mappings {
		mapping := e.mappings.Mappings[i]
		g.Go(func() error {
			fr, crop := e.validateField(gCtx, page.ID, mapping, rec)
			fields[i] = fr
			if crop != nil {
				cropsMu.Lock()
				crops[mapping.Source] = crop
				cropsMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	result.Fields = fields

	if rowCtx.Err() != nil {
		result.Status = e.faultStatus(ctx, rowCtx, &result, rowCtx.Err())
		e.storeEvidence(runID, &result, nil, crops)
		return result
	}

	var snapshot []byte
	if e.cfg.SnapshotPages {
		if snap, err := e.nav.Snapshot(rowCtx, page.ID); err == nil {
			snapshot = snap
		} else {
			zap.L().Debug("page snapshot failed", zap.Int("row", rec.Index), zap.Error(err))
		}
	}

	result.Status = model.DeriveRowStatus(true, fields, e.mappings)
	e.storeEvidence(runID, &result, snapshot, crops)
	return result
}

// validateField runs extraction and comparison for one mapped field.
func (e *Engine) validateField(ctx context.Context, pageID string, mapping model.FieldMapping, rec model.Record) (model.FieldResult, []byte) {
	fr := model.FieldResult{Field: mapping.Source}

	expected, ok := rec.Value(mapping.Source)
	fr.Expected = expected
	if !ok || strings.TrimSpace(expected) == "" {
		fr.Verdict = model.VerdictIndeterminate
		if mapping.Required {
			fr.Condition = model.ConditionMissingRequired
		}
		return fr, nil
	}

	res := e.extractor.Extract(ctx, pageID, mapping)
	fr.Attempts = res.Attempts

	switch {
	case !res.Found:
		fr.Verdict = model.VerdictIndeterminate
		if mapping.Required {
			fr.Condition = model.ConditionMissingRequired
		}
		if attemptsRejectedByBreaker(res.Attempts) {
			fr.Condition = model.ConditionCircuitOpen
		}
	case !res.MetThreshold:
		// Extraction produced something, but nothing trustworthy
		// enough to compare against.
		fr.Extracted = res.Value
		fr.Method = res.Method
		fr.Confidence = res.Confidence
		fr.Verdict = model.VerdictIndeterminate
		if mapping.Required {
			fr.Condition = model.ConditionMissingRequired
		}
	default:
		decision := e.validator.Decide(ctx, mapping, expected, res.Value)
		fr.Extracted = res.Value
		fr.Method = res.Method
		fr.Confidence = decision.Confidence
		fr.Verdict = decision.Verdict
		fr.Degraded = decision.Degraded
		fr.DegradedNote = decision.DegradedNote
	}

	return fr, res.Crop
}

// attemptsRejectedByBreaker reports whether every attempt died on an
// open circuit rather than a provider failure.
func attemptsRejectedByBreaker(attempts []model.ExtractionAttempt) bool {
	if len(attempts) == 0 {
		return false
	}
	for _, a := range attempts {
		if a.OK || !strings.Contains(a.FailureReason, resilience.ErrCircuitOpen.Error()) {
			return false
		}
	}
	return true
}

// faultStatus distinguishes caller cancellation from a spent row budget
// and records the matching fault condition.
func (e *Engine) faultStatus(parent, rowCtx context.Context, result *model.RowResult, err error) model.RowStatus {
	if parent.Err() != nil {
		result.Fault = model.ConditionCancelled
		return model.RowCancelled
	}
	if errors.Is(rowCtx.Err(), context.DeadlineExceeded) {
		result.Fault = model.ConditionRowTimeout
		return model.RowFailed
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		result.Fault = model.ConditionCircuitOpen
	}
	return model.RowFailed
}

// storeEvidence persists row artifacts; failures are logged, never fatal.
func (e *Engine) storeEvidence(runID string, result *model.RowResult, snapshot []byte, crops map[string][]byte) {
	if e.sink == nil {
		return
	}

	// Evidence writes get their own small budget, detached from the row.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	refs, err := e.sink.Store(ctx, runID, result.Index, provider.Artifacts{
		Navigation:   result.Navigation,
		PageSnapshot: snapshot,
		RegionCrops:  crops,
		FieldResults: result.Fields,
	})
	if err != nil {
		zap.L().Warn("evidence persistence failed",
			zap.String("run_id", runID),
			zap.Int("row", result.Index),
			zap.Error(err),
		)
		return
	}
	result.EvidenceRefs = refs
}
