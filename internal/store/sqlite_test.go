package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridata/crosscheck-cli/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLite(filepath.Join(t.TempDir(), "crosscheck.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testRun(id string) *model.ValidationRun {
	return &model.ValidationRun{
		ID:             id,
		Status:         model.RunRunning,
		StartedAt:      time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		ConfigSnapshot: json.RawMessage(`{"row_concurrency":5}`),
	}
}

func TestSQLite_RunRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	run := testRun("run-abc")
	require.NoError(t, s.CreateRun(ctx, run))

	row := model.RowResult{
		Index:  0,
		Status: model.RowSuccess,
		Navigation: model.NavigationOutcome{
			URL: "https://example.com/acme", StatusCode: 200, OK: true,
		},
		Fields: []model.FieldResult{{
			Field:      "company_name",
			Expected:   "Acme Corp",
			Extracted:  "Acme Corp",
			Method:     model.MethodDOM,
			Confidence: 1,
			Verdict:    model.VerdictMatch,
		}},
		EvidenceRefs: []string{"run-abc/row_0000/fields.json"},
	}
	require.NoError(t, s.SaveRow(ctx, run.ID, row))

	run.Status = model.RunComplete
	run.CompletedAt = run.StartedAt.Add(42 * time.Second)
	run.Rows = []model.RowResult{row}
	run.Aggregate()
	require.NoError(t, s.CompleteRun(ctx, run))

	got, err := s.GetRun(ctx, "run-abc")
	require.NoError(t, err)

	assert.Equal(t, model.RunComplete, got.Status)
	assert.Equal(t, run.Counts, got.Counts)
	assert.JSONEq(t, `{"row_concurrency":5}`, string(got.ConfigSnapshot))
	require.Len(t, got.Rows, 1)
	assert.Equal(t, model.RowSuccess, got.Rows[0].Status)
	require.Len(t, got.Rows[0].Fields, 1)
	assert.Equal(t, model.VerdictMatch, got.Rows[0].Fields[0].Verdict)
	assert.Equal(t, []string{"run-abc/row_0000/fields.json"}, got.Rows[0].EvidenceRefs)
}

func TestSQLite_SaveRowUpserts(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()
	require.NoError(t, s.CreateRun(ctx, testRun("run-up")))

	row := model.RowResult{Index: 3, Status: model.RowFailed, Fault: "navigate: 503"}
	require.NoError(t, s.SaveRow(ctx, "run-up", row))

	row.Status = model.RowSuccess
	row.Fault = ""
	require.NoError(t, s.SaveRow(ctx, "run-up", row))

	got, err := s.GetRun(ctx, "run-up")
	require.NoError(t, err)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, model.RowSuccess, got.Rows[0].Status)
	assert.Empty(t, got.Rows[0].Fault)
}

func TestSQLite_RowsOrderedByIndex(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()
	require.NoError(t, s.CreateRun(ctx, testRun("run-ord")))

	// Saved out of order; rows finish whenever their goroutine does.
	for _, i := range []int{2, 0, 1} {
		require.NoError(t, s.SaveRow(ctx, "run-ord", model.RowResult{Index: i, Status: model.RowSuccess}))
	}

	got, err := s.GetRun(ctx, "run-ord")
	require.NoError(t, err)
	require.Len(t, got.Rows, 3)
	for i, row := range got.Rows {
		assert.Equal(t, i, row.Index)
	}
}

func TestSQLite_GetRunNotFound(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	_, err := s.GetRun(context.Background(), "run-missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_CompleteRunNotFound(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	err := s.CompleteRun(context.Background(), testRun("run-ghost"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_ListRuns(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	for i, id := range []string{"run-1", "run-2", "run-3"} {
		run := testRun(id)
		run.StartedAt = run.StartedAt.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.CreateRun(ctx, run))
	}

	done := testRun("run-2")
	done.Status = model.RunComplete
	done.CompletedAt = done.StartedAt.Add(time.Minute)
	require.NoError(t, s.CompleteRun(ctx, done))

	all, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "run-3", all[0].ID) // newest first
	assert.Empty(t, all[0].Rows)

	running, err := s.ListRuns(ctx, RunFilter{Status: model.RunRunning})
	require.NoError(t, err)
	assert.Len(t, running, 2)

	limited, err := s.ListRuns(ctx, RunFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "run-2", limited[0].ID)
}
