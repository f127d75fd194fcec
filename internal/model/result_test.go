package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRecord(t *testing.T) {
	t.Parallel()

	header := []string{"id", "name", "email"}

	t.Run("full row", func(t *testing.T) {
		t.Parallel()
		r := NewRecord(0, header, []string{"123", "Ana Souza", "ana@ex.test"})
		v, ok := r.Value("name")
		assert.True(t, ok)
		assert.Equal(t, "Ana Souza", v)
		assert.Equal(t, header, r.Columns)
	})

	t.Run("short row pads with empty strings", func(t *testing.T) {
		t.Parallel()
		r := NewRecord(1, header, []string{"456"})
		v, ok := r.Value("email")
		assert.True(t, ok)
		assert.Empty(t, v)
	})

	t.Run("extra cells dropped", func(t *testing.T) {
		t.Parallel()
		r := NewRecord(2, header, []string{"1", "2", "3", "4"})
		assert.Len(t, r.Values, 3)
		assert.False(t, r.Has("extra"))
	})
}

func TestDeriveRowStatus(t *testing.T) {
	t.Parallel()

	set := NewMappingSet([]FieldMapping{
		{Source: "email", Required: true},
		{Source: "bio", Required: false},
	})

	tests := []struct {
		name   string
		navOK  bool
		fields []FieldResult
		want   RowStatus
	}{
		{
			name:  "navigation failure",
			navOK: false,
			want:  RowFailed,
		},
		{
			name:  "all required match",
			navOK: true,
			fields: []FieldResult{
				{Field: "email", Verdict: VerdictMatch},
				{Field: "bio", Verdict: VerdictMismatch},
			},
			want: RowSuccess,
		},
		{
			name:  "required mismatch",
			navOK: true,
			fields: []FieldResult{
				{Field: "email", Verdict: VerdictMismatch},
			},
			want: RowPartial,
		},
		{
			name:  "required indeterminate",
			navOK: true,
			fields: []FieldResult{
				{Field: "email", Verdict: VerdictIndeterminate},
			},
			want: RowPartial,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DeriveRowStatus(tt.navOK, tt.fields, set))
		})
	}
}

func TestValidationRun_Aggregate(t *testing.T) {
	t.Parallel()

	run := &ValidationRun{
		Rows: []RowResult{
			{Status: RowSuccess, Fields: []FieldResult{
				{Verdict: VerdictMatch},
				{Verdict: VerdictMatch},
			}},
			{Status: RowPartial, Fields: []FieldResult{
				{Verdict: VerdictMismatch},
				{Verdict: VerdictMatch},
			}},
			{Status: RowFailed},
			{Status: RowCancelled},
		},
	}

	run.Aggregate()

	assert.Equal(t, 4, run.Counts.Rows)
	assert.Equal(t, 1, run.Counts.Success)
	assert.Equal(t, 1, run.Counts.Partial)
	assert.Equal(t, 1, run.Counts.Failed)
	assert.Equal(t, 1, run.Counts.Cancelled)
	assert.Equal(t, 3, run.Counts.FieldsMatched)
	assert.Equal(t, 4, run.Counts.FieldsTotal)
	assert.InDelta(t, 0.75, run.Counts.MatchRate(), 1e-9)
}

func TestRunCounts_MatchRate_Empty(t *testing.T) {
	t.Parallel()
	assert.Zero(t, RunCounts{}.MatchRate())
}
