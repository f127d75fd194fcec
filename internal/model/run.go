package model

import (
	"encoding/json"
	"time"
)

// RunStatus is the lifecycle status of a validation run.
type RunStatus string

// Run statuses.
const (
	RunRunning   RunStatus = "running"
	RunComplete  RunStatus = "complete"
	RunCancelled RunStatus = "cancelled"
)

// RunCounts aggregates row and field outcomes for a run.
type RunCounts struct {
	Rows          int `json:"rows"`
	Success       int `json:"success"`
	Partial       int `json:"partial"`
	Failed        int `json:"failed"`
	Cancelled     int `json:"cancelled"`
	FieldsMatched int `json:"fields_matched"`
	FieldsTotal   int `json:"fields_total"`
}

// MatchRate returns the fraction of compared fields that matched.
func (c RunCounts) MatchRate() float64 {
	if c.FieldsTotal == 0 {
		return 0
	}
	return float64(c.FieldsMatched) / float64(c.FieldsTotal)
}

// ValidationRun is the complete outcome of one batch. Rows are ordered by
// input row index regardless of completion order. The struct is frozen once
// the batch orchestrator returns it.
type ValidationRun struct {
	ID          string    `json:"id"`
	Status      RunStatus `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	Rows   []RowResult `json:"rows"`
	Counts RunCounts   `json:"counts"`

	// ConfigSnapshot is the serialized configuration the run executed under.
	ConfigSnapshot json.RawMessage `json:"config_snapshot,omitempty"`
}

// Aggregate recomputes Counts from Rows.
func (r *ValidationRun) Aggregate() {
	var c RunCounts
	c.Rows = len(r.Rows)
	for _, row := range r.Rows {
		switch row.Status {
		case RowSuccess:
			c.Success++
		case RowPartial:
			c.Partial++
		case RowFailed:
			c.Failed++
		case RowCancelled:
			c.Cancelled++
		}
		for _, fr := range row.Fields {
			c.FieldsTotal++
			if fr.Verdict == VerdictMatch {
				c.FieldsMatched++
			}
		}
	}
	r.Counts = c
}
