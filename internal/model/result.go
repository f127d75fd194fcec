package model

import "time"

// Verdict is the per-field comparison outcome.
type Verdict string

// Field verdicts.
const (
	VerdictMatch         Verdict = "match"
	VerdictMismatch      Verdict = "mismatch"
	VerdictIndeterminate Verdict = "indeterminate"
)

// Field and row conditions recorded alongside results.
const (
	ConditionMissingRequired = "missing-required-field"
	ConditionCircuitOpen     = "circuit-open"
	ConditionRowTimeout      = "row-timeout"
	ConditionCancelled       = "cancelled"
)

// ExtractionAttempt is one try of one method against one field. Attempts are
// immutable once recorded and are kept in chain order for audit.
type ExtractionAttempt struct {
	Method        Method    `json:"method"`
	Text          string    `json:"text,omitempty"`
	Confidence    float64   `json:"confidence"`
	OK            bool      `json:"ok"`
	FailureReason string    `json:"failure_reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// FieldResult is the terminal outcome for one field of one record.
// When Extracted is non-empty, Method and Confidence reference one of the
// recorded Attempts.
type FieldResult struct {
	Field      string  `json:"field"`
	Expected   string  `json:"expected"`
	Extracted  string  `json:"extracted,omitempty"`
	Method     Method  `json:"method,omitempty"`
	Confidence float64 `json:"confidence"`
	Verdict    Verdict `json:"verdict"`
	Condition  string  `json:"condition,omitempty"`

	// Degraded marks a semantic/hybrid field decided by the fuzzy fallback
	// because the semantic judge was unavailable.
	Degraded     bool   `json:"degraded,omitempty"`
	DegradedNote string `json:"degraded_note,omitempty"`

	Attempts []ExtractionAttempt `json:"attempts"`
}

// RowStatus is the terminal status of one record's validation.
type RowStatus string

// Row statuses.
const (
	RowSuccess   RowStatus = "success"
	RowPartial   RowStatus = "partial"
	RowFailed    RowStatus = "failed"
	RowCancelled RowStatus = "cancelled"
)

// NavigationOutcome records how the per-record page load went.
type NavigationOutcome struct {
	URL        string `json:"url"`
	FinalURL   string `json:"final_url,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
}

// RowResult is one record's full validation outcome.
type RowResult struct {
	Index        int               `json:"index"`
	Status       RowStatus         `json:"status"`
	Navigation   NavigationOutcome `json:"navigation"`
	Fields       []FieldResult     `json:"fields,omitempty"`
	EvidenceRefs []string          `json:"evidence_refs,omitempty"`
	RetryCount   int               `json:"retry_count"`
	ElapsedMS    int64             `json:"elapsed_ms"`
	Fault        string            `json:"fault,omitempty"`
}

// DeriveRowStatus applies the row status invariant: failed iff navigation
// never succeeded, partial iff any required field is not a match, else success.
func DeriveRowStatus(navOK bool, fields []FieldResult, mappings *MappingSet) RowStatus {
	if !navOK {
		return RowFailed
	}
	for _, fr := range fields {
		m := mappings.BySource(fr.Field)
		if m == nil || !m.Required {
			continue
		}
		if fr.Verdict != VerdictMatch {
			return RowPartial
		}
	}
	return RowSuccess
}
