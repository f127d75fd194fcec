package validate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/veridata/crosscheck-cli/internal/model"
	"github.com/veridata/crosscheck-cli/internal/provider"
	"github.com/veridata/crosscheck-cli/internal/resilience"
)

// Defaults apply when a mapping leaves a threshold unset.
type Defaults struct {
	FuzzyThreshold  float64 // minimum similarity for a fuzzy match
	EscalationFloor float64 // hybrid escalates when score is in (floor, threshold)
	Tolerance       float64 // absolute tolerance for number/currency; days for dates
}

// DefaultThresholds returns the standard decision thresholds.
func DefaultThresholds() Defaults {
	return Defaults{
		FuzzyThreshold:  0.85,
		EscalationFloor: 0.60,
		Tolerance:       0,
	}
}

// Decision is the outcome of comparing one expected/extracted pair.
type Decision struct {
	Verdict      model.Verdict
	Confidence   float64
	Degraded     bool
	DegradedNote string
	Reasoning    string
}

// Validator renders verdicts for extracted field values. The semantic
// judge is optional; strategies that need it degrade to fuzzy when it
// is missing or failing.
type Validator struct {
	judge    provider.SemanticJudge
	policy   *resilience.Policy
	defaults Defaults
}

// NewValidator builds a validator. policy may be nil, in which case
// semantic calls go out unguarded.
func NewValidator(judge provider.SemanticJudge, policy *resilience.Policy, defaults Defaults) *Validator {
	if defaults.FuzzyThreshold == 0 {
		defaults.FuzzyThreshold = 0.85
	}
	if defaults.EscalationFloor == 0 {
		defaults.EscalationFloor = 0.60
	}
	return &Validator{judge: judge, policy: policy, defaults: defaults}
}

// Decide compares expected against extracted under the mapping's
// strategy. It never returns an error: provider failures degrade and
// are reported on the Decision.
func (v *Validator) Decide(ctx context.Context, mapping model.FieldMapping, expected, extracted string) Decision {
	normExpected := Normalize(mapping.Type, expected)
	normExtracted := Normalize(mapping.Type, extracted)

	switch mapping.Strategy {
	case model.StrategySemantic:
		return v.decideSemantic(ctx, mapping, expected, extracted, normExpected, normExtracted)
	case model.StrategyHybrid:
		return v.decideHybrid(ctx, mapping, expected, extracted, normExpected, normExtracted)
	case model.StrategyFuzzy:
		return v.decideFuzzy(mapping, normExpected, normExtracted)
	default:
		return decideExact(normExpected, normExtracted)
	}
}

func decideExact(normExpected, normExtracted string) Decision {
	if normExpected == normExtracted {
		return Decision{Verdict: model.VerdictMatch, Confidence: 1.0, Reasoning: "normalized values identical"}
	}
	return Decision{Verdict: model.VerdictMismatch, Confidence: 0.0, Reasoning: "normalized values differ"}
}

func (v *Validator) decideFuzzy(mapping model.FieldMapping, normExpected, normExtracted string) Decision {
	if usesTolerance(mapping.Type) {
		return v.decideTolerance(mapping, normExpected, normExtracted)
	}

	score := Similarity(normExpected, normExtracted)
	threshold := v.fuzzyThreshold(mapping)
	if score >= threshold {
		return Decision{
			Verdict:    model.VerdictMatch,
			Confidence: score,
			Reasoning:  fmt.Sprintf("similarity %.2f >= threshold %.2f", score, threshold),
		}
	}
	return Decision{
		Verdict:    model.VerdictMismatch,
		Confidence: score,
		Reasoning:  fmt.Sprintf("similarity %.2f < threshold %.2f", score, threshold),
	}
}

// decideTolerance compares numbers and dates by absolute difference.
// Unparseable values fall back to exact comparison of normalized forms.
func (v *Validator) decideTolerance(mapping model.FieldMapping, normExpected, normExtracted string) Decision {
	tol := mapping.Tolerance
	if tol == 0 {
		tol = v.defaults.Tolerance
	}

	var diff float64
	var parsed bool
	if mapping.Type == model.TypeDate {
		a, errA := time.Parse("2006-01-02", normExpected)
		b, errB := time.Parse("2006-01-02", normExtracted)
		if errA == nil && errB == nil {
			diff = math.Abs(a.Sub(b).Hours() / 24)
			parsed = true
		}
	} else {
		a, errA := strconv.ParseFloat(normExpected, 64)
		b, errB := strconv.ParseFloat(normExtracted, 64)
		if errA == nil && errB == nil {
			diff = math.Abs(a - b)
			parsed = true
		}
	}

	if !parsed {
		return decideExact(normExpected, normExtracted)
	}
	if diff <= tol {
		return Decision{
			Verdict:    model.VerdictMatch,
			Confidence: 1.0,
			Reasoning:  fmt.Sprintf("difference %.4g within tolerance %.4g", diff, tol),
		}
	}
	return Decision{
		Verdict:    model.VerdictMismatch,
		Confidence: 0.0,
		Reasoning:  fmt.Sprintf("difference %.4g exceeds tolerance %.4g", diff, tol),
	}
}

func (v *Validator) decideSemantic(ctx context.Context, mapping model.FieldMapping, expected, extracted, normExpected, normExtracted string) Decision {
	judgment, err := v.score(ctx, mapping, expected, extracted)
	if err != nil {
		d := v.decideFuzzy(mapping, normExpected, normExtracted)
		d.Degraded = true
		d.DegradedNote = "semantic provider unavailable; decided by fuzzy comparison"
		zap.L().Warn("semantic judge unavailable, degrading to fuzzy",
			zap.String("field", mapping.Source),
			zap.Error(err),
		)
		return d
	}

	verdict := model.VerdictMismatch
	if judgment.Match {
		verdict = model.VerdictMatch
	}
	return Decision{Verdict: verdict, Confidence: judgment.Confidence, Reasoning: judgment.Reasoning}
}

func (v *Validator) decideHybrid(ctx context.Context, mapping model.FieldMapping, expected, extracted, normExpected, normExtracted string) Decision {
	fuzzy := v.decideFuzzy(mapping, normExpected, normExtracted)

	// Tolerance comparisons are binary; nothing ambiguous to escalate.
	if usesTolerance(mapping.Type) {
		return fuzzy
	}

	threshold := v.fuzzyThreshold(mapping)
	floor := mapping.EscalationFloor
	if floor == 0 {
		floor = v.defaults.EscalationFloor
	}

	// Clear outcomes skip the expensive judge call.
	if fuzzy.Confidence >= threshold || fuzzy.Confidence <= floor {
		return fuzzy
	}

	semantic := v.decideSemantic(ctx, mapping, expected, extracted, normExpected, normExtracted)
	if semantic.Degraded {
		fuzzy.Degraded = true
		fuzzy.DegradedNote = semantic.DegradedNote
		return fuzzy
	}
	semantic.Reasoning = fmt.Sprintf("escalated at similarity %.2f: %s", fuzzy.Confidence, semantic.Reasoning)
	return semantic
}

func (v *Validator) score(ctx context.Context, mapping model.FieldMapping, expected, extracted string) (*provider.Judgment, error) {
	req := provider.CompareRequest{
		Expected:  expected,
		Extracted: extracted,
		FieldType: mapping.Type,
		Context:   mapping.Source,
	}
	if v.judge == nil {
		return nil, &provider.UnavailableError{Kind: provider.KindSemantic, Err: errors.New("no judge configured")}
	}
	if v.policy == nil {
		return v.judge.Score(ctx, req)
	}
	return resilience.Call(ctx, v.policy, func(ctx context.Context) (*provider.Judgment, error) {
		return v.judge.Score(ctx, req)
	})
}

func (v *Validator) fuzzyThreshold(mapping model.FieldMapping) float64 {
	if mapping.FuzzyThreshold > 0 {
		return mapping.FuzzyThreshold
	}
	return v.defaults.FuzzyThreshold
}

func usesTolerance(t model.FieldType) bool {
	return t == model.TypeNumber || t == model.TypeCurrency || t == model.TypeDate
}
