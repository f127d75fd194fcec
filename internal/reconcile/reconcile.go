// Package reconcile runs a field's configured extraction methods in
// priority order with fallback and settles on a single value. The chain
// stops early once an attempt meets the field's minimum confidence;
// otherwise the highest-confidence attempt wins, ties going to the
// earliest method in configured order.
package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/veridata/crosscheck-cli/internal/model"
	"github.com/veridata/crosscheck-cli/internal/provider"
	"github.com/veridata/crosscheck-cli/internal/resilience"
)

// DefaultMinConfidence applies when a mapping does not set its own.
const DefaultMinConfidence = 0.70

// Result is the reconciled outcome for one field.
type Result struct {
	Attempts     []model.ExtractionAttempt
	Value        string
	Method       model.Method
	Confidence   float64
	Found        bool   // at least one attempt produced a value
	MetThreshold bool   // the chosen attempt met the field's minimum
	Crop         []byte // region capture fed to OCR, kept for evidence
}

// Extractor drives the per-field fallback chain against the DOM and
// image-text providers, each guarded by its own call policy.
type Extractor struct {
	dom       provider.DOMExtractor
	ocr       provider.ImageText
	domPolicy *resilience.Policy
	ocrPolicy *resilience.Policy
	minConf   float64

	nowFunc func() time.Time
}

// NewExtractor builds an extractor. Policies may be nil for unguarded
// calls; defaultMinConfidence of zero falls back to DefaultMinConfidence.
func NewExtractor(dom provider.DOMExtractor, ocr provider.ImageText, domPolicy, ocrPolicy *resilience.Policy, defaultMinConfidence float64) *Extractor {
	if defaultMinConfidence == 0 {
		defaultMinConfidence = DefaultMinConfidence
	}
	return &Extractor{
		dom:       dom,
		ocr:       ocr,
		domPolicy: domPolicy,
		ocrPolicy: ocrPolicy,
		minConf:   defaultMinConfidence,
		nowFunc:   time.Now,
	}
}

// Extract runs the mapping's method chain against an open page.
func (e *Extractor) Extract(ctx context.Context, pageID string, mapping model.FieldMapping) Result {
	methods := mapping.Methods
	if len(methods) == 0 {
		methods = []model.Method{model.MethodDOM}
	}
	minConf := mapping.MinConfidence
	if minConf == 0 {
		minConf = e.minConf
	}

	res := Result{}
	var bounds provider.Box

	for _, method := range methods {
		var attempt model.ExtractionAttempt
		switch method {
		case model.MethodOCR:
			attempt = e.attemptOCR(ctx, pageID, mapping, bounds, &res)
		default:
			attempt = e.attemptDOM(ctx, pageID, mapping, &bounds)
		}
		res.Attempts = append(res.Attempts, attempt)

		if !attempt.OK {
			zap.L().Debug("extraction method failed, falling back",
				zap.String("field", mapping.Source),
				zap.String("method", string(attempt.Method)),
				zap.String("reason", attempt.FailureReason),
			)
			continue
		}

		if attempt.Confidence >= minConf {
			res.Value = attempt.Text
			res.Method = attempt.Method
			res.Confidence = attempt.Confidence
			res.Found = true
			res.MetThreshold = true
			return res
		}
	}

	// No attempt met the minimum; keep the best one for the audit trail.
	for _, attempt := range res.Attempts {
		if !attempt.OK {
			continue
		}
		if !res.Found || attempt.Confidence > res.Confidence {
			res.Value = attempt.Text
			res.Method = attempt.Method
			res.Confidence = attempt.Confidence
			res.Found = true
		}
	}
	return res
}

func (e *Extractor) attemptDOM(ctx context.Context, pageID string, mapping model.FieldMapping, bounds *provider.Box) model.ExtractionAttempt {
	attempt := model.ExtractionAttempt{Method: model.MethodDOM, Timestamp: e.nowFunc()}

	text, err := resilience.Call(ctx, e.domPolicy, func(ctx context.Context) (*provider.SelectorText, error) {
		return e.dom.ReadSelector(ctx, pageID, mapping.Selector)
	})
	if err != nil {
		attempt.FailureReason = err.Error()
		return attempt
	}

	*bounds = text.Bounds
	attempt.Text = text.Text
	attempt.Confidence = text.Confidence
	attempt.OK = true
	return attempt
}

func (e *Extractor) attemptOCR(ctx context.Context, pageID string, mapping model.FieldMapping, bounds provider.Box, res *Result) model.ExtractionAttempt {
	attempt := model.ExtractionAttempt{Method: model.MethodOCR, Timestamp: e.nowFunc()}

	capture, err := resilience.Call(ctx, e.domPolicy, func(ctx context.Context) (*provider.Capture, error) {
		return e.dom.CaptureRegion(ctx, pageID, bounds)
	})
	if err != nil {
		attempt.FailureReason = "capture region: " + err.Error()
		return attempt
	}
	res.Crop = capture.PNG

	recognition, err := resilience.Call(ctx, e.ocrPolicy, func(ctx context.Context) (*provider.Recognition, error) {
		return e.ocr.Recognize(ctx, capture.PNG, provider.RecognizeOptions{
			Language:  mapping.OCRLanguage,
			Whitelist: mapping.OCRWhitelist,
		})
	})
	if err != nil {
		attempt.FailureReason = err.Error()
		return attempt
	}

	attempt.Text = recognition.Text
	attempt.Confidence = recognition.Confidence
	attempt.OK = true
	return attempt
}
