package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridata/crosscheck-cli/internal/model"
	"github.com/veridata/crosscheck-cli/internal/provider"
	"github.com/veridata/crosscheck-cli/internal/resilience"
)

type fakeDOM struct {
	text       string
	confidence float64
	readErr    error
	captureErr error
	png        []byte

	readCalls    int
	captureCalls int
}

func (f *fakeDOM) ReadSelector(_ context.Context, _, selector string) (*provider.SelectorText, error) {
	f.readCalls++
	if f.readErr != nil {
		return nil, f.readErr
	}
	return &provider.SelectorText{
		Text:       f.text,
		Confidence: f.confidence,
		Bounds:     provider.Box{X: 5, Y: 5, Width: 100, Height: 20},
	}, nil
}

func (f *fakeDOM) CaptureRegion(_ context.Context, _ string, _ provider.Box) (*provider.Capture, error) {
	f.captureCalls++
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	png := f.png
	if png == nil {
		png = []byte{0x89, 'P', 'N', 'G'}
	}
	return &provider.Capture{PNG: png}, nil
}

type fakeOCR struct {
	text       string
	confidence float64
	err        error
	calls      int
}

func (f *fakeOCR) Recognize(_ context.Context, _ []byte, _ provider.RecognizeOptions) (*provider.Recognition, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Recognition{Text: f.text, Confidence: f.confidence}, nil
}

func domOCRMapping() model.FieldMapping {
	return model.FieldMapping{
		Source:   "company_name",
		Selector: "h1",
		Type:     model.TypeName,
		Methods:  []model.Method{model.MethodDOM, model.MethodOCR},
	}
}

func TestExtract_DOMMeetsThreshold_StopsEarly(t *testing.T) {
	t.Parallel()

	dom := &fakeDOM{text: "Acme Corp", confidence: 0.95}
	ocr := &fakeOCR{text: "should not be used", confidence: 0.99}
	e := NewExtractor(dom, ocr, nil, nil, 0.70)

	res := e.Extract(context.Background(), "pg-1", domOCRMapping())

	require.Len(t, res.Attempts, 1)
	assert.Equal(t, model.MethodDOM, res.Method)
	assert.Equal(t, "Acme Corp", res.Value)
	assert.Equal(t, 0.95, res.Confidence)
	assert.True(t, res.Found)
	assert.True(t, res.MetThreshold)
	assert.Equal(t, 0, ocr.calls)
}

func TestExtract_DOMFails_OCRWins(t *testing.T) {
	t.Parallel()

	dom := &fakeDOM{readErr: &provider.NotFoundError{Selector: "h1"}}
	ocr := &fakeOCR{text: "Acme Corp", confidence: 0.9}
	e := NewExtractor(dom, ocr, nil, nil, 0.70)

	res := e.Extract(context.Background(), "pg-1", domOCRMapping())

	require.Len(t, res.Attempts, 2)
	assert.False(t, res.Attempts[0].OK)
	assert.Contains(t, res.Attempts[0].FailureReason, "selector not found")
	assert.True(t, res.Attempts[1].OK)

	assert.Equal(t, model.MethodOCR, res.Method)
	assert.Equal(t, 0.9, res.Confidence)
	assert.True(t, res.MetThreshold)
}

func TestExtract_AllBelowThreshold_BestWins(t *testing.T) {
	t.Parallel()

	dom := &fakeDOM{text: "dom value", confidence: 0.5}
	ocr := &fakeOCR{text: "ocr value", confidence: 0.6}
	e := NewExtractor(dom, ocr, nil, nil, 0.70)

	res := e.Extract(context.Background(), "pg-1", domOCRMapping())

	require.Len(t, res.Attempts, 2)
	assert.Equal(t, model.MethodOCR, res.Method)
	assert.Equal(t, "ocr value", res.Value)
	assert.True(t, res.Found)
	assert.False(t, res.MetThreshold)
}

func TestExtract_TieGoesToEarliestMethod(t *testing.T) {
	t.Parallel()

	dom := &fakeDOM{text: "dom value", confidence: 0.5}
	ocr := &fakeOCR{text: "ocr value", confidence: 0.5}
	e := NewExtractor(dom, ocr, nil, nil, 0.70)

	res := e.Extract(context.Background(), "pg-1", domOCRMapping())

	assert.Equal(t, model.MethodDOM, res.Method)
	assert.Equal(t, "dom value", res.Value)
}

func TestExtract_AllMethodsFail(t *testing.T) {
	t.Parallel()

	dom := &fakeDOM{readErr: &provider.NotFoundError{Selector: "h1"}}
	ocr := &fakeOCR{err: &provider.RecognitionError{Err: errors.New("blank image")}}
	e := NewExtractor(dom, ocr, nil, nil, 0.70)

	res := e.Extract(context.Background(), "pg-1", domOCRMapping())

	require.Len(t, res.Attempts, 2)
	assert.False(t, res.Found)
	assert.False(t, res.MetThreshold)
	assert.Empty(t, res.Value)
	for _, attempt := range res.Attempts {
		assert.False(t, attempt.OK)
		assert.NotEmpty(t, attempt.FailureReason)
		assert.False(t, attempt.Timestamp.IsZero())
	}
}

func TestExtract_CaptureFailure_RecordedAsOCRFailure(t *testing.T) {
	t.Parallel()

	dom := &fakeDOM{readErr: errors.New("dom down"), captureErr: errors.New("page gone")}
	ocr := &fakeOCR{text: "never", confidence: 0.9}
	e := NewExtractor(dom, ocr, nil, nil, 0.70)

	res := e.Extract(context.Background(), "pg-1", domOCRMapping())

	require.Len(t, res.Attempts, 2)
	assert.Contains(t, res.Attempts[1].FailureReason, "capture region")
	assert.Equal(t, 0, ocr.calls)
}

func TestExtract_DefaultsToDOMOnly(t *testing.T) {
	t.Parallel()

	dom := &fakeDOM{text: "value", confidence: 0.9}
	ocr := &fakeOCR{}
	e := NewExtractor(dom, ocr, nil, nil, 0)

	m := domOCRMapping()
	m.Methods = nil
	res := e.Extract(context.Background(), "pg-1", m)

	require.Len(t, res.Attempts, 1)
	assert.Equal(t, model.MethodDOM, res.Method)
	assert.Equal(t, 0, ocr.calls)
}

func TestExtract_PerFieldMinConfidenceOverrides(t *testing.T) {
	t.Parallel()

	dom := &fakeDOM{text: "value", confidence: 0.75}
	ocr := &fakeOCR{text: "ocr", confidence: 0.8}
	e := NewExtractor(dom, ocr, nil, nil, 0.70)

	m := domOCRMapping()
	m.MinConfidence = 0.9
	res := e.Extract(context.Background(), "pg-1", m)

	// Neither meets 0.9, so both run and the best is kept.
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, model.MethodOCR, res.Method)
	assert.False(t, res.MetThreshold)
}

func TestExtract_KeepsCropForEvidence(t *testing.T) {
	t.Parallel()

	png := []byte{0x89, 'P', 'N', 'G', 7}
	dom := &fakeDOM{readErr: errors.New("dom down"), png: png}
	ocr := &fakeOCR{text: "Acme", confidence: 0.9}
	e := NewExtractor(dom, ocr, nil, nil, 0.70)

	res := e.Extract(context.Background(), "pg-1", domOCRMapping())

	assert.Equal(t, png, res.Crop)
}

func TestExtract_OpenCircuitSkipsRenderCalls(t *testing.T) {
	t.Parallel()

	breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		FailureThreshold: 1,
		CoolDown:         1 * time.Hour,
	})
	// Trip the render-service breaker up front.
	_ = breaker.Execute(context.Background(), func(_ context.Context) error {
		return errors.New("down")
	})

	dom := &fakeDOM{text: "never read", confidence: 0.99}
	ocr := &fakeOCR{text: "never recognized", confidence: 0.9}
	domPolicy := &resilience.Policy{Breaker: breaker, Retry: resilience.RetryConfig{MaxAttempts: 1}}
	e := NewExtractor(dom, ocr, domPolicy, nil, 0.70)

	res := e.Extract(context.Background(), "pg-1", domOCRMapping())

	// Both the selector read and the OCR's region capture ride the render
	// service; with its breaker open, neither provider is invoked.
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, 0, dom.readCalls)
	assert.Equal(t, 0, dom.captureCalls)
	assert.Equal(t, 0, ocr.calls)
	assert.Contains(t, res.Attempts[0].FailureReason, "circuit")
	assert.Contains(t, res.Attempts[1].FailureReason, "circuit")
	assert.False(t, res.Found)
}
