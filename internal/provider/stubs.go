package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Compile-time interface checks.
var (
	_ Navigator     = (*StubNavigator)(nil)
	_ DOMExtractor  = (*StubDOMExtractor)(nil)
	_ ImageText     = (*StubImageText)(nil)
	_ SemanticJudge = (*StubSemanticJudge)(nil)
	_ EvidenceSink  = (*StubEvidenceSink)(nil)
)

// StubNavigator opens every URL successfully unless listed in FailURLs.
type StubNavigator struct {
	FailURLs map[string]bool

	mu     sync.Mutex
	opened int
}

// Open implements Navigator.
func (s *StubNavigator) Open(_ context.Context, url string) (*Page, error) {
	if s.FailURLs[url] {
		return nil, &NavigationError{URL: url, Err: fmt.Errorf("stub: configured failure")}
	}
	s.mu.Lock()
	s.opened++
	id := fmt.Sprintf("stub-page-%03d", s.opened)
	s.mu.Unlock()
	return &Page{ID: id, URL: url, FinalURL: url, StatusCode: 200}, nil
}

// ClosePage implements Navigator.
func (s *StubNavigator) ClosePage(_ context.Context, _ string) error { return nil }

// Snapshot implements Navigator.
func (s *StubNavigator) Snapshot(_ context.Context, pageID string) ([]byte, error) {
	return []byte("stub-snapshot:" + pageID), nil
}

// Opened returns how many pages the stub has opened.
func (s *StubNavigator) Opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// StubDOMExtractor serves selector reads from a fixed map. Selectors absent
// from Values return NotFoundError.
type StubDOMExtractor struct {
	Values     map[string]string // selector -> text
	Confidence float64           // default 0.95
}

// ReadSelector implements DOMExtractor.
func (s *StubDOMExtractor) ReadSelector(_ context.Context, _ string, selector string) (*SelectorText, error) {
	text, ok := s.Values[selector]
	if !ok {
		return nil, &NotFoundError{Selector: selector}
	}
	conf := s.Confidence
	if conf == 0 {
		conf = 0.95
	}
	return &SelectorText{
		Text:       text,
		Confidence: conf,
		Bounds:     Box{X: 10, Y: 10, Width: 200, Height: 24},
	}, nil
}

// CaptureRegion implements DOMExtractor.
func (s *StubDOMExtractor) CaptureRegion(_ context.Context, pageID string, bounds Box) (*Capture, error) {
	return &Capture{
		PNG:    []byte(fmt.Sprintf("stub-crop:%s:%d,%d", pageID, bounds.X, bounds.Y)),
		Bounds: bounds,
	}, nil
}

// StubImageText recognizes from a fixed answer, simulating OCR over crops.
type StubImageText struct {
	Text       string
	Confidence float64 // default 0.9
	Fail       bool
}

// Recognize implements ImageText.
func (s *StubImageText) Recognize(_ context.Context, _ []byte, _ RecognizeOptions) (*Recognition, error) {
	if s.Fail {
		return nil, &RecognitionError{Err: fmt.Errorf("stub: configured failure")}
	}
	conf := s.Confidence
	if conf == 0 {
		conf = 0.9
	}
	return &Recognition{Text: s.Text, Confidence: conf}, nil
}

// StubSemanticJudge matches on case-insensitive equality, simulating the
// judge without a model behind it.
type StubSemanticJudge struct {
	Unavailable bool
}

// Score implements SemanticJudge.
func (s *StubSemanticJudge) Score(_ context.Context, req CompareRequest) (*Judgment, error) {
	if s.Unavailable {
		return nil, &UnavailableError{Kind: KindSemantic, Err: fmt.Errorf("stub: unavailable")}
	}
	if strings.EqualFold(strings.TrimSpace(req.Expected), strings.TrimSpace(req.Extracted)) {
		return &Judgment{Match: true, Confidence: 0.95, Reasoning: "stub: equal after fold"}, nil
	}
	return &Judgment{Match: false, Confidence: 0.9, Reasoning: "stub: not equal"}, nil
}

// StubEvidenceSink records artifacts in memory.
type StubEvidenceSink struct {
	Fail bool

	mu     sync.Mutex
	stored map[string]Artifacts
}

// Store implements EvidenceSink.
func (s *StubEvidenceSink) Store(_ context.Context, runID string, rowIndex int, artifacts Artifacts) ([]string, error) {
	if s.Fail {
		return nil, &StorageError{Err: fmt.Errorf("stub: configured failure")}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stored == nil {
		s.stored = make(map[string]Artifacts)
	}
	key := fmt.Sprintf("%s/row_%04d", runID, rowIndex)
	s.stored[key] = artifacts
	refs := []string{key + "/fields.json"}
	if artifacts.PageSnapshot != nil {
		refs = append(refs, key+"/page.png")
	}
	for field := range artifacts.RegionCrops {
		refs = append(refs, fmt.Sprintf("%s/%s.png", key, field))
	}
	return refs, nil
}

// Stored returns the artifacts recorded for a row, if any.
func (s *StubEvidenceSink) Stored(runID string, rowIndex int) (Artifacts, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.stored[fmt.Sprintf("%s/row_%04d", runID, rowIndex)]
	return a, ok
}
