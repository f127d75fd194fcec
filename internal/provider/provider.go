// Package provider defines the narrow capability interfaces the validation
// engine consumes: page navigation, DOM extraction, image-text recognition,
// semantic judgment, and evidence storage. Live implementations wrap the
// clients under pkg/; deterministic stubs back offline mode and tests.
package provider

import (
	"context"

	"github.com/veridata/crosscheck-cli/internal/model"
)

// Provider kinds, used to key circuit breakers and call policies.
const (
	KindNavigation = "navigation"
	KindDOM        = "dom"
	KindOCR        = "ocr"
	KindSemantic   = "semantic"
	KindEvidence   = "evidence"
)

// Page is a handle to a rendered page held open by the navigation provider.
type Page struct {
	ID         string
	URL        string
	FinalURL   string
	StatusCode int
}

// Box is a pixel-space bounding box on a rendered page.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SelectorText is the result of reading one selector from the DOM.
type SelectorText struct {
	Text       string
	Confidence float64
	Bounds     Box
}

// Capture is a PNG crop of a page region.
type Capture struct {
	PNG    []byte
	Bounds Box
}

// Recognition is the result of OCR over an image region.
type Recognition struct {
	Text       string
	Confidence float64
}

// RecognizeOptions hints the recognizer.
type RecognizeOptions struct {
	Language  string // e.g. "eng"
	Whitelist string // restrict recognized characters
	PSM       int    // page segmentation mode; 0 uses the service default
}

// CompareRequest asks the semantic judge whether two values mean the same thing.
type CompareRequest struct {
	Expected  string
	Extracted string
	FieldType model.FieldType
	Context   string
}

// Judgment is the semantic judge's decision. Confidence is the judge's
// certainty in the Match verdict, not a similarity score.
type Judgment struct {
	Match      bool
	Confidence float64
	Reasoning  string
}

// Artifacts is everything the evidence sink persists for one row.
type Artifacts struct {
	Navigation   model.NavigationOutcome
	PageSnapshot []byte            // full-page screenshot or snapshot, may be nil
	RegionCrops  map[string][]byte // field name -> PNG crop
	FieldResults []model.FieldResult
}

// Navigator fetches and renders a URL, returning a page handle.
type Navigator interface {
	Open(ctx context.Context, url string) (*Page, error)
	ClosePage(ctx context.Context, pageID string) error
	Snapshot(ctx context.Context, pageID string) ([]byte, error)
}

// DOMExtractor pulls a value and its bounding box by selector.
type DOMExtractor interface {
	ReadSelector(ctx context.Context, pageID, selector string) (*SelectorText, error)
	CaptureRegion(ctx context.Context, pageID string, bounds Box) (*Capture, error)
}

// ImageText recognizes text in an image region.
type ImageText interface {
	Recognize(ctx context.Context, imagePNG []byte, opts RecognizeOptions) (*Recognition, error)
}

// SemanticJudge scores similarity between an expected and an extracted value.
type SemanticJudge interface {
	Score(ctx context.Context, req CompareRequest) (*Judgment, error)
}

// EvidenceSink persists row artifacts and returns stable references.
// Failures are row-local and never invalidate verdicts.
type EvidenceSink interface {
	Store(ctx context.Context, runID string, rowIndex int, artifacts Artifacts) ([]string, error)
}
