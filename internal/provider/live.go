package provider

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/veridata/crosscheck-cli/internal/resilience"
	"github.com/veridata/crosscheck-cli/pkg/browserd"
	"github.com/veridata/crosscheck-cli/pkg/judge"
	"github.com/veridata/crosscheck-cli/pkg/ocrd"
)

// Compile-time interface checks.
var (
	_ Navigator     = (*LiveNavigator)(nil)
	_ DOMExtractor  = (*LiveDOMExtractor)(nil)
	_ ImageText     = (*LiveImageText)(nil)
	_ SemanticJudge = (*LiveSemanticJudge)(nil)
)

// classifyStatus wraps service status errors so the retry layer knows
// which are worth another attempt. Anything else (network-level) is
// treated as transient.
func classifyStatus(err error, code int) error {
	if resilience.IsTransientHTTPStatus(code) {
		return resilience.NewTransientError(err, code)
	}
	return resilience.NewFatalError(err)
}

// LiveNavigator adapts the render service client, rate-limiting page
// opens so batch concurrency cannot stampede one host.
type LiveNavigator struct {
	client  browserd.Client
	limiter *rate.Limiter
	wait    string
}

// NewLiveNavigator wraps a render client. opensPerSec caps navigation
// rate across the whole process; zero disables the limit.
func NewLiveNavigator(client browserd.Client, opensPerSec float64, waitUntil string) *LiveNavigator {
	var limiter *rate.Limiter
	if opensPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opensPerSec), 1)
	}
	return &LiveNavigator{client: client, limiter: limiter, wait: waitUntil}
}

// Open implements Navigator.
func (n *LiveNavigator) Open(ctx context.Context, url string) (*Page, error) {
	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var opts []browserd.OpenOption
	if n.wait != "" {
		opts = append(opts, browserd.WithWaitUntil(n.wait))
	}

	resp, err := n.client.Open(ctx, url, opts...)
	if err != nil {
		navErr := &NavigationError{URL: url, Err: err}
		var se *browserd.StatusError
		if errors.As(err, &se) {
			return nil, classifyStatus(navErr, se.Code)
		}
		if ctx.Err() != nil {
			return nil, navErr
		}
		return nil, resilience.NewTransientError(navErr, 0)
	}

	// The service reports the target page's status; a 5xx from the
	// target may clear on retry, a 4xx will not.
	if resp.StatusCode >= 400 {
		navErr := &NavigationError{URL: url, Err: &browserd.StatusError{Code: resp.StatusCode, Body: "target page error"}}
		return nil, classifyStatus(navErr, resp.StatusCode)
	}

	return &Page{
		ID:         resp.PageID,
		URL:        url,
		FinalURL:   resp.FinalURL,
		StatusCode: resp.StatusCode,
	}, nil
}

// ClosePage implements Navigator.
func (n *LiveNavigator) ClosePage(ctx context.Context, pageID string) error {
	return n.client.Close(ctx, pageID)
}

// Snapshot implements Navigator.
func (n *LiveNavigator) Snapshot(ctx context.Context, pageID string) ([]byte, error) {
	png, err := n.client.Screenshot(ctx, pageID, nil)
	if err != nil {
		return nil, classifyClientError(err, ctx)
	}
	return png, nil
}

// LiveDOMExtractor adapts the render service's selector reads.
type LiveDOMExtractor struct {
	client browserd.Client
}

// NewLiveDOMExtractor wraps a render client for DOM extraction.
func NewLiveDOMExtractor(client browserd.Client) *LiveDOMExtractor {
	return &LiveDOMExtractor{client: client}
}

// ReadSelector implements DOMExtractor. A missing selector is transient:
// slow-rendering pages often surface the element on a later attempt.
func (d *LiveDOMExtractor) ReadSelector(ctx context.Context, pageID, selector string) (*SelectorText, error) {
	resp, err := d.client.Text(ctx, pageID, selector)
	if err != nil {
		var se *browserd.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, resilience.NewTransientError(&NotFoundError{Selector: selector}, se.Code)
		}
		return nil, classifyClientError(err, ctx)
	}
	return &SelectorText{
		Text:       resp.Text,
		Confidence: resp.Confidence,
		Bounds:     Box{X: resp.Box.X, Y: resp.Box.Y, Width: resp.Box.Width, Height: resp.Box.Height},
	}, nil
}

// CaptureRegion implements DOMExtractor. A zero-sized box captures the
// whole page, for when no selector ever produced bounds.
func (d *LiveDOMExtractor) CaptureRegion(ctx context.Context, pageID string, bounds Box) (*Capture, error) {
	var clip *browserd.Clip
	if bounds.Width > 0 && bounds.Height > 0 {
		clip = &browserd.Clip{X: bounds.X, Y: bounds.Y, Width: bounds.Width, Height: bounds.Height}
	}
	png, err := d.client.Screenshot(ctx, pageID, clip)
	if err != nil {
		return nil, classifyClientError(err, ctx)
	}
	return &Capture{PNG: png, Bounds: bounds}, nil
}

// LiveImageText adapts the OCR service client.
type LiveImageText struct {
	client ocrd.Client
}

// NewLiveImageText wraps an OCR client.
func NewLiveImageText(client ocrd.Client) *LiveImageText {
	return &LiveImageText{client: client}
}

// Recognize implements ImageText.
func (o *LiveImageText) Recognize(ctx context.Context, imagePNG []byte, opts RecognizeOptions) (*Recognition, error) {
	resp, err := o.client.Extract(ctx, imagePNG, ocrd.Options{
		Language:  opts.Language,
		PSM:       opts.PSM,
		Whitelist: opts.Whitelist,
		Grayscale: true,
	})
	if err != nil {
		recErr := &RecognitionError{Err: err}
		var se *ocrd.StatusError
		if errors.As(err, &se) {
			return nil, classifyStatus(recErr, se.Code)
		}
		if ctx.Err() != nil {
			return nil, recErr
		}
		return nil, resilience.NewTransientError(recErr, 0)
	}
	return &Recognition{Text: resp.Text, Confidence: resp.Confidence}, nil
}

// LiveSemanticJudge adapts the model-backed comparison client.
type LiveSemanticJudge struct {
	client judge.Client
}

// NewLiveSemanticJudge wraps a judge client. A nil client means the
// judge was not configured; Score reports UnavailableError so callers
// can degrade to fuzzy comparison.
func NewLiveSemanticJudge(client judge.Client) *LiveSemanticJudge {
	return &LiveSemanticJudge{client: client}
}

// Score implements SemanticJudge.
func (j *LiveSemanticJudge) Score(ctx context.Context, req CompareRequest) (*Judgment, error) {
	if j.client == nil {
		return nil, resilience.NewFatalError(&UnavailableError{
			Kind: KindSemantic,
			Err:  errors.New("judge not configured"),
		})
	}

	resp, err := j.client.Compare(ctx, judge.CompareRequest{
		FieldName: req.Context,
		FieldType: string(req.FieldType),
		Expected:  req.Expected,
		Extracted: req.Extracted,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, resilience.NewTransientError(err, 0)
	}
	return &Judgment{
		Match:      resp.Match,
		Confidence: resp.Confidence,
		Reasoning:  resp.Reasoning,
	}, nil
}

// classifyClientError applies the shared transient-or-fatal rules for
// render client failures.
func classifyClientError(err error, ctx context.Context) error {
	var se *browserd.StatusError
	if errors.As(err, &se) {
		return classifyStatus(err, se.Code)
	}
	if ctx.Err() != nil {
		return err
	}
	return resilience.NewTransientError(err, 0)
}
