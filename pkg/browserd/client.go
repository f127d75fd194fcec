// Package browserd provides a client for the headless browser render
// service. The service holds rendered pages open under server-side page
// IDs so callers can extract multiple values from one navigation.
package browserd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the render service operations.
type Client interface {
	// Open navigates to a URL and returns a handle to the rendered page.
	Open(ctx context.Context, targetURL string, opts ...OpenOption) (*OpenResponse, error)
	// Text reads the text content of the first element matching the
	// selector, with its pixel bounding box.
	Text(ctx context.Context, pageID, selector string) (*TextResponse, error)
	// Screenshot captures the page as PNG. A non-nil clip restricts the
	// capture to that region.
	Screenshot(ctx context.Context, pageID string, clip *Clip) ([]byte, error)
	// Close releases the page on the server.
	Close(ctx context.Context, pageID string) error
	// Health checks service availability.
	Health(ctx context.Context) error
}

// StatusError is returned for non-2xx responses so callers can decide
// which statuses are worth retrying.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("browserd: status %d: %s", e.Code, e.Body)
}

// Clip is a pixel-space capture region.
type Clip struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// OpenResponse is the result of a navigation.
type OpenResponse struct {
	PageID     string `json:"page_id"`
	FinalURL   string `json:"final_url"`
	StatusCode int    `json:"status_code"`
}

// TextResponse is the result of a selector read.
type TextResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Box        Clip    `json:"box"`
}

type openRequest struct {
	URL       string `json:"url"`
	WaitUntil string `json:"wait_until,omitempty"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
}

// OpenOption configures a navigation request.
type OpenOption func(*openRequest)

// WithWaitUntil sets the render readiness condition ("load", "networkidle").
func WithWaitUntil(cond string) OpenOption {
	return func(r *openRequest) {
		r.WaitUntil = cond
	}
}

// WithNavigationTimeout bounds the server-side navigation.
func WithNavigationTimeout(d time.Duration) OpenOption {
	return func(r *openRequest) {
		r.TimeoutMS = int(d.Milliseconds())
	}
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a render service client.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do issues a single request. Retries are the caller's concern.
func (c *httpClient) do(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var body io.Reader
	if reqBody != nil {
		raw, err := json.Marshal(reqBody)
		if err != nil {
			return nil, eris.Wrap(err, "browserd: marshal request")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, eris.Wrap(err, "browserd: create request")
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "browserd: request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "browserd: read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

func (c *httpClient) Open(ctx context.Context, targetURL string, opts ...OpenOption) (*OpenResponse, error) {
	req := openRequest{URL: targetURL}
	for _, opt := range opts {
		opt(&req)
	}

	raw, err := c.do(ctx, http.MethodPost, "/pages", req)
	if err != nil {
		return nil, err
	}

	var result OpenResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, eris.Wrap(err, "browserd: unmarshal open response")
	}
	return &result, nil
}

func (c *httpClient) Text(ctx context.Context, pageID, selector string) (*TextResponse, error) {
	path := fmt.Sprintf("/pages/%s/text?selector=%s", url.PathEscape(pageID), url.QueryEscape(selector))

	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var result TextResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, eris.Wrap(err, "browserd: unmarshal text response")
	}
	return &result, nil
}

func (c *httpClient) Screenshot(ctx context.Context, pageID string, clip *Clip) ([]byte, error) {
	var body any
	if clip != nil {
		body = map[string]*Clip{"clip": clip}
	}

	raw, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/pages/%s/screenshot", url.PathEscape(pageID)), body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, eris.New("browserd: empty screenshot")
	}
	return raw, nil
}

func (c *httpClient) Close(ctx context.Context, pageID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/pages/"+url.PathEscape(pageID), nil)
	return err
}

func (c *httpClient) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/health", nil)
	return err
}
