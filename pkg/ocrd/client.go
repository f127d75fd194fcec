// Package ocrd provides a client for the Tesseract-backed OCR service.
// Images travel as base64 in JSON; the service returns recognized text
// with word-level confidences.
package ocrd

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the OCR service operations.
type Client interface {
	// Extract runs OCR over a PNG image.
	Extract(ctx context.Context, imagePNG []byte, opts Options) (*ExtractResponse, error)
	// Languages lists the language packs installed on the service.
	Languages(ctx context.Context) ([]string, error)
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
	return fmt.Sprintf("ocrd: status %d: %s", e.Code, e.Body)
}

// Options tune recognition. Zero values fall back to service defaults
// (eng, psm 6, LSTM engine).
type Options struct {
	Language  string `json:"language,omitempty"`
	PSM       int    `json:"psm,omitempty"`
	OEM       int    `json:"oem,omitempty"`
	Whitelist string `json:"whitelist,omitempty"`
	Blacklist string `json:"blacklist,omitempty"`
	Grayscale bool   `json:"grayscale,omitempty"`
	Threshold bool   `json:"threshold,omitempty"`
	Scale     int    `json:"scale,omitempty"`
}

// Word is one recognized word with its confidence.
type Word struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// ExtractResponse is the OCR result.
type ExtractResponse struct {
	Text             string  `json:"text"`
	Confidence       float64 `json:"confidence"`
	Words            []Word  `json:"words"`
	ProcessingTimeMS int     `json:"processing_time"`
	Error            string  `json:"error,omitempty"`
}

type extractRequest struct {
	Image   string  `json:"image"`
	Options Options `json:"options"`
}

type languagesResponse struct {
	Languages []string `json:"languages"`
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

// NewClient creates an OCR service client.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) do(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var body io.Reader
	if reqBody != nil {
		raw, err := json.Marshal(reqBody)
		if err != nil {
			return nil, eris.Wrap(err, "ocrd: marshal request")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, eris.Wrap(err, "ocrd: create request")
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ocrd: request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ocrd: read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

func (c *httpClient) Extract(ctx context.Context, imagePNG []byte, opts Options) (*ExtractResponse, error) {
	if len(imagePNG) == 0 {
		return nil, eris.New("ocrd: empty image")
	}

	req := extractRequest{
		Image:   base64.StdEncoding.EncodeToString(imagePNG),
		Options: opts,
	}

	raw, err := c.do(ctx, http.MethodPost, "/extract", req)
	if err != nil {
		return nil, err
	}

	var result ExtractResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, eris.Wrap(err, "ocrd: unmarshal extract response")
	}
	if result.Error != "" {
		return nil, eris.Errorf("ocrd: extract failed: %s", result.Error)
	}
	return &result, nil
}

func (c *httpClient) Languages(ctx context.Context) ([]string, error) {
	raw, err := c.do(ctx, http.MethodGet, "/languages", nil)
	if err != nil {
		return nil, err
	}

	var result languagesResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, eris.Wrap(err, "ocrd: unmarshal languages response")
	}
	return result.Languages, nil
}

func (c *httpClient) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/health", nil)
	return err
}
