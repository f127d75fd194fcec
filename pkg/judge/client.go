// Package judge provides a model-backed comparison client: given an
// expected value from a source record and a value extracted from a web
// page, it decides whether they mean the same thing.
package judge

import (
	"context"
	"encoding/json"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

const (
	defaultModel     = "claude-haiku-4-5-20251001"
	defaultMaxTokens = 256
)

const systemPrompt = `You are a data validation expert. Compare two values and determine if they represent the same information.

Be precise and respond ONLY with valid JSON in this exact format:
{"match": true/false, "confidence": 0.0-1.0, "reasoning": "brief explanation"}

Consider:
- Exact matches: same text = high confidence match
- Case differences: "John" vs "john" = match
- Formatting: "$123.45" vs "123.45" = match for currency
- Semantic equivalence: "John Doe" vs "Doe, John" = match
- Date formats: "2025-07-19" vs "July 19, 2025" = match`

// Client defines the comparison operation.
type Client interface {
	Compare(ctx context.Context, req CompareRequest) (*Comparison, error)
}

// CompareRequest holds the two values under comparison.
type CompareRequest struct {
	FieldName string
	FieldType string
	Expected  string
	Extracted string
}

// Comparison is the judge's decision.
type Comparison struct {
	Match      bool    `json:"match"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Option configures the client.
type Option func(*sdkClient)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *sdkClient) {
		c.model = model
	}
}

// WithBaseURL points the SDK at a custom endpoint (for testing).
func WithBaseURL(u string) Option {
	return func(c *sdkClient) {
		c.sdkOpts = append(c.sdkOpts, option.WithBaseURL(u))
	}
}

type sdkClient struct {
	client  sdk.Client
	model   string
	sdkOpts []option.RequestOption
}

// NewClient creates a judge backed by the Anthropic SDK.
func NewClient(apiKey string, opts ...Option) Client {
	c := &sdkClient{
		model:   defaultModel,
		sdkOpts: []option.RequestOption{option.WithAPIKey(apiKey)},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.client = sdk.NewClient(c.sdkOpts...)
	return c
}

func (c *sdkClient) Compare(ctx context.Context, req CompareRequest) (*Comparison, error) {
	fieldType := req.FieldType
	if fieldType == "" {
		fieldType = "text"
	}
	fieldName := req.FieldName
	if fieldName == "" {
		fieldName = "field"
	}

	var sb strings.Builder
	sb.WriteString("Field: " + fieldName + " (type: " + fieldType + ")\n")
	sb.WriteString("Expected Value: \"" + req.Expected + "\"\n")
	sb.WriteString("Extracted Value: \"" + req.Extracted + "\"\n\n")
	sb.WriteString("Compare these values:")

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(c.model),
		MaxTokens:   defaultMaxTokens,
		Temperature: sdk.Float(0.1),
		System: []sdk.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(sb.String())),
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "judge: create message")
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return parseComparison(text)
}

// parseComparison extracts the JSON decision from model output. Models
// occasionally wrap the JSON in prose, so take the first balanced object.
func parseComparison(text string) (*Comparison, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.Errorf("judge: no JSON object in response: %q", text)
	}

	var result Comparison
	if err := json.Unmarshal([]byte(text[start:end+1]), &result); err != nil {
		return nil, eris.Wrap(err, "judge: unmarshal comparison")
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return nil, eris.Errorf("judge: confidence %.2f out of range", result.Confidence)
	}
	return &result, nil
}
