// Package gemini is a thin wrapper over the Google Gen AI SDK for JSON
// extraction calls.
package gemini

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"
)

// Client defines the Gemini operations used by the extraction agent.
type Client interface {
	GenerateJSON(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest is one JSON-mode generation call.
type GenerateRequest struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int32
	Temperature *float32
}

// GenerateResponse carries the reply text and token accounting.
type GenerateResponse struct {
	Model        string
	Text         string
	FinishReason string
	InputTokens  int32
	OutputTokens int32
}

type sdkClient struct {
	client *genai.Client
}

// Options configures the underlying SDK client.
type Options struct {
	APIKey  string
	BaseURL string // optional, for tests
}

// NewClient creates a Gemini API client.
func NewClient(ctx context.Context, opts Options) (Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	return &sdkClient{client: c}, nil
}

func (c *sdkClient) GenerateJSON(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      req.Temperature,
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = req.MaxTokens
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}

	result, err := c.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, eris.Wrapf(err, "gemini: generate content with %s", req.Model)
	}

	resp := &GenerateResponse{
		Model: req.Model,
		Text:  result.Text(),
	}
	if len(result.Candidates) > 0 {
		resp.FinishReason = string(result.Candidates[0].FinishReason)
	}
	if u := result.UsageMetadata; u != nil {
		resp.InputTokens = u.PromptTokenCount
		resp.OutputTokens = u.CandidatesTokenCount
	}
	return resp, nil
}

// StatusCode returns the HTTP status of an API error, or 0 when err did not
// come from an API response.
func StatusCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	return 0
}
