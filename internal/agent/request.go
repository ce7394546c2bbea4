// Package agent runs LLM extraction: it reads a source document, asks one or
// more models for JSON matching a registered schema, and decodes the reply
// into the typed fund report.
package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/mesacredito/fidc-cli/internal/model"
	"github.com/mesacredito/fidc-cli/internal/schema"
)

// Parameter bounds accepted by Validate.
const (
	MinRetries     = 1
	MaxRetries     = 5
	MinMaxTokens   = 1
	MaxMaxTokens   = 8000
	MinTemperature = 0.0
	MaxTemperature = 2.0
)

// Request is one extraction call.
type Request struct {
	UserPrompt   string
	Document     string // path to the source file
	Tool         model.ExtractionTool
	Mode         model.ExtractionMode
	Models       []string // tried in order; "provider:model" or a bare Anthropic id
	SystemPrompt string
	Retries      int // retries per model after the first attempt
	MaxTokens    int
	Temperature  float64
	SchemaName   string
}

// RequestFromPrompt builds a request from a prompt catalog entry. Image-mode
// prompts are always read as page images.
func RequestFromPrompt(p model.Prompt, document string) Request {
	mode := p.ExtractionMode
	if p.ImageMode {
		mode = model.ModeImages
	}
	return Request{
		UserPrompt:   p.UserPrompt,
		Document:     document,
		Tool:         p.ExtractionTool,
		Mode:         mode,
		Models:       p.Models,
		SystemPrompt: p.SystemPrompt,
		Retries:      p.Retries,
		MaxTokens:    p.MaxTokens,
		Temperature:  p.Temperature,
		SchemaName:   p.SchemaName,
	}
}

// Validate rejects out-of-range parameters before any provider is called.
func (r Request) Validate() error {
	var errs []string
	if strings.TrimSpace(r.Document) == "" {
		errs = append(errs, "document is required")
	}
	if strings.TrimSpace(r.SchemaName) == "" {
		errs = append(errs, "schema name is required")
	}
	if r.Retries < MinRetries || r.Retries > MaxRetries {
		errs = append(errs, fmt.Sprintf("retries must be between %d and %d", MinRetries, MaxRetries))
	}
	if r.MaxTokens < MinMaxTokens || r.MaxTokens > MaxMaxTokens {
		errs = append(errs, fmt.Sprintf("max tokens must be between %d and %d", MinMaxTokens, MaxMaxTokens))
	}
	if r.Temperature < MinTemperature || r.Temperature > MaxTemperature {
		errs = append(errs, fmt.Sprintf("temperature must be between %.1f and %.1f", MinTemperature, MaxTemperature))
	}
	seen := make(map[string]bool, len(r.Models))
	for _, m := range r.Models {
		if seen[m] {
			errs = append(errs, fmt.Sprintf("duplicate model %s", m))
		}
		seen[m] = true
	}
	if len(errs) > 0 {
		return eris.Errorf("agent: invalid request: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Result is a successful extraction.
type Result struct {
	Value        schema.Report
	Raw          json.RawMessage
	ElapsedTime  string // seconds, formatted "12.34s"
	TokensUsed   *int
	InputTokens  int
	OutputTokens int
	ModelUsed    string
	SchemaUsed   string
}
