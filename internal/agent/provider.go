package agent

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/mesacredito/fidc-cli/internal/resilience"
	"github.com/mesacredito/fidc-cli/pkg/anthropic"
	"github.com/mesacredito/fidc-cli/pkg/gemini"
)

// Provider names used in model ids, breaker keys and metrics labels.
const (
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

var providerAliases = map[string]string{
	"anthropic": ProviderAnthropic,
	"google":    ProviderGoogle,
	"gemini":    ProviderGoogle,
}

// ParseModel splits "provider:model". A bare id is an Anthropic model.
func ParseModel(id string) (provider, name string, err error) {
	id = strings.TrimSpace(id)
	prefix, rest, found := strings.Cut(id, ":")
	if !found {
		if id == "" {
			return "", "", eris.New("agent: empty model id")
		}
		return ProviderAnthropic, id, nil
	}
	p, ok := providerAliases[strings.ToLower(prefix)]
	if !ok {
		return "", "", eris.Errorf("agent: unsupported provider %q in %s", prefix, id)
	}
	if rest == "" {
		return "", "", eris.Errorf("agent: model id %s has no model name", id)
	}
	return p, rest, nil
}

type completion struct {
	system      string
	prompt      string
	maxTokens   int
	temperature float64
}

type reply struct {
	text   string
	input  int
	output int
}

// completer is one LLM backend.
type completer interface {
	complete(ctx context.Context, model string, c completion) (reply, error)
}

type anthropicCompleter struct {
	client anthropic.Client
}

func (a anthropicCompleter) complete(ctx context.Context, model string, c completion) (reply, error) {
	temp := c.temperature
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       model,
		MaxTokens:   int64(c.maxTokens),
		System:      c.system,
		Messages:    []anthropic.Message{{Role: "user", Content: c.prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return reply{}, classify(err, anthropic.StatusCode(err))
	}
	return reply{
		text:   resp.Text(),
		input:  int(resp.Usage.InputTokens + resp.Usage.CacheCreationInputTokens + resp.Usage.CacheReadInputTokens),
		output: int(resp.Usage.OutputTokens),
	}, nil
}

type geminiCompleter struct {
	client gemini.Client
}

func (g geminiCompleter) complete(ctx context.Context, model string, c completion) (reply, error) {
	temp := float32(c.temperature)
	resp, err := g.client.GenerateJSON(ctx, gemini.GenerateRequest{
		Model:       model,
		System:      c.system,
		Prompt:      c.prompt,
		MaxTokens:   int32(c.maxTokens),
		Temperature: &temp,
	})
	if err != nil {
		return reply{}, classify(err, gemini.StatusCode(err))
	}
	return reply{
		text:   resp.Text,
		input:  int(resp.InputTokens),
		output: int(resp.OutputTokens),
	}, nil
}

// classify marks retryable HTTP failures as transient.
func classify(err error, status int) error {
	if resilience.IsTransientHTTPStatus(status) {
		return resilience.NewTransientError(err, status)
	}
	return err
}
