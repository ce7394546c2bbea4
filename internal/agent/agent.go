package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mesacredito/fidc-cli/internal/config"
	"github.com/mesacredito/fidc-cli/internal/metrics"
	"github.com/mesacredito/fidc-cli/internal/model"
	"github.com/mesacredito/fidc-cli/internal/ocr"
	"github.com/mesacredito/fidc-cli/internal/resilience"
	"github.com/mesacredito/fidc-cli/internal/schema"
	"github.com/mesacredito/fidc-cli/pkg/anthropic"
	"github.com/mesacredito/fidc-cli/pkg/gemini"
)

// ReaderFunc returns the text reader for a prompt's extraction tool and mode.
type ReaderFunc func(tool model.ExtractionTool, mode model.ExtractionMode) (ocr.Extractor, error)

// Agent runs extraction requests against the configured providers.
type Agent struct {
	providers    map[string]completer
	registry     *schema.Registry
	reader       ReaderFunc
	cfg          config.AgentConfig
	defaultModel string
	metrics      *metrics.Metrics
	now          func() time.Time

	breakers *resilience.Breakers
	limiters *resilience.Limiters
}

// Option configures an Agent.
type Option func(*Agent)

// WithAnthropic registers the Anthropic provider.
func WithAnthropic(c anthropic.Client) Option {
	return func(a *Agent) { a.providers[ProviderAnthropic] = anthropicCompleter{client: c} }
}

// WithGemini registers the Google provider.
func WithGemini(c gemini.Client) Option {
	return func(a *Agent) { a.providers[ProviderGoogle] = geminiCompleter{client: c} }
}

// WithRegistry overrides the schema registry. Default: schema.Default().
func WithRegistry(r *schema.Registry) Option {
	return func(a *Agent) { a.registry = r }
}

// WithReader sets how documents are turned into text.
func WithReader(fn ReaderFunc) Option {
	return func(a *Agent) { a.reader = fn }
}

// WithOCR reads documents with the ocr package using cfg.
func WithOCR(cfg config.OCRConfig) Option {
	return WithReader(func(tool model.ExtractionTool, mode model.ExtractionMode) (ocr.Extractor, error) {
		return ocr.NewExtractor(cfg, tool, mode)
	})
}

// WithAgentConfig sets rate limits, breaker thresholds and backoff.
func WithAgentConfig(cfg config.AgentConfig) Option {
	return func(a *Agent) { a.cfg = cfg }
}

// WithDefaultModel sets the model used when a request names none.
func WithDefaultModel(id string) Option {
	return func(a *Agent) { a.defaultModel = id }
}

// WithMetrics records provider calls.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// WithClock overrides time.Now for elapsed time measurement.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// New creates an Agent.
func New(opts ...Option) *Agent {
	a := &Agent{
		providers: make(map[string]completer),
		registry:  schema.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.limiters = resilience.NewLimiters(a.cfg.RequestsPerMinute)
	a.breakers = resilience.NewBreakers(func(provider string) resilience.CircuitBreakerConfig {
		cb := resilience.CircuitFromAgentConfig(a.cfg)
		cb.OnStateChange = func(from, to resilience.CircuitState) {
			zap.L().Warn("agent: circuit state changed",
				zap.String("provider", provider),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}
		return cb
	})
	return a
}

// Breakers exposes the per-provider circuit breakers for health reporting.
func (a *Agent) Breakers() *resilience.Breakers {
	return a.breakers
}

// Extract reads the document, asks each model in order until one returns a
// reply that decodes into the schema, and returns the typed report. The
// error of the last model tried is returned when all of them fail.
func (a *Agent) Extract(ctx context.Context, req Request) (*Result, error) {
	start := a.now()

	if err := req.Validate(); err != nil {
		return nil, err
	}
	desc, err := a.registry.Resolve(req.SchemaName)
	if err != nil {
		return nil, eris.Wrap(err, "agent: resolve schema")
	}
	definition, err := desc.Definition()
	if err != nil {
		return nil, err
	}

	models := req.Models
	if len(models) == 0 {
		if a.defaultModel == "" {
			return nil, eris.New("agent: no model configured")
		}
		models = []string{a.defaultModel}
	}

	document, err := a.read(ctx, req)
	if err != nil {
		return nil, err
	}

	c := completion{
		system:      req.SystemPrompt,
		prompt:      buildPrompt(req.UserPrompt, string(definition), document),
		maxTokens:   req.MaxTokens,
		temperature: req.Temperature,
	}

	var inTotal, outTotal int
	var lastErr error
	for i, id := range models {
		out, in, outTok, err := a.tryModel(ctx, id, req.Retries, c, desc)
		inTotal += in
		outTotal += outTok
		if err == nil {
			tokens := inTotal + outTotal
			out.ElapsedTime = fmt.Sprintf("%.2fs", a.now().Sub(start).Seconds())
			out.TokensUsed = &tokens
			out.InputTokens = inTotal
			out.OutputTokens = outTotal
			out.ModelUsed = id
			out.SchemaUsed = desc.Name
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if i < len(models)-1 {
			zap.L().Warn("agent: model failed, falling back",
				zap.String("model", id),
				zap.String("next", models[i+1]),
				zap.Error(err),
			)
		}
	}
	return nil, eris.Wrapf(lastErr, "agent: extraction failed for %s", desc.Name)
}

func (a *Agent) read(ctx context.Context, req Request) (string, error) {
	if a.reader == nil {
		return "", eris.New("agent: no document reader configured")
	}
	ex, err := a.reader(req.Tool, req.Mode)
	if err != nil {
		return "", eris.Wrap(err, "agent: select reader")
	}
	text, err := ex.ExtractText(ctx, req.Document)
	if err != nil {
		return "", eris.Wrapf(err, "agent: read %s", req.Document)
	}
	return text, nil
}

type attempt struct {
	result *Result
	input  int
	output int
}

// tryModel runs the retry loop for one model: the first attempt plus up to
// retries more. It returns the tokens spent across every attempt, successful
// or not.
func (a *Agent) tryModel(ctx context.Context, id string, retries int, c completion, desc *schema.Descriptor) (*Result, int, int, error) {
	provider, name, err := ParseModel(id)
	if err != nil {
		return nil, 0, 0, err
	}
	backend, ok := a.providers[provider]
	if !ok {
		return nil, 0, 0, eris.Errorf("agent: provider %s is not configured", provider)
	}

	var inTotal, outTotal int
	rc := resilience.FromAgentConfig(a.cfg, retries+1)
	rc.OnRetry = resilience.RetryLogger(provider, name)

	out, err := resilience.DoVal(ctx, rc, func(ctx context.Context) (attempt, error) {
		if err := a.limiters.Wait(ctx, provider); err != nil {
			return attempt{}, err
		}
		callStart := time.Now()
		rep, err := resilience.ExecuteVal(ctx, a.breakers.Get(provider), func(ctx context.Context) (reply, error) {
			return backend.complete(ctx, name, c)
		})
		inTotal += rep.input
		outTotal += rep.output
		if err != nil {
			a.metrics.AgentCall(provider, name, "error", time.Since(callStart), rep.input, rep.output)
			return attempt{}, err
		}

		value, raw, err := decodeReply(desc, rep.text)
		if err != nil {
			a.metrics.AgentCall(provider, name, "invalid_output", time.Since(callStart), rep.input, rep.output)
			zap.L().Debug("agent: reply rejected",
				zap.String("model", id),
				zap.Error(err),
			)
			return attempt{}, err
		}
		a.metrics.AgentCall(provider, name, "ok", time.Since(callStart), rep.input, rep.output)
		return attempt{result: &Result{Value: value, Raw: raw}}, nil
	})
	if err != nil {
		return nil, inTotal, outTotal, err
	}
	return out.result, inTotal, outTotal, nil
}
