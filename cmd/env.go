package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mesacredito/fidc-cli/internal/agent"
	"github.com/mesacredito/fidc-cli/internal/config"
	"github.com/mesacredito/fidc-cli/internal/cost"
	"github.com/mesacredito/fidc-cli/internal/fidc"
	"github.com/mesacredito/fidc-cli/internal/metrics"
	"github.com/mesacredito/fidc-cli/internal/store"
	anthropicpkg "github.com/mesacredito/fidc-cli/pkg/anthropic"
	"github.com/mesacredito/fidc-cli/pkg/gemini"
)

// initStore opens the configured store and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// pipelineEnv holds the store, agent and service the process/serve commands share.
type pipelineEnv struct {
	Store   store.Store
	Agent   *agent.Agent
	Service *fidc.Service
	Metrics *metrics.Metrics
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config for mode, opens the store and wires the
// extraction agent. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	opts := []agent.Option{
		agent.WithOCR(cfg.OCR),
		agent.WithAgentConfig(cfg.Agent),
		agent.WithDefaultModel(cfg.Anthropic.DefaultModel),
		agent.WithMetrics(m),
	}
	if cfg.Anthropic.Key != "" {
		opts = append(opts, agent.WithAnthropic(anthropicpkg.NewClient(cfg.Anthropic.Key)))
	}
	if cfg.Gemini.Key != "" {
		gc, err := gemini.NewClient(ctx, gemini.Options{APIKey: cfg.Gemini.Key})
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		opts = append(opts, agent.WithGemini(gc))
	} else {
		zap.L().Debug("FIDC_GEMINI_KEY not set, gemini models disabled")
	}

	ag := agent.New(opts...)
	svc := fidc.NewService(st, ag,
		fidc.WithCostCalculator(cost.NewCalculator(pricingRates(cfg.Pricing))),
		fidc.WithServiceMetrics(m),
	)

	return &pipelineEnv{Store: st, Agent: ag, Service: svc, Metrics: m}, nil
}

// pricingRates returns the configured pricing, or the built-in rates when none is set.
func pricingRates(p config.PricingConfig) cost.Rates {
	if len(p.Models) == 0 {
		return cost.DefaultRates()
	}
	rates := make(cost.Rates, len(p.Models))
	for id, m := range p.Models {
		rates[id] = cost.ModelRate{
			Input:         m.Input,
			Output:        m.Output,
			CacheWriteMul: m.CacheWriteMul,
			CacheReadMul:  m.CacheReadMul,
		}
	}
	return rates
}
