// Package cost estimates LLM spend for extraction calls.
package cost

import "strings"

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Rates maps model ids to their pricing. Keys may carry a provider prefix
// ("anthropic:claude-sonnet-4-5-20250929"); lookups try the full id first.
type Rates map[string]ModelRate

// Usage is the token accounting reported by a provider for one call.
type Usage struct {
	Input      int
	Output     int
	CacheWrite int
	CacheRead  int
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.Input + u.Output
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Estimate computes the USD cost of one call. Unknown models cost 0.
func (c *Calculator) Estimate(model string, u Usage) float64 {
	rate, ok := c.lookup(model)
	if !ok {
		return 0
	}

	inCost := (float64(u.Input) / 1e6) * rate.Input
	outCost := (float64(u.Output) / 1e6) * rate.Output
	cwCost := (float64(u.CacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(u.CacheRead) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

func (c *Calculator) lookup(model string) (ModelRate, bool) {
	if c == nil {
		return ModelRate{}, false
	}
	if r, ok := c.rates[model]; ok {
		return r, true
	}
	if _, bare, found := strings.Cut(model, ":"); found {
		r, ok := c.rates[bare]
		return r, ok
	}
	return ModelRate{}, false
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		"claude-haiku-4-5-20251001": {
			Input: 0.80, Output: 4.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
		},
		"claude-sonnet-4-5-20250929": {
			Input: 3.00, Output: 15.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
		},
		"gemini-2.5-flash": {
			Input: 0.30, Output: 2.50,
		},
		"gemini-2.5-pro": {
			Input: 1.25, Output: 10.00,
		},
	}
}
