package resilience

import (
	"time"

	"github.com/mesacredito/fidc-cli/internal/config"
)

// FromAgentConfig builds the retry policy for one model: maxAttempts comes
// from the prompt, backoff from the agent config.
func FromAgentConfig(cfg config.AgentConfig, maxAttempts int) RetryConfig {
	rc := DefaultRetryConfig()
	if maxAttempts > 0 {
		rc.MaxAttempts = maxAttempts
	}
	if cfg.BackoffInitialMs > 0 {
		rc.InitialBackoff = time.Duration(cfg.BackoffInitialMs) * time.Millisecond
	}
	if cfg.BackoffMaxMs > 0 {
		rc.MaxBackoff = time.Duration(cfg.BackoffMaxMs) * time.Millisecond
	}
	return rc
}

// CircuitFromAgentConfig builds the per-provider circuit breaker settings.
func CircuitFromAgentConfig(cfg config.AgentConfig) CircuitBreakerConfig {
	cb := DefaultCircuitBreakerConfig()
	if cfg.CircuitFailureThreshold > 0 {
		cb.FailureThreshold = cfg.CircuitFailureThreshold
	}
	if cfg.CircuitResetSecs > 0 {
		cb.ResetTimeout = time.Duration(cfg.CircuitResetSecs) * time.Second
	}
	return cb
}
