package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mesacredito/fidc-cli/internal/config"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDoVal_SuccessOnFirstAttempt(t *testing.T) {
	t.Parallel()
	calls := 0
	v, err := DoVal(context.Background(), fastRetry(3), func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, calls)
}

func TestDoVal_RetriesInvalidOutput(t *testing.T) {
	t.Parallel()
	calls := 0
	var retried []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	v, err := DoVal(context.Background(), cfg, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, NewOutputError(errors.New("unexpected end of JSON input"))
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDoVal_ExhaustsAttempts(t *testing.T) {
	t.Parallel()
	calls := 0
	_, err := DoVal(context.Background(), fastRetry(4), func(context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("overloaded"), 529)
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestDoVal_SingleAttemptMeansNoRetry(t *testing.T) {
	t.Parallel()
	calls := 0
	_, err := DoVal(context.Background(), fastRetry(1), func(context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("boom"), 500)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_PermanentErrorStops(t *testing.T) {
	t.Parallel()
	calls := 0
	_, err := DoVal(context.Background(), fastRetry(5), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("invalid api key")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ContextCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := fastRetry(5)
	cfg.InitialBackoff = time.Second
	cfg.MaxBackoff = time.Second

	_, err := DoVal(ctx, cfg, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, NewTransientError(errors.New("timeout"), 504)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestComputeBackoff(t *testing.T) {
	t.Parallel()
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, computeBackoff(0, cfg))
	assert.Equal(t, 200*time.Millisecond, computeBackoff(1, cfg))
	assert.Equal(t, 400*time.Millisecond, computeBackoff(2, cfg))
	assert.Equal(t, time.Second, computeBackoff(10, cfg))

	cfg.JitterFraction = 0.5
	for range 50 {
		d := computeBackoff(0, cfg)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", NewTransientError(errors.New("x"), 503), true},
		{"wrapped transient", fmt.Errorf("call: %w", NewTransientError(errors.New("x"), 429)), true},
		{"output", NewOutputError(errors.New("bad json")), true},
		{"wrapped output", fmt.Errorf("decode: %w", NewOutputError(errors.New("bad json"))), true},
		{"conn reset", fmt.Errorf("write: %w", syscall.ECONNRESET), true},
		{"net timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"pattern", errors.New("read tcp: i/o timeout"), true},
		{"permanent", errors.New("invalid input"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestIsTransient_OutputErrorIsNotTransient(t *testing.T) {
	t.Parallel()
	assert.False(t, IsTransient(NewOutputError(errors.New("bad json"))))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	t.Parallel()
	for _, code := range []int{408, 429, 500, 502, 503, 504, 529} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 403, 404} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}

func newTestBreaker(threshold int, reset time.Duration) (*CircuitBreaker, *time.Time, *[]string) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: threshold,
		ResetTimeout:     reset,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	cb.nowFunc = func() time.Time { return now }
	return cb, &now, &transitions
}

func failing(context.Context) (int, error) {
	return 0, NewTransientError(errors.New("503"), 503)
}

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	t.Parallel()
	cb, now, transitions := newTestBreaker(2, time.Minute)
	ctx := context.Background()

	_, _ = ExecuteVal(ctx, cb, failing)
	assert.Equal(t, CircuitClosed, cb.State())
	_, _ = ExecuteVal(ctx, cb, failing)
	assert.Equal(t, CircuitOpen, cb.State())

	called := false
	_, err := ExecuteVal(ctx, cb, func(context.Context) (int, error) {
		called = true
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	*now = now.Add(time.Minute)
	assert.Equal(t, CircuitHalfOpen, cb.State())
	v, err := ExecuteVal(ctx, cb, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, CircuitClosed, cb.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, *transitions)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()
	cb, now, _ := newTestBreaker(1, time.Second)
	ctx := context.Background()

	_, _ = ExecuteVal(ctx, cb, failing)
	require.Equal(t, CircuitOpen, cb.State())
	*now = now.Add(time.Second)
	_, _ = ExecuteVal(ctx, cb, failing)
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreaker_OutputErrorsDoNotTrip(t *testing.T) {
	t.Parallel()
	cb, _, _ := newTestBreaker(1, time.Minute)
	for range 3 {
		_, _ = ExecuteVal(context.Background(), cb, func(context.Context) (int, error) {
			return 0, NewOutputError(errors.New("bad json"))
		})
	}
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()
	cb, _, _ := newTestBreaker(1, time.Hour)
	_, _ = ExecuteVal(context.Background(), cb, failing)
	require.Equal(t, CircuitOpen, cb.State())
	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_Concurrent(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = ExecuteVal(context.Background(), cb, func(context.Context) (int, error) {
				if i%2 == 0 {
					return 0, errors.New("permanent")
				}
				return i, nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestBreakers_PerProvider(t *testing.T) {
	t.Parallel()
	var names []string
	b := NewBreakers(func(provider string) CircuitBreakerConfig {
		names = append(names, provider)
		cfg := DefaultCircuitBreakerConfig()
		cfg.FailureThreshold = 1
		return cfg
	})

	a := b.Get("anthropic")
	assert.Same(t, a, b.Get("anthropic"))
	assert.NotSame(t, a, b.Get("google"))
	assert.Equal(t, []string{"anthropic", "google"}, names)

	_, _ = ExecuteVal(context.Background(), a, failing)
	states := b.States()
	assert.Equal(t, CircuitOpen, states["anthropic"])
	assert.Equal(t, CircuitClosed, states["google"])
}

func TestCircuitState_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}

func TestLimiters(t *testing.T) {
	t.Parallel()
	l := NewLimiters(60)
	assert.Same(t, l.Get("anthropic"), l.Get("anthropic"))
	require.NoError(t, l.Wait(context.Background(), "anthropic"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, l.Wait(ctx, "anthropic"))
}

func TestLimiters_Unlimited(t *testing.T) {
	t.Parallel()
	l := NewLimiters(0)
	for range 100 {
		require.NoError(t, l.Wait(context.Background(), "google"))
	}
}

func TestFromAgentConfig(t *testing.T) {
	t.Parallel()
	rc := FromAgentConfig(config.AgentConfig{BackoffInitialMs: 250, BackoffMaxMs: 2000}, 4)
	assert.Equal(t, 4, rc.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, rc.InitialBackoff)
	assert.Equal(t, 2*time.Second, rc.MaxBackoff)

	rc = FromAgentConfig(config.AgentConfig{}, 0)
	assert.Equal(t, DefaultRetryConfig().MaxAttempts, rc.MaxAttempts)

	cb := CircuitFromAgentConfig(config.AgentConfig{CircuitFailureThreshold: 2, CircuitResetSecs: 10})
	assert.Equal(t, 2, cb.FailureThreshold)
	assert.Equal(t, 10*time.Second, cb.ResetTimeout)
}
