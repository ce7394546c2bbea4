package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Limiters holds one token-bucket limiter per provider.
type Limiters struct {
	mu       sync.Mutex
	perMin   int
	limiters map[string]*rate.Limiter
}

// NewLimiters allows perMinute requests per provider. Zero disables limiting.
func NewLimiters(perMinute int) *Limiters {
	return &Limiters{perMin: perMinute, limiters: make(map[string]*rate.Limiter)}
}

// Get returns the limiter for provider, creating it on first use.
func (l *Limiters) Get(provider string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[provider]
	if !ok {
		lim = newLimiter(l.perMin)
		l.limiters[provider] = lim
	}
	return lim
}

// Wait blocks until provider may send another request or ctx is done.
func (l *Limiters) Wait(ctx context.Context, provider string) error {
	if err := l.Get(provider).Wait(ctx); err != nil {
		return eris.Wrapf(err, "resilience: rate limit wait for %s", provider)
	}
	return nil
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}
