package extract

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter wraps a rate.Limiter with adaptive rate adjustment for provider
// calls. On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type Limiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewLimiter creates an adaptive limiter. rps <= 0 disables limiting.
func NewLimiter(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	r := rate.Limit(rps)
	if rps <= 0 {
		r = rate.Inf
	}
	return &Limiter{
		limiter:     rate.NewLimiter(r, burst),
		initialRate: r,
		maxRate:     r * 2,
		minRate:     r / 4,
		currentRate: r,
	}
}

// Wait blocks until the limiter allows a call.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (l *Limiter) OnSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.initialRate == rate.Inf {
		return
	}
	next := l.currentRate * 1.2
	if next > l.maxRate {
		next = l.maxRate
	}
	l.currentRate = next
	l.limiter.SetLimit(next)
}

// OnRateLimit halves the rate after a 429.
func (l *Limiter) OnRateLimit(provider string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.initialRate == rate.Inf {
		return
	}
	next := l.currentRate * 0.5
	if next < l.minRate {
		next = l.minRate
	}
	l.currentRate = next
	l.limiter.SetLimit(next)
	zap.L().Warn("extract: reducing request rate after 429",
		zap.String("provider", provider),
		zap.Float64("new_rate", float64(next)),
	)
}

// Limit returns the current rate limit.
func (l *Limiter) Limit() rate.Limit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentRate
}
