package extract

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/spendshield/internal/resilience"
)

// Fallback runs a primary extractor behind a circuit breaker and serves the
// mock record when the provider is unconfigured or unavailable. Errors that
// are not about availability surface as ExtractionFailure.
type Fallback struct {
	primary  Extractor
	provider string
	breaker  *resilience.CircuitBreaker
	mock     Mock
}

// NewFallback wraps primary. A nil primary means no credential is
// configured for provider and every call is served from the mock.
func NewFallback(provider string, primary Extractor, breaker *resilience.CircuitBreaker) *Fallback {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())
	}
	return &Fallback{primary: primary, provider: provider, breaker: breaker}
}

// Name implements Extractor.
func (f *Fallback) Name() string { return f.provider }

// MockOnly reports whether every call is served from the mock.
func (f *Fallback) MockOnly() bool { return f.primary == nil }

// Breaker returns the circuit breaker guarding the primary provider.
func (f *Fallback) Breaker() *resilience.CircuitBreaker { return f.breaker }

// Extract implements Extractor.
func (f *Fallback) Extract(ctx context.Context, doc Document) (*Result, error) {
	if f.primary == nil {
		return f.serveMock(ctx, doc, ReasonNoCredential+" for "+f.provider)
	}

	res, err := resilience.ExecuteVal(ctx, f.breaker, func(ctx context.Context) (*Result, error) {
		return f.primary.Extract(ctx, doc)
	})
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, resilience.ErrCircuitOpen):
		return f.serveMock(ctx, doc, ReasonCircuitOpen)
	case !IsFailure(err) && resilience.IsTransient(err):
		zap.L().Warn("extract: provider unavailable, using mock data",
			zap.String("provider", f.provider),
			zap.Error(err),
		)
		return f.serveMock(ctx, doc, ReasonUnavailable)
	default:
		return nil, failure(f.provider, err)
	}
}

func (f *Fallback) serveMock(ctx context.Context, doc Document, reason string) (*Result, error) {
	res, err := f.mock.Extract(ctx, doc)
	if err != nil {
		return nil, err
	}
	res.MockReason = reason
	return res, nil
}
