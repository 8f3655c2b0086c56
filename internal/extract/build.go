package extract

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spendshield/internal/config"
	"github.com/sells-group/spendshield/internal/ocr"
	"github.com/sells-group/spendshield/internal/resilience"
	"github.com/sells-group/spendshield/pkg/anthropic"
)

// New builds the configured extractor. Real providers are always wrapped in
// a Fallback; the "mock" provider returns the bare Mock.
func New(cfg *config.Config, reader ocr.Reader) (Extractor, error) {
	limiter := NewLimiter(cfg.Extraction.RequestsPerSecond, cfg.Extraction.Burst)
	timeout := time.Duration(cfg.Extraction.TimeoutSecs) * time.Second
	breaker := resilience.NewCircuitBreaker(resilience.FromCircuitConfig(cfg.Extraction.Provider, cfg.Circuit))

	var primary Extractor
	switch cfg.Extraction.Provider {
	case "mock":
		return Mock{}, nil
	case "anthropic":
		if cfg.Anthropic.Key != "" {
			primary = NewClaude(anthropic.NewClient(cfg.Anthropic.Key, cfg.Anthropic.BaseURL), ClaudeOptions{
				Model:     cfg.Anthropic.Model,
				MaxTokens: cfg.Extraction.MaxTokens,
				Timeout:   timeout,
				OCR:       reader,
				Limiter:   limiter,
			})
		}
	case "openai":
		if cfg.OpenAI.Key != "" {
			primary = NewOpenAI(OpenAIOptions{
				Key:       cfg.OpenAI.Key,
				BaseURL:   cfg.OpenAI.BaseURL,
				Model:     cfg.OpenAI.Model,
				MaxTokens: int(cfg.Extraction.MaxTokens),
				Timeout:   timeout,
				OCR:       reader,
				Limiter:   limiter,
			})
		}
	default:
		return nil, eris.Errorf("extract: unknown provider %q", cfg.Extraction.Provider)
	}
	return NewFallback(cfg.Extraction.Provider, primary, breaker), nil
}
