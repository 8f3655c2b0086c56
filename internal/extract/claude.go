package extract

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spendshield/internal/ocr"
	"github.com/sells-group/spendshield/internal/resilience"
	"github.com/sells-group/spendshield/pkg/anthropic"
)

// Claude extracts documents with Anthropic Claude vision.
type Claude struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	ocr       ocr.Reader
	limiter   *Limiter
}

// ClaudeOptions configures a Claude extractor.
type ClaudeOptions struct {
	Model     string
	MaxTokens int64
	Timeout   time.Duration
	OCR       ocr.Reader
	Limiter   *Limiter
}

// NewClaude creates a Claude extractor.
func NewClaude(client anthropic.Client, opts ClaudeOptions) *Claude {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	if opts.Limiter == nil {
		opts.Limiter = NewLimiter(0, 1)
	}
	return &Claude{
		client:    client,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		timeout:   opts.Timeout,
		ocr:       opts.OCR,
		limiter:   opts.Limiter,
	}
}

// Name implements Extractor.
func (c *Claude) Name() string { return "anthropic" }

// Extract implements Extractor.
func (c *Claude) Extract(ctx context.Context, doc Document) (*Result, error) {
	in, err := loadContent(ctx, c.Name(), c.ocr, doc)
	if err != nil {
		return nil, err
	}

	msg := anthropic.Message{Role: "user", Content: userPrompt(in)}
	if in.Image != nil {
		msg.Images = []anthropic.Image{{MediaType: in.MediaType, Data: in.Image}}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "extract: anthropic rate limit")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	temp := 0.0
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      []anthropic.SystemBlock{{Text: systemPrompt}},
		Messages:    []anthropic.Message{msg},
		Temperature: &temp,
	})
	if err != nil {
		status := anthropic.StatusCode(err)
		if status == http.StatusTooManyRequests {
			c.limiter.OnRateLimit(c.Name())
		}
		return nil, resilience.ClassifyStatus(eris.Wrap(err, "extract: anthropic"), status)
	}
	c.limiter.OnSuccess()
	resp.Usage.LogCost(c.model, "extraction")

	parsed, err := ParseDocument(resp.Text())
	if err != nil {
		return nil, failure(c.Name(), err)
	}
	applyIntake(parsed, doc)
	return &Result{Doc: parsed, Provider: c.Name()}, nil
}
