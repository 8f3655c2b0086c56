package extract

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/sells-group/spendshield/internal/ocr"
	"github.com/sells-group/spendshield/internal/resilience"
)

// OpenAI extracts documents with an OpenAI-compatible chat completions API.
type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
	ocr       ocr.Reader
	limiter   *Limiter
}

// OpenAIOptions configures an OpenAI extractor.
type OpenAIOptions struct {
	Key       string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	OCR       ocr.Reader
	Limiter   *Limiter
}

// NewOpenAI creates an OpenAI extractor.
func NewOpenAI(opts OpenAIOptions) *OpenAI {
	clientConfig := openai.DefaultConfig(opts.Key)
	if opts.BaseURL != "" {
		clientConfig.BaseURL = opts.BaseURL
	}
	if opts.Model == "" {
		opts.Model = openai.GPT4o
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	if opts.Limiter == nil {
		opts.Limiter = NewLimiter(0, 1)
	}
	return &OpenAI{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		timeout:   opts.Timeout,
		ocr:       opts.OCR,
		limiter:   opts.Limiter,
	}
}

// Name implements Extractor.
func (o *OpenAI) Name() string { return "openai" }

// Extract implements Extractor.
func (o *OpenAI) Extract(ctx context.Context, doc Document) (*Result, error) {
	in, err := loadContent(ctx, o.Name(), o.ocr, doc)
	if err != nil {
		return nil, err
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if in.Image != nil {
		user.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: userPrompt(in)},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:" + in.MediaType + ";base64," + base64.StdEncoding.EncodeToString(in.Image),
					Detail: openai.ImageURLDetailHigh,
				},
			},
		}
	} else {
		user.Content = userPrompt(in)
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "extract: openai rate limit")
	}
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			user,
		},
		MaxTokens: o.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		status := openAIStatus(err)
		if status == http.StatusTooManyRequests {
			o.limiter.OnRateLimit(o.Name())
		}
		return nil, resilience.ClassifyStatus(eris.Wrap(err, "extract: openai"), status)
	}
	o.limiter.OnSuccess()

	zap.L().Info("openai: usage",
		zap.String("model", o.model),
		zap.String("stage", "extraction"),
		zap.Int("input_tokens", resp.Usage.PromptTokens),
		zap.Int("output_tokens", resp.Usage.CompletionTokens),
	)

	if len(resp.Choices) == 0 {
		return nil, failure(o.Name(), eris.New("extract: openai returned no choices"))
	}
	parsed, err := ParseDocument(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, failure(o.Name(), err)
	}
	applyIntake(parsed, doc)
	return &Result{Doc: parsed, Provider: o.Name()}, nil
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
