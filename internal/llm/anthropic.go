package llm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/qaevaluator/internal/backoff"
)

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
	MaxTokens    int
}

// AnthropicProvider streams completions from Anthropic's Messages API.
type AnthropicProvider struct {
	client       anthropic.Client
	configured   bool
	maxRetries   int
	policy       backoff.Policy
	defaultModel string
	maxTokens    int
}

// NewAnthropicProvider creates an Anthropic provider.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-3-5-haiku-latest"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}

	// Retries are handled here with backoff, not inside the SDK.
	options := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(options...),
		configured:   true,
		maxRetries:   cfg.MaxRetries,
		policy:       backoff.DefaultPolicy().WithInitial(cfg.RetryDelay),
		defaultModel: cfg.DefaultModel,
		maxTokens:    cfg.MaxTokens,
	}, nil
}

func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete streams a completion. A failure that happens before any text has
// been emitted is retried when it is transient.
func (p *AnthropicProvider) Complete(ctx context.Context, req *Request) (<-chan *Chunk, error) {
	if !p.configured {
		return nil, errors.New("anthropic: provider not configured")
	}

	params := p.buildParams(req)
	model := string(params.Model)
	chunks := make(chan *Chunk)

	go func() {
		defer close(chunks)

		for attempt := 1; ; attempt++ {
			emitted, err := p.streamOnce(ctx, params, chunks)
			if err == nil {
				return
			}

			wrapped := p.wrapError(err, model)
			if emitted || attempt > p.maxRetries || !IsRetryable(wrapped) {
				send(ctx, chunks, &Chunk{Error: wrapped, Done: true})
				return
			}
			if err := backoff.Sleep(ctx, p.policy.Delay(attempt)); err != nil {
				send(ctx, chunks, &Chunk{Error: err, Done: true})
				return
			}
		}
	}()

	return chunks, nil
}

func (p *AnthropicProvider) buildParams(req *Request) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}

	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			continue
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		Messages:    messages,
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	return params
}

// streamOnce consumes one streaming response and reports whether any text
// reached the consumer before an error.
func (p *AnthropicProvider) streamOnce(ctx context.Context, params anthropic.MessageNewParams, chunks chan<- *Chunk) (bool, error) {
	stream := p.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	emitted := false
	var inputTokens, outputTokens int

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			inputTokens = int(event.AsMessageStart().Message.Usage.InputTokens)

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			if delta.Type == "text_delta" && delta.Text != "" {
				if !send(ctx, chunks, &Chunk{Text: delta.Text}) {
					return true, ctx.Err()
				}
				emitted = true
			}

		case "message_delta":
			if tokens := event.AsMessageDelta().Usage.OutputTokens; tokens > 0 {
				outputTokens = int(tokens)
			}

		case "message_stop":
			send(ctx, chunks, &Chunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens})
			return emitted, nil

		case "error":
			return emitted, errors.New("anthropic stream error")
		}
	}

	if err := stream.Err(); err != nil {
		return emitted, err
	}
	send(ctx, chunks, &Chunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens})
	return emitted, nil
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return err
	}

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return NewProviderError(p.Name(), model, err)
	}

	wrapped := NewProviderError(p.Name(), model, err).WithStatus(apiErr.StatusCode)
	wrapped.RequestID = apiErr.RequestID

	var payload anthropicErrorPayload
	if raw := apiErr.RawJSON(); raw != "" && json.Unmarshal([]byte(raw), &payload) == nil {
		if payload.Error.Type != "" {
			wrapped = wrapped.WithCode(payload.Error.Type)
		}
		if payload.Error.Message != "" {
			wrapped.Message = payload.Error.Message
		}
		if payload.RequestID != "" {
			wrapped.RequestID = payload.RequestID
		}
	}
	return wrapped
}
