package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/qaevaluator/internal/backoff"
)

// OpenAIConfig configures the OpenAI chat provider.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	MaxRetries int
	RetryDelay time.Duration
}

// OpenAIProvider streams chat completions from the OpenAI API.
// It is safe for concurrent use; each Complete call owns its stream.
type OpenAIProvider struct {
	client     *openai.Client
	maxRetries int
	policy     backoff.Policy
}

// NewOpenAIProvider creates a provider. An empty API key yields a provider
// whose Complete calls fail, which keeps construction infallible.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	p := &OpenAIProvider{
		maxRetries: cfg.MaxRetries,
		policy:     backoff.DefaultPolicy().WithInitial(cfg.RetryDelay),
	}
	if cfg.APIKey == "" {
		return p
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	p.client = openai.NewClientWithConfig(clientConfig)
	return p
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Complete opens a streaming chat completion, retrying transient failures
// with exponential backoff before any output has been produced.
func (p *OpenAIProvider) Complete(ctx context.Context, req *Request) (<-chan *Chunk, error) {
	if p.client == nil {
		return nil, errors.New("OpenAI API key not configured")
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    toOpenAIMessages(req),
		Stream:      true,
		Temperature: openAITemperature(req.Temperature),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	stream, err := backoff.Retry(ctx, p.policy, p.maxRetries, IsRetryable,
		func(ctx context.Context, _ int) (*openai.ChatCompletionStream, error) {
			stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
			if err != nil {
				return nil, p.wrapError(err, req.Model)
			}
			return stream, nil
		})
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}

	chunks := make(chan *Chunk)
	go p.processStream(ctx, stream, chunks, req.Model)
	return chunks, nil
}

func (p *OpenAIProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- *Chunk, model string) {
	defer close(chunks)
	defer stream.Close()

	for {
		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				send(ctx, chunks, &Chunk{Done: true})
				return
			}
			send(ctx, chunks, &Chunk{Error: p.wrapError(err, model), Done: true})
			return
		}

		if len(response.Choices) == 0 {
			continue
		}
		if text := response.Choices[0].Delta.Content; text != "" {
			if !send(ctx, chunks, &Chunk{Text: text}) {
				return
			}
		}
	}
}

func toOpenAIMessages(req *Request) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		role := msg.Role
		if role == "" {
			role = openai.ChatMessageRoleUser
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	return messages
}

// openAITemperature maps zero to the smallest positive float so the field
// survives omitempty and the API runs deterministically.
func openAITemperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

func (p *OpenAIProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		wrapped := NewProviderError(p.Name(), model, err).WithStatus(apiErr.HTTPStatusCode)
		if code, ok := apiErr.Code.(string); ok && code != "" {
			wrapped = wrapped.WithCode(code)
		} else if apiErr.Type != "" {
			wrapped = wrapped.WithCode(apiErr.Type)
		}
		if apiErr.Message != "" {
			wrapped.Message = apiErr.Message
		}
		return wrapped
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewProviderError(p.Name(), model, err).WithStatus(reqErr.HTTPStatusCode)
	}

	return NewProviderError(p.Name(), model, err)
}
