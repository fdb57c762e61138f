// Package openai provides an embedding provider using OpenAI's embedding models.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/qaevaluator/internal/embeddings"
)

// Provider implements embeddings.Provider using OpenAI.
type Provider struct {
	client *openai.Client
	model  string
}

var _ embeddings.Provider = (*Provider)(nil)

// Config contains configuration for the OpenAI provider.
type Config struct {
	APIKey  string
	BaseURL string // Optional custom base URL
	Model   string // text-embedding-ada-002, text-embedding-3-small, ...
}

// disallowedSpecialTokens are the tokenizer control tokens the OpenAI
// embedding endpoint refuses when they appear as plain text.
var disallowedSpecialTokens = []string{
	"<|endoftext|>",
	"<|fim_prefix|>",
	"<|fim_middle|>",
	"<|fim_suffix|>",
	"<|endofprompt|>",
}

// New creates a new OpenAI embedding provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-ada-002"
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client: openai.NewClientWithConfig(config),
		model:  cfg.Model,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "openai"
}

// MaxBatchSize returns the maximum number of texts per batch.
func (p *Provider) MaxBatchSize() int {
	return 2048
}

// Embed generates an embedding for a single text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts. Text containing
// disallowed special tokens, or text the API rejects as too long or
// invalid, is reported as embeddings.ErrInputRejected.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if token := findSpecialToken(text); token != "" {
			return nil, fmt.Errorf("%w: text %d contains disallowed special token %q", embeddings.ErrInputRejected, i, token)
		}
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && isInputRejection(apiErr) {
			return nil, fmt.Errorf("%w: %s", embeddings.ErrInputRejected, apiErr.Message)
		}
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	results := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(results) {
			return nil, fmt.Errorf("embedding index %d out of range", data.Index)
		}
		results[data.Index] = data.Embedding
	}
	return results, nil
}

// inputRejectionCodes are the 400 error codes caused by the text itself.
var inputRejectionCodes = map[string]bool{
	"context_length_exceeded": true,
	"invalid_input":           true,
	"string_above_max_length": true,
}

func isInputRejection(apiErr *openai.APIError) bool {
	if apiErr.HTTPStatusCode != http.StatusBadRequest {
		return false
	}
	if code, ok := apiErr.Code.(string); ok && inputRejectionCodes[code] {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "maximum context length") || strings.Contains(msg, "special token")
}

func findSpecialToken(text string) string {
	if !strings.Contains(text, "<|") {
		return ""
	}
	for _, token := range disallowedSpecialTokens {
		if strings.Contains(text, token) {
			return token
		}
	}
	return ""
}
