// Package huggingface provides an embedding provider backed by the Hugging Face
// feature-extraction inference API.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/qaevaluator/internal/embeddings"
)

const (
	defaultURL   = "https://api-inference.huggingface.co/pipeline/feature-extraction"
	defaultModel = "sentence-transformers/all-mpnet-base-v2"
)

// Provider implements embeddings.Provider using Hugging Face inference.
type Provider struct {
	client   *http.Client
	endpoint string
	apiKey   string
	model    string
}

var _ embeddings.Provider = (*Provider)(nil)

// Config contains configuration for the Hugging Face provider.
type Config struct {
	APIKey  string
	BaseURL string // Feature-extraction pipeline URL
	Model   string // Appended to BaseURL; leave empty for self-hosted endpoints
	Timeout time.Duration
}

// New creates a new Hugging Face embedding provider.
func New(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultURL
		if cfg.Model == "" {
			cfg.Model = defaultModel
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	endpoint := strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model != "" {
		endpoint += "/" + cfg.Model
	}

	return &Provider{
		client:   &http.Client{Timeout: cfg.Timeout},
		endpoint: endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "huggingface"
}

// MaxBatchSize returns the maximum number of texts per batch.
func (p *Provider) MaxBatchSize() int {
	return 32
}

type request struct {
	Inputs  []string       `json:"inputs"`
	Options requestOptions `json:"options"`
}

type requestOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Embed generates an embedding for a single text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(request{Inputs: texts, Options: requestOptions{WaitForModel: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		var apiErr errorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
			return nil, fmt.Errorf("%w: %s", embeddings.ErrInputRejected, msg)
		}
		return nil, fmt.Errorf("huggingface API error (status %d): %s", resp.StatusCode, msg)
	}

	vectors, err := decodeVectors(raw)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors))
	}
	return vectors, nil
}

// decodeVectors accepts pooled output ([texts][dim]) or token-level output
// ([texts][tokens][dim]), mean-pooling the latter.
func decodeVectors(raw []byte) ([][]float32, error) {
	var pooled [][]float32
	if err := json.Unmarshal(raw, &pooled); err == nil {
		return pooled, nil
	}

	var tokens [][][]float32
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	out := make([][]float32, len(tokens))
	for i, seq := range tokens {
		out[i] = meanPool(seq)
	}
	return out, nil
}

func meanPool(seq [][]float32) []float32 {
	if len(seq) == 0 {
		return nil
	}
	sum := make([]float32, len(seq[0]))
	for _, tok := range seq {
		for j := range sum {
			if j < len(tok) {
				sum[j] += tok[j]
			}
		}
	}
	n := float32(len(seq))
	for j := range sum {
		sum[j] /= n
	}
	return sum
}
