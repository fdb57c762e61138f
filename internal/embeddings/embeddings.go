// Package embeddings provides interfaces and implementations for embedding providers.
package embeddings

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/haasonsaas/qaevaluator/internal/observability"
)

// ErrInputRejected marks input a provider refuses to embed, for example text
// containing tokens its tokenizer disallows. It is the only error that
// triggers the similarity-search fallback provider.
var ErrInputRejected = errors.New("embedding input rejected")

// Provider defines the interface for embedding providers.
type Provider interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Name returns the provider name.
	Name() string

	// MaxBatchSize returns the maximum number of texts per batch.
	MaxBatchSize() int
}

// maxConcurrentBatches bounds the EmbedBatch calls EmbedAll keeps in flight.
const maxConcurrentBatches = 4

// EmbedAll embeds texts in batches no larger than batchSize or the provider's
// own limit, preserving input order. Batches run concurrently and the first
// failure cancels the rest.
func EmbedAll(ctx context.Context, p Provider, texts []string, batchSize int) ([][]float32, error) {
	if max := p.MaxBatchSize(); batchSize <= 0 || (max > 0 && batchSize > max) {
		batchSize = max
	}
	if batchSize <= 0 {
		batchSize = len(texts)
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBatches)
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		g.Go(func() error {
			vectors, err := p.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed batch %d-%d with %s: %w", start, end, p.Name(), err)
			}
			if len(vectors) != end-start {
				return fmt.Errorf("embed batch %d-%d with %s: got %d vectors", start, end, p.Name(), len(vectors))
			}
			copy(out[start:end], vectors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type instrumented struct {
	Provider
	metrics *observability.Metrics
}

// WithMetrics counts embedding batches by outcome.
func WithMetrics(p Provider, metrics *observability.Metrics) Provider {
	if p == nil || metrics == nil {
		return p
	}
	return &instrumented{Provider: p, metrics: metrics}
}

func (i *instrumented) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := i.Provider.EmbedBatch(ctx, texts)
	i.metrics.RecordEmbeddingRequest(i.Name(), status(err))
	return vectors, err
}

func (i *instrumented) Embed(ctx context.Context, text string) ([]float32, error) {
	vector, err := i.Provider.Embed(ctx, text)
	i.metrics.RecordEmbeddingRequest(i.Name(), status(err))
	return vector, err
}

func status(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInputRejected):
		return "rejected"
	default:
		return "error"
	}
}
