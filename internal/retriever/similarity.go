package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/qaevaluator/internal/embeddings"
	"github.com/haasonsaas/qaevaluator/internal/vectorstore"
	"github.com/haasonsaas/qaevaluator/pkg/models"
)

const defaultNeighbors = 4

// Similarity retrieves the nearest chunks by embedding cosine similarity.
type Similarity struct {
	store    vectorstore.Store
	embedder embeddings.Provider
	k        int
}

func newSimilarity(ctx context.Context, chunks []string, opts Options, logger *slog.Logger) (*Similarity, error) {
	store, embedder, err := buildStore(ctx, chunks, opts, logger)
	if err != nil {
		return nil, err
	}
	k := opts.NeighborCount
	if k <= 0 {
		k = defaultNeighbors
	}
	return &Similarity{store: store, embedder: embedder, k: k}, nil
}

// Retrieve embeds query with the provider that built the index and returns
// the k nearest chunks.
func (s *Similarity) Retrieve(ctx context.Context, query string) ([]models.Passage, error) {
	return search(ctx, s.store, s.embedder, query, s.k)
}

// Close releases the index.
func (s *Similarity) Close() error {
	return s.store.Close()
}

// Provider returns the name of the embedding provider used for the index.
func (s *Similarity) Provider() string {
	return s.embedder.Name()
}

func search(ctx context.Context, store vectorstore.Store, embedder embeddings.Provider, query string, k int) ([]models.Passage, error) {
	vec, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return store.Search(ctx, vec, k)
}

// embedWithFallback embeds texts with the primary provider. If and only if
// the primary rejects the input, it embeds once more with the fallback.
func embedWithFallback(ctx context.Context, texts []string, opts Options, logger *slog.Logger) ([][]float32, embeddings.Provider, error) {
	if opts.Embeddings == nil {
		return nil, nil, errors.New("embedding provider is required")
	}

	vectors, err := embeddings.EmbedAll(ctx, opts.Embeddings, texts, opts.BatchSize)
	if err == nil {
		return vectors, opts.Embeddings, nil
	}
	if !errors.Is(err, embeddings.ErrInputRejected) || opts.Fallback == nil {
		return nil, nil, err
	}

	logger.Warn("embedding provider rejected input, rebuilding with fallback",
		"provider", opts.Embeddings.Name(),
		"fallback", opts.Fallback.Name(),
		"error", err,
	)
	vectors, err = embeddings.EmbedAll(ctx, opts.Fallback, texts, opts.BatchSize)
	if err != nil {
		return nil, nil, fmt.Errorf("fallback embeddings: %w", err)
	}
	return vectors, opts.Fallback, nil
}

// buildStore embeds texts and indexes them in the configured vector store.
func buildStore(ctx context.Context, texts []string, opts Options, logger *slog.Logger) (vectorstore.Store, embeddings.Provider, error) {
	vectors, embedder, err := embedWithFallback(ctx, texts, opts, logger)
	if err != nil {
		return nil, nil, err
	}
	entries := make([]vectorstore.Entry, len(texts))
	for i, text := range texts {
		entries[i] = vectorstore.Entry{Index: i, Text: text, Embedding: vectors[i]}
	}
	store, err := vectorstore.Build(ctx, opts.VectorStore, entries)
	if err != nil {
		return nil, nil, err
	}
	return store, embedder, nil
}
