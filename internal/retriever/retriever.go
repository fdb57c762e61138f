// Package retriever builds the retrieval strategies an evaluation run can
// select: embedding similarity search, TF-IDF, SVM and a self-contained
// vector index with its own query operation.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/haasonsaas/qaevaluator/internal/embeddings"
	"github.com/haasonsaas/qaevaluator/internal/llm"
	"github.com/haasonsaas/qaevaluator/internal/observability"
	"github.com/haasonsaas/qaevaluator/internal/vectorstore"
	"github.com/haasonsaas/qaevaluator/pkg/models"
)

// ErrNoChunks is returned when there is nothing to index.
var ErrNoChunks = errors.New("no chunks to index")

// Strategy selects how passages are retrieved.
type Strategy string

const (
	SimilaritySearch Strategy = "similarity-search"
	SVM              Strategy = "SVM"
	TFIDF            Strategy = "TF-IDF"
	Indexed          Strategy = "Llama-Index"
)

// FixedK is the passage count of the TF-IDF and SVM strategies, which ignore
// the requested neighbor count.
const FixedK = 4

// ParseStrategy maps a wire name to a Strategy. Matching ignores case.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "similarity-search", "similarity":
		return SimilaritySearch, nil
	case "svm":
		return SVM, nil
	case "tf-idf", "tfidf":
		return TFIDF, nil
	case "llama-index", "indexed":
		return Indexed, nil
	default:
		return "", fmt.Errorf("unknown retriever type %q", name)
	}
}

// Retriever returns passages relevant to a query, best first.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]models.Passage, error)
}

// Built is the result of Build: either *Generic or *IndexedRetriever.
// Callers must switch on the concrete type because the indexed variant
// answers questions itself instead of exposing Retrieve.
type Built interface {
	Strategy() Strategy
	Close() error
	isBuilt()
}

// Generic wraps a Retriever usable by a retrieval QA chain.
type Generic struct {
	Retriever Retriever
	strategy  Strategy
}

// Strategy returns the strategy that built the retriever.
func (g *Generic) Strategy() Strategy { return g.strategy }

// Close releases the retriever's index.
func (g *Generic) Close() error {
	if c, ok := g.Retriever.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (*Generic) isBuilt() {}

// IndexedRetriever wraps an IndexEngine queried with an explicit top-k.
type IndexedRetriever struct {
	Engine *IndexEngine
}

// Strategy returns Indexed.
func (*IndexedRetriever) Strategy() Strategy { return Indexed }

// Close releases the engine's index.
func (i *IndexedRetriever) Close() error { return i.Engine.Close() }

func (*IndexedRetriever) isBuilt() {}

// Options configure Build.
type Options struct {
	Strategy Strategy

	// Embeddings is the primary embedding provider.
	Embeddings embeddings.Provider

	// Fallback replaces Embeddings once if it rejects the corpus.
	Fallback embeddings.Provider

	// NeighborCount is the passage count for similarity search and the
	// indexed strategy.
	NeighborCount int

	// LLM and Model answer queries for the indexed strategy.
	LLM   llm.Provider
	Model string

	BatchSize        int
	VectorStore      vectorstore.Kind
	SVMMaxIter       int
	IndexChunkTokens int

	Logger *slog.Logger
	Tracer *observability.Tracer
}

// Build constructs the retriever for opts.Strategy over chunks. Any error is
// fatal for the run; embedding input rejection is handled internally by a
// single rebuild with opts.Fallback.
func Build(ctx context.Context, chunks []string, opts Options) (built Built, err error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With("component", "retriever", "strategy", string(opts.Strategy))

	ctx, span := opts.Tracer.Start(ctx, "retriever.build",
		"retriever.strategy", string(opts.Strategy),
		"retriever.chunks", len(chunks),
	)
	defer func() {
		opts.Tracer.RecordError(span, err)
		span.End()
	}()

	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}

	logger.Info("making retriever", "chunks", len(chunks))

	switch opts.Strategy {
	case SimilaritySearch:
		r, err := newSimilarity(ctx, chunks, opts, logger)
		if err != nil {
			return nil, err
		}
		return &Generic{Retriever: r, strategy: SimilaritySearch}, nil

	case TFIDF:
		return &Generic{Retriever: NewTFIDF(chunks, FixedK), strategy: TFIDF}, nil

	case SVM:
		r, err := newSVM(ctx, chunks, opts, logger)
		if err != nil {
			return nil, err
		}
		return &Generic{Retriever: r, strategy: SVM}, nil

	case Indexed:
		engine, err := newIndexEngine(ctx, chunks, opts, logger)
		if err != nil {
			return nil, err
		}
		return &IndexedRetriever{Engine: engine}, nil

	default:
		return nil, fmt.Errorf("unknown retriever strategy %q", opts.Strategy)
	}
}

// FormatPassages renders passages as "Doc 1: <text> Doc 2: <text> ".
func FormatPassages(passages []models.Passage) string {
	var b strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&b, "Doc %d: %s ", i+1, p.Text)
	}
	return b.String()
}
