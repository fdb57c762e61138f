// Package evaluator orchestrates one evaluation run: it builds the corpus,
// chunks, retriever and chain, then streams one graded outcome per
// evaluation slot.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/haasonsaas/qaevaluator/internal/chain"
	"github.com/haasonsaas/qaevaluator/internal/embeddings"
	"github.com/haasonsaas/qaevaluator/internal/grader"
	"github.com/haasonsaas/qaevaluator/internal/ingest"
	"github.com/haasonsaas/qaevaluator/internal/llm"
	"github.com/haasonsaas/qaevaluator/internal/observability"
	"github.com/haasonsaas/qaevaluator/internal/qagen"
	"github.com/haasonsaas/qaevaluator/internal/retriever"
	"github.com/haasonsaas/qaevaluator/internal/splitter"
	"github.com/haasonsaas/qaevaluator/internal/vectorstore"
	"github.com/haasonsaas/qaevaluator/pkg/models"
)

// DefaultSampleChars is the corpus window used to synthesize one pair.
const DefaultSampleChars = 3000

// ErrNoText is returned when none of the documents yielded any text.
var ErrNoText = errors.New("no text could be extracted from the documents")

// Embedding provider names accepted in requests.
const (
	EmbeddingOpenAI      = "OpenAI"
	EmbeddingHuggingFace = "HuggingFace"
)

// Request describes one evaluation run.
type Request struct {
	Documents        []ingest.Document
	NumEvalQuestions int
	ChunkChars       int
	Overlap          int
	SplitMethod      splitter.Method
	Retriever        retriever.Strategy
	Embedding        string
	ModelVersion     string
	GradePrompt      grader.Variant
	NumNeighbors     int

	// Dataset pairs fill the first slots; later slots are synthesized.
	Dataset []models.EvalPair
}

// ModelResolver maps a model version to a provider and concrete model ID.
type ModelResolver func(version string) (llm.Provider, string, error)

// EmbeddingProviders holds the two embedding backends. The one not selected
// by a request is its fallback.
type EmbeddingProviders struct {
	OpenAI      embeddings.Provider
	HuggingFace embeddings.Provider
}

// Select returns the primary provider for name and the other as fallback.
func (p EmbeddingProviders) Select(name string) (primary, fallback embeddings.Provider, err error) {
	switch {
	case name == "" || strings.EqualFold(name, EmbeddingOpenAI):
		primary, fallback = p.OpenAI, p.HuggingFace
	case strings.EqualFold(name, EmbeddingHuggingFace):
		primary, fallback = p.HuggingFace, p.OpenAI
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider %q", name)
	}
	if primary == nil {
		return nil, nil, fmt.Errorf("embedding provider %q is not configured", name)
	}
	return primary, fallback, nil
}

// Deps are the collaborators shared by all runs.
type Deps struct {
	Ingestor   *ingest.Ingestor
	Embeddings EmbeddingProviders
	Models     ModelResolver
	Generator  *qagen.Generator
	Grader     *grader.Grader

	SampleChars      int
	BatchSize        int
	VectorStore      vectorstore.Kind
	SVMMaxIter       int
	IndexChunkTokens int

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Run is a prepared evaluation. Results may be consumed once.
type Run struct {
	ID string

	req      Request
	deps     Deps
	corpus   string
	chunks   []string
	built    retriever.Built
	pipeline chain.Pipeline
	logger   *slog.Logger

	started atomic.Bool
}

// Prepare builds everything a run needs before the first pair. Any error is
// fatal for the run.
func Prepare(ctx context.Context, req Request, deps Deps) (run *Run, err error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.SampleChars <= 0 {
		deps.SampleChars = DefaultSampleChars
	}
	if deps.Ingestor == nil {
		deps.Ingestor = ingest.NewIngestor(nil, deps.Logger)
	}

	id := uuid.NewString()
	ctx = observability.AddRunID(ctx, id)
	// Context-aware calls pick run_id up from ctx; the retriever logs without one.
	logger := deps.Logger.With("component", "evaluator")
	retrieverLogger := deps.Logger.With("run_id", id)

	ctx, span := deps.Tracer.Start(ctx, "evaluator.prepare",
		"run.id", id,
		"run.retriever", string(req.Retriever),
		"run.questions", req.NumEvalQuestions,
	)
	defer func() {
		deps.Tracer.RecordError(span, err)
		span.End()
		if err != nil {
			deps.Metrics.RecordRun(string(req.Retriever), "failed")
		}
	}()

	if req.NumEvalQuestions < 0 {
		return nil, fmt.Errorf("num eval questions must not be negative, got %d", req.NumEvalQuestions)
	}
	if deps.Models == nil || deps.Grader == nil {
		return nil, errors.New("evaluator requires a model resolver and a grader")
	}

	corpus, used, err := deps.Ingestor.Corpus(ctx, req.Documents)
	if err != nil {
		return nil, err
	}
	if used == 0 || strings.TrimSpace(corpus) == "" {
		return nil, ErrNoText
	}

	logger.InfoContext(ctx, "splitting texts", "method", req.SplitMethod.String(), "chunk_chars", req.ChunkChars, "overlap", req.Overlap)
	chunks, err := splitter.Split(corpus, splitter.Config{
		ChunkSize: req.ChunkChars,
		Overlap:   req.Overlap,
		Method:    req.SplitMethod,
	})
	if err != nil {
		return nil, fmt.Errorf("split corpus: %w", err)
	}

	model, modelID, err := deps.Models(req.ModelVersion)
	if err != nil {
		return nil, fmt.Errorf("resolve model: %w", err)
	}

	primary, fallback, err := deps.Embeddings.Select(req.Embedding)
	if err != nil {
		return nil, err
	}

	built, err := retriever.Build(ctx, chunks, retriever.Options{
		Strategy:         req.Retriever,
		Embeddings:       primary,
		Fallback:         fallback,
		NeighborCount:    req.NumNeighbors,
		LLM:              model,
		Model:            modelID,
		BatchSize:        deps.BatchSize,
		VectorStore:      deps.VectorStore,
		SVMMaxIter:       deps.SVMMaxIter,
		IndexChunkTokens: deps.IndexChunkTokens,
		Logger:           retrieverLogger,
		Tracer:           deps.Tracer,
	})
	if err != nil {
		return nil, fmt.Errorf("build retriever: %w", err)
	}

	pipeline, err := chain.Build(model, built, modelID)
	if err != nil {
		_ = built.Close()
		return nil, fmt.Errorf("build chain: %w", err)
	}

	logger.InfoContext(ctx, "run prepared", "chunks", len(chunks), "documents", used, "model", modelID)
	return &Run{
		ID:       id,
		req:      req,
		deps:     deps,
		corpus:   corpus,
		chunks:   chunks,
		built:    built,
		pipeline: pipeline,
		logger:   logger,
	}, nil
}

// Chunks returns the number of chunks the corpus was split into.
func (r *Run) Chunks() int {
	return len(r.chunks)
}

// Close releases the retriever index.
func (r *Run) Close() error {
	return r.built.Close()
}
