// Package qagen synthesizes question/answer evaluation pairs from a corpus.
package qagen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/haasonsaas/qaevaluator/internal/llm"
	"github.com/haasonsaas/qaevaluator/pkg/models"
)

var (
	// ErrEmptyCorpus is returned when there is no text to sample from.
	ErrEmptyCorpus = errors.New("corpus is empty")

	// ErrNoPairs is returned when a sample produced no usable pair.
	ErrNoPairs = errors.New("no question/answer pairs generated")
)

// DefaultModel is the chat model used for question generation.
const DefaultModel = "gpt-3.5-turbo"

// Config configures a Generator.
type Config struct {
	// Provider answers the generation prompt. Required.
	Provider llm.Provider

	// Model overrides DefaultModel.
	Model string

	// Rand supplies sample offsets. A nil Rand uses a randomly seeded source.
	Rand *rand.Rand

	Logger *slog.Logger
}

// Generator draws random corpus samples and asks a model for QA pairs.
type Generator struct {
	provider llm.Provider
	model    string
	logger   *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Generator.
func New(cfg Config) (*Generator, error) {
	if cfg.Provider == nil {
		return nil, errors.New("qagen: provider is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Generator{
		provider: cfg.Provider,
		model:    cfg.Model,
		rng:      cfg.Rand,
		logger:   cfg.Logger.With("component", "qagen"),
	}, nil
}

// Generate draws n samples of sampleChars runes and returns at most n pairs
// in sample order. Samples that fail are logged and skipped. sampleChars is
// capped to the corpus length.
func (g *Generator) Generate(ctx context.Context, corpus string, n, sampleChars int) ([]models.EvalPair, error) {
	text := []rune(corpus)
	if len(text) == 0 {
		return nil, ErrEmptyCorpus
	}
	if n <= 0 {
		return nil, nil
	}
	sampleChars = clampSample(sampleChars, len(text))

	g.logger.Info("generating eval QA pairs", "samples", n, "sample_chars", sampleChars)

	offsets := g.offsets(n, len(text), sampleChars)
	var pairs []models.EvalPair
	for i, off := range offsets {
		if err := ctx.Err(); err != nil {
			return pairs, err
		}
		sample := string(text[off : off+sampleChars])
		got, err := g.sample(ctx, sample)
		if err != nil {
			g.logger.Error("question generation failed", "sample", i, "offset", off, "error", err)
			continue
		}
		pairs = append(pairs, got...)
	}

	if len(pairs) > n {
		pairs = pairs[:n]
	}
	return pairs, nil
}

// GenerateOne returns the first pair generated from a single random sample.
func (g *Generator) GenerateOne(ctx context.Context, corpus string, sampleChars int) (models.EvalPair, error) {
	pairs, err := g.Generate(ctx, corpus, 1, sampleChars)
	if err != nil {
		return models.EvalPair{}, err
	}
	if len(pairs) == 0 {
		return models.EvalPair{}, ErrNoPairs
	}
	return pairs[0], nil
}

func (g *Generator) sample(ctx context.Context, text string) ([]models.EvalPair, error) {
	req := llm.UserPrompt(g.model, systemPrompt, fmt.Sprintf(userPrompt, text))
	out, err := llm.CompleteText(ctx, g.provider, req)
	if err != nil {
		return nil, err
	}
	return ParsePairs(out)
}

// offsets draws n offsets uniformly from [0, length-sample].
func (g *Generator) offsets(n, length, sample int) []int {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]int, n)
	for i := range out {
		out[i] = g.rng.IntN(length - sample + 1)
	}
	return out
}

func clampSample(sampleChars, length int) int {
	if sampleChars <= 0 || sampleChars > length {
		return length
	}
	return sampleChars
}
