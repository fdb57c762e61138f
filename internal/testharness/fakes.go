// Package testharness provides scripted model and embedding providers for
// tests that exercise the evaluation pipeline without network access.
package testharness

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/haasonsaas/qaevaluator/internal/embeddings"
	"github.com/haasonsaas/qaevaluator/internal/llm"
)

// LLM is a scripted llm.Provider. Respond computes the reply to each
// request; a nil Respond replies with an empty string.
type LLM struct {
	ProviderName string
	Respond      func(req *llm.Request) (string, error)

	mu       sync.Mutex
	requests []*llm.Request
}

var _ llm.Provider = (*LLM)(nil)

// Reply returns an LLM that always answers text.
func Reply(text string) *LLM {
	return &LLM{Respond: func(*llm.Request) (string, error) { return text, nil }}
}

// Name returns the provider name.
func (f *LLM) Name() string {
	if f.ProviderName == "" {
		return "fake"
	}
	return f.ProviderName
}

// Complete records req and streams the scripted reply as a single chunk.
func (f *LLM) Complete(ctx context.Context, req *llm.Request) (<-chan *llm.Chunk, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var text string
	if f.Respond != nil {
		var err error
		if text, err = f.Respond(req); err != nil {
			return nil, err
		}
	}

	ch := make(chan *llm.Chunk, 2)
	ch <- &llm.Chunk{Text: text}
	ch <- &llm.Chunk{Done: true}
	close(ch)
	return ch, nil
}

// Requests returns the requests seen so far.
func (f *LLM) Requests() []*llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*llm.Request(nil), f.requests...)
}

// LastPrompt returns the content of the final message of the most recent request.
func (f *LLM) LastPrompt() string {
	reqs := f.Requests()
	if len(reqs) == 0 || len(reqs[len(reqs)-1].Messages) == 0 {
		return ""
	}
	msgs := reqs[len(reqs)-1].Messages
	return msgs[len(msgs)-1].Content
}

// Embedder is a deterministic embeddings.Provider that hashes lowercased
// words into Dim buckets and L2-normalizes the counts. Texts matching Reject
// fail with embeddings.ErrInputRejected.
type Embedder struct {
	ProviderName string
	Dim          int
	Reject       func(text string) bool
	Err          error

	mu    sync.Mutex
	calls int
}

var _ embeddings.Provider = (*Embedder)(nil)

// Name returns the provider name.
func (e *Embedder) Name() string {
	if e.ProviderName == "" {
		return "fake-embedder"
	}
	return e.ProviderName
}

// MaxBatchSize returns the maximum number of texts per batch.
func (e *Embedder) MaxBatchSize() int {
	return 16
}

// Calls returns the number of EmbedBatch calls.
func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Embed generates an embedding for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.Err != nil {
		return nil, e.Err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if e.Reject != nil && e.Reject(text) {
			return nil, fmt.Errorf("%w: text %d", embeddings.ErrInputRejected, i)
		}
		out[i] = HashEmbedding(text, e.dim())
	}
	return out, nil
}

func (e *Embedder) dim() int {
	if e.Dim <= 0 {
		return 64
	}
	return e.Dim
}

// HashEmbedding returns the normalized bag-of-words hash vector for text.
func HashEmbedding(text string, dim int) []float32 {
	vec := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%uint32(dim)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
