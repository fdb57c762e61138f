// Package vectorstore provides nearest-neighbor indexes over chunk embeddings.
package vectorstore

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/haasonsaas/qaevaluator/pkg/models"
)

// Entry is one indexed chunk.
type Entry struct {
	Index     int
	Text      string
	Embedding []float32
}

// Store is a vector index built once per evaluation run.
type Store interface {
	// Add indexes entries.
	Add(ctx context.Context, entries []Entry) error

	// Search returns the k entries most similar to query, best first.
	Search(ctx context.Context, query []float32, k int) ([]models.Passage, error)

	// Len returns the number of indexed entries.
	Len(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}

// Kind names a Store implementation.
type Kind string

const (
	KindMemory Kind = "memory"
	KindSQLite Kind = "sqlite"
)

// New opens an empty store of the given kind. An empty kind selects memory.
func New(kind Kind) (Store, error) {
	switch Kind(strings.ToLower(string(kind))) {
	case "", KindMemory:
		return NewMemory(), nil
	case KindSQLite:
		return OpenSQLite("")
	default:
		return nil, fmt.Errorf("unknown vector store %q", kind)
	}
}

// Build opens a store and adds entries.
func Build(ctx context.Context, kind Kind, entries []Entry) (Store, error) {
	store, err := New(kind)
	if err != nil {
		return nil, err
	}
	if err := store.Add(ctx, entries); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when lengths differ
// or either vector is zero.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// topK sorts passages by descending score, ties broken by index, and keeps k.
func topK(passages []models.Passage, k int) []models.Passage {
	slices.SortStableFunc(passages, func(a, b models.Passage) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})
	if k > 0 && len(passages) > k {
		passages = passages[:k]
	}
	return passages
}
