package vectorstore

import (
	"context"
	"sync"

	"github.com/haasonsaas/qaevaluator/pkg/models"
)

// Memory is a flat in-process index scored by exhaustive cosine similarity.
type Memory struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Add indexes entries.
func (m *Memory) Add(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

// Search returns the k nearest entries.
func (m *Memory) Search(ctx context.Context, query []float32, k int) ([]models.Passage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	passages := make([]models.Passage, 0, len(m.entries))
	for _, e := range m.entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		passages = append(passages, models.Passage{
			Index: e.Index,
			Text:  e.Text,
			Score: Cosine(query, e.Embedding),
		})
	}
	return topK(passages, k), nil
}

// Len returns the number of entries.
func (m *Memory) Len(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
