package embeddings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/qaevaluator/internal/observability"
)

type stubProvider struct {
	maxBatch int
	err      error

	mu      sync.Mutex
	batches [][]string
}

func (s *stubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (s *stubProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	s.batches = append(s.batches, texts)
	s.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text))}
	}
	return out, nil
}

func (s *stubProvider) Name() string     { return "stub" }
func (s *stubProvider) MaxBatchSize() int { return s.maxBatch }

func TestEmbedAll(t *testing.T) {
	tests := []struct {
		name        string
		maxBatch    int
		batchSize   int
		wantBatches int
	}{
		{"requested size", 10, 2, 3},
		{"capped by provider", 3, 100, 2},
		{"provider default", 4, 0, 2},
		{"single batch", 0, 0, 1},
	}

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &stubProvider{maxBatch: tt.maxBatch}
			vectors, err := EmbedAll(context.Background(), p, texts, tt.batchSize)
			if err != nil {
				t.Fatalf("EmbedAll() error = %v", err)
			}
			if len(p.batches) != tt.wantBatches {
				t.Errorf("batches = %d, want %d", len(p.batches), tt.wantBatches)
			}
			for i, v := range vectors {
				if int(v[0]) != len(texts[i]) {
					t.Errorf("vector %d = %v, out of order", i, v)
				}
			}
		})
	}
}

func TestEmbedAllPropagatesRejection(t *testing.T) {
	p := &stubProvider{err: fmt.Errorf("%w: nope", ErrInputRejected)}
	_, err := EmbedAll(context.Background(), p, []string{"x"}, 1)
	if !errors.Is(err, ErrInputRejected) {
		t.Fatalf("expected ErrInputRejected, got %v", err)
	}
}

func TestWithMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	ok := WithMetrics(&stubProvider{}, metrics)
	if _, err := ok.Embed(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	rejected := WithMetrics(&stubProvider{err: ErrInputRejected}, metrics)
	_, _ = rejected.EmbedBatch(context.Background(), []string{"x"})

	if got := testutil.ToFloat64(metrics.EmbeddingRequestCounter.WithLabelValues("stub", "success")); got != 1 {
		t.Errorf("success count = %v", got)
	}
	if got := testutil.ToFloat64(metrics.EmbeddingRequestCounter.WithLabelValues("stub", "rejected")); got != 1 {
		t.Errorf("rejected count = %v", got)
	}

	if WithMetrics(nil, metrics) != nil {
		t.Error("nil provider should stay nil")
	}
}
