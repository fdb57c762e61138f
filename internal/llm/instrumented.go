package llm

import (
	"context"
	"time"

	"github.com/haasonsaas/qaevaluator/internal/observability"
)

// instrumented records request counts and durations for a provider.
type instrumented struct {
	next    Provider
	metrics *observability.Metrics
}

// WithMetrics wraps a provider so every completion is counted.
// A nil metrics value returns the provider unchanged.
func WithMetrics(p Provider, metrics *observability.Metrics) Provider {
	if metrics == nil || p == nil {
		return p
	}
	return &instrumented{next: p, metrics: metrics}
}

func (i *instrumented) Name() string {
	return i.next.Name()
}

func (i *instrumented) Complete(ctx context.Context, req *Request) (<-chan *Chunk, error) {
	start := time.Now()
	upstream, err := i.next.Complete(ctx, req)
	if err != nil {
		i.metrics.RecordLLMRequest(i.next.Name(), "error", time.Since(start).Seconds())
		return nil, err
	}

	out := make(chan *Chunk)
	go func() {
		defer close(out)
		status := "success"
		for chunk := range upstream {
			if chunk != nil && chunk.Error != nil {
				status = "error"
			}
			if !send(ctx, out, chunk) {
				status = "cancelled"
				// Drain so the upstream goroutine can exit.
				for range upstream {
				}
				break
			}
		}
		i.metrics.RecordLLMRequest(i.next.Name(), status, time.Since(start).Seconds())
	}()
	return out, nil
}
