package observability

import (
	"context"
	"errors"
	"testing"
)

func TestNewTracer(t *testing.T) {
	tests := []struct {
		name   string
		config TraceConfig
	}{
		{
			name: "without endpoint (no-op)",
			config: TraceConfig{
				ServiceName:    "test-service",
				ServiceVersion: "1.0.0",
			},
		},
		{
			name: "with endpoint",
			config: TraceConfig{
				ServiceName:    "test-service",
				Endpoint:       "localhost:4317",
				EnableInsecure: true,
				SamplingRate:   0.5,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, shutdown := NewTracer(tt.config)
			if tracer == nil {
				t.Fatal("NewTracer() returned nil tracer")
			}
			if shutdown == nil {
				t.Fatal("NewTracer() returned nil shutdown")
			}

			ctx, span := tracer.Start(context.Background(), "evaluator.pair", "index", 1, "strategy", "TF-IDF")
			if ctx == nil || span == nil {
				t.Fatal("Start() returned nil")
			}
			tracer.RecordError(span, errors.New("boom"))
			span.End()

			_ = shutdown(context.Background())
		})
	}
}

func TestNilTracerStart(t *testing.T) {
	var tracer *Tracer
	ctx, span := tracer.Start(context.Background(), "noop")
	if ctx == nil || span == nil {
		t.Fatal("nil tracer should return a usable span")
	}
	span.End()
	tracer.RecordError(span, nil)
}

func TestGetTraceIDWithoutSpan(t *testing.T) {
	if id := GetTraceID(context.Background()); id != "" {
		t.Fatalf("expected empty trace ID, got %q", id)
	}
}

func TestAttributeFromValue(t *testing.T) {
	attrs := attributes([]any{"s", "v", "i", 3, "f", 1.5, "b", true, 42, "skipped", "x", struct{}{}})
	if len(attrs) != 5 {
		t.Fatalf("expected 5 attributes, got %d", len(attrs))
	}
	if attrs[0].Value.AsString() != "v" {
		t.Errorf("string attribute = %v", attrs[0].Value.AsString())
	}
	if attrs[1].Value.AsInt64() != 3 {
		t.Errorf("int attribute = %v", attrs[1].Value.AsInt64())
	}
}
