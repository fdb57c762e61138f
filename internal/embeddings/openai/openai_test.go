package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/haasonsaas/qaevaluator/internal/embeddings"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := New(Config{APIKey: "sk-test", BaseURL: server.URL + "/v1"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func TestEmbedBatchOrdersByIndex(t *testing.T) {
	p := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "text-embedding-ada-002" {
			t.Errorf("model = %v", req["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "text-embedding-ada-002",
			"data": []map[string]any{
				{"object": "embedding", "index": 1, "embedding": []float32{0, 1}},
				{"object": "embedding", "index": 0, "embedding": []float32{1, 0}},
			},
		})
	})

	vectors, err := p.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Errorf("vectors out of order: %v", vectors)
	}
}

func TestEmbedBatchRejectsSpecialTokens(t *testing.T) {
	var calls int32
	p := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := p.EmbedBatch(context.Background(), []string{"fine", "trailing <|endoftext|> marker"})
	if !errors.Is(err, embeddings.ErrInputRejected) {
		t.Fatalf("expected ErrInputRejected, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("request should not reach the API")
	}
}

func TestEmbedBatchBadRequest(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantRejected bool
	}{
		{
			name:         "context length code",
			body:         `{"error":{"message":"too long","type":"invalid_request_error","code":"context_length_exceeded"}}`,
			wantRejected: true,
		},
		{
			name:         "context length message",
			body:         `{"error":{"message":"This model's maximum context length is 8192 tokens","type":"invalid_request_error","code":null}}`,
			wantRejected: true,
		},
		{
			name: "unknown parameter",
			body: `{"error":{"message":"Unrecognized request argument supplied: foo","type":"invalid_request_error","code":null}}`,
		},
		{
			name: "bad model",
			body: `{"error":{"message":"invalid model ID","type":"invalid_request_error","code":"model_not_found"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := p.Embed(context.Background(), "x")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, embeddings.ErrInputRejected); got != tt.wantRejected {
				t.Errorf("ErrInputRejected = %v, want %v (err %v)", got, tt.wantRejected, err)
			}
		})
	}
}

func TestEmbedBatchServerError(t *testing.T) {
	p := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	})

	_, err := p.Embed(context.Background(), "x")
	if err == nil || errors.Is(err, embeddings.ErrInputRejected) {
		t.Fatalf("expected plain error, got %v", err)
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without API key")
	}
}
