package testharness

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/qaevaluator/internal/embeddings"
	"github.com/haasonsaas/qaevaluator/internal/llm"
)

func TestLLMRecordsRequests(t *testing.T) {
	fake := &LLM{Respond: func(req *llm.Request) (string, error) {
		return "echo: " + req.Messages[0].Content, nil
	}}

	text, err := llm.CompleteText(context.Background(), fake, llm.UserPrompt("m", "sys", "hello"))
	if err != nil {
		t.Fatalf("CompleteText() error = %v", err)
	}
	if text != "echo: hello" {
		t.Errorf("text = %q", text)
	}
	if len(fake.Requests()) != 1 || fake.LastPrompt() != "hello" {
		t.Errorf("unexpected requests %+v", fake.Requests())
	}
}

func TestLLMError(t *testing.T) {
	boom := errors.New("boom")
	fake := &LLM{Respond: func(*llm.Request) (string, error) { return "", boom }}
	if _, err := llm.CompleteText(context.Background(), fake, llm.UserPrompt("", "", "x")); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestEmbedder(t *testing.T) {
	e := &Embedder{Dim: 32, Reject: func(s string) bool { return strings.Contains(s, "<|endoftext|>") }}

	a, err := e.Embed(context.Background(), "Paris is the capital")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.Embed(context.Background(), "paris IS the capital!")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding should ignore case and punctuation")
		}
	}

	if _, err := e.EmbedBatch(context.Background(), []string{"ok", "bad <|endoftext|>"}); !errors.Is(err, embeddings.ErrInputRejected) {
		t.Fatalf("expected ErrInputRejected, got %v", err)
	}
	if e.Calls() != 3 {
		t.Errorf("Calls() = %d, want 3", e.Calls())
	}
}
