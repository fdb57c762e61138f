package chain

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/qaevaluator/internal/retriever"
	"github.com/haasonsaas/qaevaluator/internal/testharness"
	"github.com/haasonsaas/qaevaluator/pkg/models"
)

type staticRetriever struct {
	passages []models.Passage
	err      error
}

func (s staticRetriever) Retrieve(context.Context, string) ([]models.Passage, error) {
	return s.passages, s.err
}

func TestRetrievalQARun(t *testing.T) {
	model := testharness.Reply("Paris")
	built := &retriever.Generic{Retriever: staticRetriever{passages: []models.Passage{
		{Index: 0, Text: "France's capital is Paris."},
		{Index: 3, Text: "Paris hosts the Louvre."},
	}}}

	p, err := Build(model, built, "gpt-4")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	qa, ok := p.(*RetrievalQA)
	if !ok {
		t.Fatalf("Build() = %T, want *RetrievalQA", p)
	}

	ans, err := qa.Run(context.Background(), "What is the capital of France?")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ans.Text != "Paris" || len(ans.Passages) != 2 {
		t.Errorf("Run() = %+v", ans)
	}

	prompt := model.LastPrompt()
	for _, want := range []string{
		"France's capital is Paris.\n\nParis hosts the Louvre.",
		"Question: What is the capital of France?",
		"Helpful Answer:",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if req := model.Requests()[0]; req.Model != "gpt-4" || req.Temperature != 0 {
		t.Errorf("request = %+v", req)
	}
}

func TestRetrievalQARetrieveError(t *testing.T) {
	boom := errors.New("index closed")
	model := testharness.Reply("unused")
	p, _ := Build(model, &retriever.Generic{Retriever: staticRetriever{err: boom}}, "gpt-4")

	_, err := p.(*RetrievalQA).Run(context.Background(), "q")
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
	if len(model.Requests()) != 0 {
		t.Error("model should not be called when retrieval fails")
	}
}

func TestBuildIndexed(t *testing.T) {
	ctx := context.Background()
	model := testharness.Reply("indexed answer")
	built, err := retriever.Build(ctx, []string{"alpha beta gamma", "delta epsilon"}, retriever.Options{
		Strategy:   retriever.Indexed,
		Embeddings: &testharness.Embedder{},
		LLM:        model,
	})
	if err != nil {
		t.Fatalf("retriever.Build() error = %v", err)
	}
	defer built.Close()

	p, err := Build(nil, built, "")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	iq, ok := p.(*IndexedQuery)
	if !ok {
		t.Fatalf("Build() = %T, want *IndexedQuery", p)
	}
	resp, err := iq.Query(ctx, "alpha?", 1)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if resp.Response != "indexed answer" || len(resp.SourceNodes) != 1 {
		t.Errorf("Query() = %+v", resp)
	}
}

func TestBuildRequiresModel(t *testing.T) {
	if _, err := Build(nil, &retriever.Generic{Retriever: staticRetriever{}}, "gpt-4"); err == nil {
		t.Fatal("expected error without model")
	}
}
