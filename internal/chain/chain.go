// Package chain turns a built retriever and a chat model into the pipeline
// that answers evaluation questions.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/haasonsaas/qaevaluator/internal/llm"
	"github.com/haasonsaas/qaevaluator/internal/retriever"
	"github.com/haasonsaas/qaevaluator/pkg/models"
)

const stuffPrompt = `Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

%s

Question: %s
Helpful Answer:`

// Pipeline is either *RetrievalQA or *IndexedQuery. The two are invoked
// differently and callers switch on the concrete type.
type Pipeline interface {
	isPipeline()
}

// Answer is the output of a RetrievalQA run.
type Answer struct {
	Text     string
	Passages []models.Passage
}

// RetrievalQA retrieves passages, stuffs them all into one prompt and asks
// the model.
type RetrievalQA struct {
	model     llm.Provider
	modelName string
	retriever retriever.Retriever
}

func (*RetrievalQA) isPipeline() {}

// Run answers question from the retrieved context.
func (c *RetrievalQA) Run(ctx context.Context, question string) (Answer, error) {
	passages, err := c.retriever.Retrieve(ctx, question)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieve: %w", err)
	}

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	req := llm.UserPrompt(c.modelName, "", fmt.Sprintf(stuffPrompt, strings.Join(texts, "\n\n"), question))
	req.Temperature = 0

	text, err := llm.CompleteText(ctx, c.model, req)
	if err != nil {
		return Answer{}, err
	}
	return Answer{Text: text, Passages: passages}, nil
}

// Retriever returns the retriever the chain draws context from.
func (c *RetrievalQA) Retriever() retriever.Retriever {
	return c.retriever
}

// IndexedQuery answers through the index engine, which holds its own model.
type IndexedQuery struct {
	engine *retriever.IndexEngine
}

func (*IndexedQuery) isPipeline() {}

// Query answers question from the k nearest nodes.
func (q *IndexedQuery) Query(ctx context.Context, question string, k int) (retriever.Response, error) {
	return q.engine.Query(ctx, question, k)
}

// Build wires built into a Pipeline. The indexed variant ignores model and
// modelName because the engine was constructed with them.
func Build(model llm.Provider, built retriever.Built, modelName string) (Pipeline, error) {
	switch b := built.(type) {
	case *retriever.Generic:
		if model == nil {
			return nil, errors.New("retrieval qa requires an llm provider")
		}
		return &RetrievalQA{model: model, modelName: modelName, retriever: b.Retriever}, nil
	case *retriever.IndexedRetriever:
		return &IndexedQuery{engine: b.Engine}, nil
	default:
		return nil, fmt.Errorf("unsupported retriever %T", built)
	}
}
