package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/haasonsaas/qaevaluator/internal/embeddings"
	"github.com/haasonsaas/qaevaluator/internal/llm"
	"github.com/haasonsaas/qaevaluator/internal/splitter"
	"github.com/haasonsaas/qaevaluator/internal/vectorstore"
	"github.com/haasonsaas/qaevaluator/pkg/models"
)

const (
	defaultIndexChunkTokens = 512
	runesPerToken           = 4
	indexOverlapRunes       = 80

	// contextBudgetRunes bounds the node text packed into one prompt.
	contextBudgetRunes = 3000 * runesPerToken
)

const textQATemplate = `Context information is below.
---------------------
%s
---------------------
Given the context information and not prior knowledge, answer the question: %s
`

const refineTemplate = `The original question is as follows: %s
We have provided an existing answer: %s
We have the opportunity to refine the existing answer (only if needed) with some more context below.
------------
%s
------------
Given the new context, refine the original answer to better answer the question. If the context isn't useful, return the original answer.`

// Response is the answer of an indexed query together with the nodes it was
// synthesized from.
type Response struct {
	Response    string
	SourceNodes []models.Passage
}

// IndexEngine is a vector index over re-split nodes that answers questions
// directly. It does not expose a plain passage retriever.
type IndexEngine struct {
	store    vectorstore.Store
	embedder embeddings.Provider
	llm      llm.Provider
	model    string
	logger   *slog.Logger
}

func newIndexEngine(ctx context.Context, chunks []string, opts Options, logger *slog.Logger) (*IndexEngine, error) {
	if opts.LLM == nil {
		return nil, fmt.Errorf("indexed retriever requires an llm provider")
	}

	nodes, err := indexNodes(chunks, opts.IndexChunkTokens)
	if err != nil {
		return nil, err
	}
	logger.Debug("indexing nodes", "chunks", len(chunks), "nodes", len(nodes))

	store, embedder, err := buildStore(ctx, nodes, opts, logger)
	if err != nil {
		return nil, err
	}
	return &IndexEngine{
		store:    store,
		embedder: embedder,
		llm:      opts.LLM,
		model:    opts.Model,
		logger:   logger,
	}, nil
}

// indexNodes splits each chunk into nodes of at most tokens*4 runes.
func indexNodes(chunks []string, tokens int) ([]string, error) {
	if tokens <= 0 {
		tokens = defaultIndexChunkTokens
	}
	cfg := splitter.Config{
		ChunkSize: tokens * runesPerToken,
		Overlap:   min(indexOverlapRunes, tokens*runesPerToken/4),
		Method:    splitter.Recursive,
	}

	var nodes []string
	for _, chunk := range chunks {
		parts, err := splitter.Split(chunk, cfg)
		if err != nil {
			return nil, fmt.Errorf("split nodes: %w", err)
		}
		nodes = append(nodes, parts...)
	}
	if len(nodes) == 0 {
		return nil, ErrNoChunks
	}
	return nodes, nil
}

// Query retrieves the topK nearest nodes and synthesizes an answer from them.
func (e *IndexEngine) Query(ctx context.Context, question string, topK int) (Response, error) {
	if topK <= 0 {
		topK = defaultNeighbors
	}
	nodes, err := search(ctx, e.store, e.embedder, question, topK)
	if err != nil {
		return Response{}, err
	}

	var answer string
	for i, pack := range packNodes(nodes, contextBudgetRunes) {
		var prompt string
		if i == 0 {
			prompt = fmt.Sprintf(textQATemplate, pack, question)
		} else {
			prompt = fmt.Sprintf(refineTemplate, question, answer, pack)
		}
		req := llm.UserPrompt(e.model, "", prompt)
		req.Temperature = 0
		answer, err = llm.CompleteText(ctx, e.llm, req)
		if err != nil {
			return Response{}, fmt.Errorf("synthesize answer: %w", err)
		}
	}
	return Response{Response: answer, SourceNodes: nodes}, nil
}

// Close releases the index.
func (e *IndexEngine) Close() error {
	return e.store.Close()
}

// packNodes joins node texts into as few context blocks as fit in budget
// runes. A node larger than budget gets a block of its own.
func packNodes(nodes []models.Passage, budget int) []string {
	var (
		packs []string
		cur   strings.Builder
		size  int
	)
	for _, n := range nodes {
		l := utf8.RuneCountInString(n.Text)
		if size > 0 && size+l+2 > budget {
			packs = append(packs, cur.String())
			cur.Reset()
			size = 0
		}
		if size > 0 {
			cur.WriteString("\n\n")
			size += 2
		}
		cur.WriteString(n.Text)
		size += l
	}
	if size > 0 || len(packs) == 0 {
		packs = append(packs, cur.String())
	}
	return packs
}
