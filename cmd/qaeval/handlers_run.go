package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/qaevaluator/internal/evaluator"
	"github.com/haasonsaas/qaevaluator/internal/grader"
	"github.com/haasonsaas/qaevaluator/internal/ingest"
	"github.com/haasonsaas/qaevaluator/internal/qagen"
	"github.com/haasonsaas/qaevaluator/internal/retriever"
	"github.com/haasonsaas/qaevaluator/internal/splitter"
	"github.com/haasonsaas/qaevaluator/pkg/models"
)

// runEvaluation evaluates local files and writes one JSON line per outcome.
func runEvaluation(cmd *cobra.Command, paths []string, opts runOptions) error {
	req, err := buildRunRequest(paths, opts)
	if err != nil {
		return err
	}

	a, err := newApp(opts.configPath, false)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	out := cmd.OutOrStdout()
	if opts.outPath != "" {
		f, err := os.Create(opts.outPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	run, err := evaluator.Prepare(ctx, req, a.deps)
	if err != nil {
		return err
	}
	defer run.Close()

	graded, err := writeOutcomes(ctx, out, run)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "run %s: %d of %d questions graded\n", run.ID, graded, req.NumEvalQuestions)
	return ctx.Err()
}

type runLine struct {
	RunID string                `json:"run_id"`
	Index int                   `json:"index"`
	Data  *models.ResultPayload `json:"data,omitempty"`
	Skip  *skipLine             `json:"skip,omitempty"`
}

type skipLine struct {
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

func writeOutcomes(ctx context.Context, w io.Writer, run *evaluator.Run) (int, error) {
	enc := json.NewEncoder(w)
	graded := 0
	for out := range run.Results(ctx) {
		line := runLine{RunID: run.ID, Index: out.Index}
		if out.Skip != nil {
			line.Skip = &skipLine{Stage: string(out.Skip.Stage), Reason: out.Skip.Reason}
		} else {
			payload := out.Result.Payload()
			line.Data = &payload
			graded++
		}
		if err := enc.Encode(line); err != nil {
			return graded, fmt.Errorf("write result: %w", err)
		}
	}
	return graded, nil
}

func buildRunRequest(paths []string, opts runOptions) (evaluator.Request, error) {
	if opts.numEvalQuestions < 1 {
		return evaluator.Request{}, fmt.Errorf("--num-eval-questions must be at least 1")
	}
	method, err := splitter.ParseMethod(opts.splitMethod)
	if err != nil {
		return evaluator.Request{}, err
	}
	strategy, err := retriever.ParseStrategy(opts.retrieverType)
	if err != nil {
		return evaluator.Request{}, err
	}

	docs := make([]ingest.Document, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return evaluator.Request{}, fmt.Errorf("read %s: %w", path, err)
		}
		docs = append(docs, ingest.Document{
			Name:        filepath.Base(path),
			ContentType: contentTypeFor(path),
			Data:        data,
		})
	}

	var dataset []models.EvalPair
	if opts.datasetPath != "" {
		raw, err := os.ReadFile(opts.datasetPath)
		if err != nil {
			return evaluator.Request{}, fmt.Errorf("read dataset: %w", err)
		}
		if err := qagen.UnmarshalLenient(raw, &dataset); err != nil {
			return evaluator.Request{}, fmt.Errorf("parse dataset: %w", err)
		}
	}

	return evaluator.Request{
		Documents:        docs,
		NumEvalQuestions: opts.numEvalQuestions,
		ChunkChars:       opts.chunkChars,
		Overlap:          opts.overlap,
		SplitMethod:      method,
		Retriever:        strategy,
		Embedding:        opts.embedding,
		ModelVersion:     opts.modelVersion,
		GradePrompt:      grader.ParseVariant(opts.gradePrompt),
		NumNeighbors:     opts.numNeighbors,
		Dataset:          dataset,
	}, nil
}

// contentTypeFor guesses a document's media type from its extension.
func contentTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".txt", ".md", "":
		return "text/plain"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
