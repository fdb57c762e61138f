package evaluator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/haasonsaas/qaevaluator/internal/chain"
	"github.com/haasonsaas/qaevaluator/internal/grader"
	"github.com/haasonsaas/qaevaluator/internal/observability"
	"github.com/haasonsaas/qaevaluator/internal/retriever"
	"github.com/haasonsaas/qaevaluator/pkg/models"
)

// Stage names the step of a pair that failed.
type Stage string

const (
	StageGeneration Stage = "generation"
	StageAnswer     Stage = "answer"
	StageRetrieval  Stage = "retrieval"
	StageGrading    Stage = "grading"
)

// Skip describes a dropped slot.
type Skip struct {
	Stage  Stage
	Reason string
	Err    error
}

// Outcome is the result of one evaluation slot. Exactly one of Result and
// Skip is set.
type Outcome struct {
	Index  int
	Result *models.GradedResult
	Skip   *Skip
}

// Results evaluates each slot in order and yields its outcome. Failures of a
// single slot are yielded as skips and never stop the run. The sequence ends
// after NumEvalQuestions slots, when the consumer stops, or when ctx is done.
// Only the first call yields anything.
func (r *Run) Results(ctx context.Context) iter.Seq[Outcome] {
	return func(yield func(Outcome) bool) {
		if !r.started.CompareAndSwap(false, true) {
			return
		}
		ctx := observability.AddRunID(ctx, r.ID)

		var graded, skipped int
		defer func() {
			status := "ok"
			if ctx.Err() != nil {
				status = "cancelled"
			}
			r.deps.Metrics.RecordRun(string(r.req.Retriever), status)
			r.logger.InfoContext(ctx, "run finished", "graded", graded, "skipped", skipped, "status", status)
		}()

		for i := 0; i < r.req.NumEvalQuestions; i++ {
			if ctx.Err() != nil {
				return
			}

			out := r.evaluate(ctx, i)
			if out.Skip != nil {
				skipped++
				r.deps.Metrics.RecordPair("skipped_"+string(out.Skip.Stage), 0)
				r.logger.WarnContext(ctx, "skipping pair", "index", i, "stage", string(out.Skip.Stage), "reason", out.Skip.Reason)
			} else {
				graded++
				r.deps.Metrics.RecordPair("graded", out.Result.LatencySeconds)
			}

			if !yield(out) {
				return
			}
		}
	}
}

func (r *Run) evaluate(ctx context.Context, i int) (out Outcome) {
	ctx, span := r.deps.Tracer.Start(ctx, "evaluator.pair", "pair.index", i)
	defer func() {
		if out.Skip != nil {
			span.SetAttributes(attribute.String("pair.skip_stage", string(out.Skip.Stage)))
			r.deps.Tracer.RecordError(span, out.Skip.Err)
		}
		span.End()
	}()

	skip := func(stage Stage, reason string, err error) Outcome {
		return Outcome{Index: i, Skip: &Skip{Stage: stage, Reason: reason, Err: err}}
	}

	pair, err := r.pair(ctx, i)
	if err != nil {
		return skip(StageGeneration, err.Error(), err)
	}

	r.logger.InfoContext(ctx, "running eval", "index", i)

	var (
		answer    string
		retrieved string
	)
	start := time.Now()
	switch p := r.pipeline.(type) {
	case *chain.RetrievalQA:
		ans, err := p.Run(ctx, pair.Question)
		if err != nil {
			return skip(StageAnswer, "answer generation failed", err)
		}
		answer = ans.Text
	case *chain.IndexedQuery:
		resp, err := p.Query(ctx, pair.Question, r.req.NumNeighbors)
		if err != nil {
			return skip(StageAnswer, "answer generation failed", err)
		}
		answer = resp.Response
		retrieved = retriever.FormatPassages(resp.SourceNodes)
	default:
		err := fmt.Errorf("unsupported pipeline %T", r.pipeline)
		return skip(StageAnswer, err.Error(), err)
	}
	latency := time.Since(start).Seconds()

	if qa, ok := r.pipeline.(*chain.RetrievalQA); ok {
		passages, err := qa.Retriever().Retrieve(ctx, pair.Question)
		if err != nil {
			return skip(StageRetrieval, "retrieval failed", err)
		}
		retrieved = retriever.FormatPassages(passages)
	}

	r.logger.DebugContext(ctx, "grading model answer", "index", i)
	answerVerdict, err := r.deps.Grader.GradeAnswer(ctx, pair, answer, r.req.GradePrompt)
	if err != nil {
		return skip(StageGrading, gradingReason("answer", err), err)
	}

	r.logger.DebugContext(ctx, "grading relevance of retrieved docs", "index", i)
	docsVerdict, err := r.deps.Grader.GradeRetrieval(ctx, pair, retrieved, r.req.GradePrompt)
	if err != nil {
		return skip(StageGrading, gradingReason("retrieval", err), err)
	}

	return Outcome{Index: i, Result: &models.GradedResult{
		Question:          pair.Question,
		Answer:            pair.Answer,
		Result:            answer,
		RetrievedText:     retrieved,
		AnswerCorrect:     grader.AnswerCorrect(answerVerdict),
		RetrievalRelevant: grader.RetrievalRelevant(docsVerdict),
		LatencySeconds:    latency,
	}}
}

// pair returns the supplied pair for slot i, or synthesizes one.
func (r *Run) pair(ctx context.Context, i int) (models.EvalPair, error) {
	if i < len(r.req.Dataset) {
		p := r.req.Dataset[i]
		if !p.Valid() {
			return models.EvalPair{}, fmt.Errorf("dataset pair %d needs a question and an answer", i)
		}
		return p, nil
	}

	if r.deps.Generator == nil {
		return models.EvalPair{}, errors.New("no question generator configured")
	}
	r.logger.InfoContext(ctx, "generating eval pair", "index", i)
	p, err := r.deps.Generator.GenerateOne(ctx, r.corpus, r.deps.SampleChars)
	if err != nil {
		return models.EvalPair{}, fmt.Errorf("generate pair: %w", err)
	}
	return p, nil
}

func gradingReason(what string, err error) string {
	if errors.Is(err, grader.ErrEmptyVerdict) {
		return what + " grade returned no verdict"
	}
	return what + " grading failed"
}
