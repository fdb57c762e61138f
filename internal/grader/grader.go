// Package grader asks a language model to judge produced answers and
// retrieved context against ground truth.
//
// Grades are free text. AnswerCorrect and RetrievalRelevant are the only
// functions that interpret them; everything else passes verdicts through
// untouched so the convention can be replaced in one place.
package grader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haasonsaas/qaevaluator/internal/llm"
	"github.com/haasonsaas/qaevaluator/pkg/models"
)

// DefaultModel grades every run regardless of the model under test.
const DefaultModel = "gpt-3.5-turbo"

// ErrEmptyVerdict is returned when the grading model produced no verdict.
var ErrEmptyVerdict = errors.New("grader returned no verdict")

// Variant selects the grading prompt.
type Variant string

const (
	Standard Variant = "Standard"
	Fast     Variant = "Fast"
)

// ParseVariant maps a wire name to a Variant. Empty selects Fast. Any
// value other than Fast grades with the standard prompt.
func ParseVariant(name string) Variant {
	switch strings.TrimSpace(name) {
	case "", string(Fast):
		return Fast
	default:
		return Standard
	}
}

// Config configures a Grader.
type Config struct {
	Provider llm.Provider
	Model    string
	Logger   *slog.Logger
}

// Grader issues grading prompts at temperature 0.
type Grader struct {
	provider llm.Provider
	model    string
	logger   *slog.Logger
}

// New creates a Grader.
func New(cfg Config) (*Grader, error) {
	if cfg.Provider == nil {
		return nil, errors.New("grader requires an llm provider")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Grader{
		provider: cfg.Provider,
		model:    cfg.Model,
		logger:   cfg.Logger.With("component", "grader"),
	}, nil
}

// GradeAnswer judges produced against the ground-truth answer and returns
// the raw verdict.
func (g *Grader) GradeAnswer(ctx context.Context, truth models.EvalPair, produced string, v Variant) (string, error) {
	template := answerStandardTemplate
	if v == Fast {
		template = answerFastTemplate
	}
	g.logger.Debug("grading model answer", "variant", string(v))
	return g.grade(ctx, fmt.Sprintf(template, truth.Question, produced, truth.Answer))
}

// GradeRetrieval judges whether retrieved supports answering the question
// and returns the raw verdict.
func (g *Grader) GradeRetrieval(ctx context.Context, truth models.EvalPair, retrieved string, v Variant) (string, error) {
	template := docsStandardTemplate
	if v == Fast {
		template = docsFastTemplate
	}
	g.logger.Debug("grading relevance of retrieved docs", "variant", string(v))
	return g.grade(ctx, fmt.Sprintf(template, truth.Question, retrieved, truth.Answer))
}

func (g *Grader) grade(ctx context.Context, prompt string) (string, error) {
	req := llm.UserPrompt(g.model, "", prompt)
	req.Temperature = 0

	verdict, err := llm.CompleteText(ctx, g.provider, req)
	if errors.Is(err, llm.ErrEmptyResponse) {
		return "", ErrEmptyVerdict
	}
	if err != nil {
		return "", fmt.Errorf("grade: %w", err)
	}
	return verdict, nil
}

// AnswerCorrect reports whether an answer verdict accepts the answer. Any
// verdict without the exact token "INCORRECT" counts as correct.
func AnswerCorrect(verdict string) bool {
	return !strings.Contains(verdict, "INCORRECT")
}

// RetrievalRelevant reports whether a retrieval verdict marks the context
// relevant.
func RetrievalRelevant(verdict string) bool {
	return strings.Contains(verdict, "Context is relevant: True")
}
