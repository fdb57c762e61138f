// Package models defines the core data types for the QA evaluator.
package models

import (
	"strings"
)

// EvalPair is a ground-truth question/answer pair used to measure pipeline quality.
// Pairs are either supplied by the caller or synthesized from the corpus.
type EvalPair struct {
	// Question is the evaluation question.
	Question string `json:"question"`

	// Answer is the expected (ground truth) answer.
	Answer string `json:"answer"`
}

// Valid reports whether both the question and the answer are non-empty.
func (p EvalPair) Valid() bool {
	return strings.TrimSpace(p.Question) != "" && strings.TrimSpace(p.Answer) != ""
}

// Passage is a single retrieved unit of text.
type Passage struct {
	// Index identifies the chunk within the retriever's corpus.
	Index int `json:"index"`

	// Text is the chunk content.
	Text string `json:"text"`

	// Score is the retriever-specific relevance score (higher is better).
	Score float64 `json:"score,omitempty"`
}

// GradedResult is the scored outcome of evaluating one EvalPair.
type GradedResult struct {
	// Question is the evaluation question.
	Question string `json:"question"`

	// Answer is the ground truth answer.
	Answer string `json:"answer"`

	// Result is the answer produced by the pipeline under test.
	Result string `json:"result"`

	// RetrievedText is the formatted context returned by the retriever.
	RetrievedText string `json:"retrieved_text,omitempty"`

	// AnswerCorrect is the normalized answer verdict.
	AnswerCorrect bool `json:"answer_correct"`

	// RetrievalRelevant is the normalized retrieval verdict.
	RetrievalRelevant bool `json:"retrieval_relevant"`

	// LatencySeconds is the wall-clock time of the answer-generation call.
	LatencySeconds float64 `json:"latency"`
}

// ResultPayload is the wire shape streamed to clients for each graded pair.
type ResultPayload struct {
	Question       string  `json:"question"`
	Answer         string  `json:"answer"`
	Result         string  `json:"result"`
	AnswerScore    int     `json:"answerScore"`
	RetrievalScore int     `json:"retrievalScore"`
	Latency        float64 `json:"latency"`
}

// Payload converts the result into its streamed wire form.
func (r GradedResult) Payload() ResultPayload {
	return ResultPayload{
		Question:       r.Question,
		Answer:         r.Answer,
		Result:         r.Result,
		AnswerScore:    boolToScore(r.AnswerCorrect),
		RetrievalScore: boolToScore(r.RetrievalRelevant),
		Latency:        r.LatencySeconds,
	}
}

func boolToScore(b bool) int {
	if b {
		return 1
	}
	return 0
}
