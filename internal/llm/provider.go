// Package llm provides the language-model capability used to answer,
// synthesize and grade evaluation questions.
//
// Providers stream completions over a channel. Most callers only need the
// final text and use CompleteText:
//
//	provider, model, err := llm.NewFromModelVersion("gpt-3.5-turbo", settings)
//	if err != nil {
//	    return err
//	}
//	text, err := llm.CompleteText(ctx, provider, &llm.Request{
//	    Model:    model,
//	    Messages: []llm.Message{{Role: "user", Content: prompt}},
//	})
package llm

import (
	"context"
	"errors"
	"strings"
)

// Provider is a streaming chat-completion backend.
type Provider interface {
	// Complete starts a completion. Errors that occur before streaming are
	// returned directly; later errors arrive as a chunk with Error set.
	Complete(ctx context.Context, req *Request) (<-chan *Chunk, error)

	// Name returns the provider identifier used for logging and metrics.
	Name() string
}

// Request is a single chat completion request.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Message is one turn of the conversation.
type Message struct {
	Role    string
	Content string
}

// Chunk is one streamed piece of a completion.
type Chunk struct {
	Text         string
	Done         bool
	Error        error
	InputTokens  int
	OutputTokens int
}

// ErrEmptyResponse is returned when a completion produced no text.
var ErrEmptyResponse = errors.New("llm returned empty response")

// UserPrompt builds a request with a single user message.
func UserPrompt(model, system, prompt string) *Request {
	return &Request{
		Model:    model,
		System:   system,
		Messages: []Message{{Role: "user", Content: prompt}},
	}
}

// CompleteText runs a completion and collects the streamed text.
func CompleteText(ctx context.Context, provider Provider, req *Request) (string, error) {
	if provider == nil {
		return "", errors.New("llm provider is required")
	}
	chunks, err := provider.Complete(ctx, req)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for chunk := range chunks {
		if chunk == nil {
			continue
		}
		if chunk.Error != nil {
			return "", chunk.Error
		}
		sb.WriteString(chunk.Text)
		if chunk.Done {
			break
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// send delivers a chunk unless the context ends first.
func send(ctx context.Context, chunks chan<- *Chunk, chunk *Chunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
