package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want FailoverReason
	}{
		{errors.New("request timeout"), FailoverTimeout},
		{context.DeadlineExceeded, FailoverTimeout},
		{errors.New("429 Too Many Requests"), FailoverRateLimit},
		{errors.New("invalid api key"), FailoverAuth},
		{errors.New("insufficient_quota"), FailoverBilling},
		{errors.New("model_not_found"), FailoverModelNotFound},
		{errors.New("503 service unavailable"), FailoverServerError},
		{errors.New("something odd"), FailoverUnknown},
		{nil, FailoverUnknown},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProviderErrorFormatting(t *testing.T) {
	err := NewProviderError("openai", "gpt-4", errors.New("boom")).WithStatus(500).WithCode("server_error")
	msg := err.Error()
	for _, want := range []string{"[server_error]", "openai", "model=gpt-4", "status=500", "code=server_error", "boom"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
	if !errors.Is(err, err.Cause) {
		t.Error("expected Unwrap to expose cause")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", context.Canceled, false},
		{"wrapped cancelled", fmt.Errorf("call: %w", context.Canceled), false},
		{"rate limit provider error", NewProviderError("openai", "", errors.New("x")).WithStatus(429), true},
		{"bad request provider error", NewProviderError("openai", "", errors.New("x")).WithStatus(400), false},
		{"raw 502", errors.New("502 bad gateway"), true},
		{"wrapped provider error", fmt.Errorf("outer: %w", NewProviderError("anthropic", "", errors.New("x")).WithCode("overloaded_error")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
