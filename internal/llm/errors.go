package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FailoverReason categorizes why a provider request failed.
type FailoverReason string

const (
	FailoverRateLimit      FailoverReason = "rate_limit"
	FailoverAuth           FailoverReason = "auth"
	FailoverBilling        FailoverReason = "billing"
	FailoverTimeout        FailoverReason = "timeout"
	FailoverServerError    FailoverReason = "server_error"
	FailoverInvalidRequest FailoverReason = "invalid_request"
	FailoverModelNotFound  FailoverReason = "model_not_found"
	FailoverUnknown        FailoverReason = "unknown"
)

// IsRetryable returns true if the reason suggests retrying may succeed.
func (r FailoverReason) IsRetryable() bool {
	switch r {
	case FailoverRateLimit, FailoverTimeout, FailoverServerError:
		return true
	default:
		return false
	}
}

// ProviderError is a structured error from a model provider.
type ProviderError struct {
	Reason    FailoverReason
	Provider  string
	Model     string
	Status    int
	Code      string
	Message   string
	RequestID string
	Cause     error
}

func (e *ProviderError) Error() string {
	parts := []string{fmt.Sprintf("[%s]", e.Reason)}
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, "code="+e.Code)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError classifies cause and wraps it.
func NewProviderError(provider, model string, cause error) *ProviderError {
	err := &ProviderError{Provider: provider, Model: model, Cause: cause, Reason: FailoverUnknown}
	if cause != nil {
		err.Message = cause.Error()
		err.Reason = ClassifyError(cause)
	}
	return err
}

// WithStatus sets the HTTP status and reclassifies the error.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	if reason := classifyStatusCode(status); reason != FailoverUnknown {
		e.Reason = reason
	}
	return e
}

// WithCode sets the provider error code and reclassifies when the code is known.
func (e *ProviderError) WithCode(code string) *ProviderError {
	e.Code = code
	if reason := classifyErrorCode(code); reason != FailoverUnknown {
		e.Reason = reason
	}
	return e
}

// ClassifyError inspects an unstructured error.
func ClassifyError(err error) FailoverReason {
	if err == nil {
		return FailoverUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailoverTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "timeout", "deadline exceeded", "etimedout"):
		return FailoverTimeout
	case containsAny(msg, "rate limit", "rate_limit", "too many requests", "429"):
		return FailoverRateLimit
	case containsAny(msg, "unauthorized", "invalid api key", "invalid_api_key", "authentication", "401", "403"):
		return FailoverAuth
	case containsAny(msg, "billing", "insufficient_quota", "402"):
		return FailoverBilling
	case containsAny(msg, "model not found", "model_not_found", "does not exist"):
		return FailoverModelNotFound
	case containsAny(msg, "internal server", "server error", "overloaded", "500", "502", "503", "504", "529"):
		return FailoverServerError
	default:
		return FailoverUnknown
	}
}

func containsAny(s string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

func classifyStatusCode(status int) FailoverReason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return FailoverAuth
	case status == http.StatusPaymentRequired:
		return FailoverBilling
	case status == http.StatusTooManyRequests:
		return FailoverRateLimit
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return FailoverInvalidRequest
	case status == http.StatusNotFound:
		return FailoverModelNotFound
	case status == http.StatusRequestTimeout:
		return FailoverTimeout
	case status >= 500:
		return FailoverServerError
	default:
		return FailoverUnknown
	}
}

func classifyErrorCode(code string) FailoverReason {
	switch strings.ToLower(code) {
	case "rate_limit_error", "rate_limit_exceeded":
		return FailoverRateLimit
	case "authentication_error", "invalid_api_key", "permission_error":
		return FailoverAuth
	case "insufficient_quota", "billing_error":
		return FailoverBilling
	case "model_not_found", "not_found_error":
		return FailoverModelNotFound
	case "server_error", "api_error", "overloaded_error":
		return FailoverServerError
	case "invalid_request_error":
		return FailoverInvalidRequest
	default:
		return FailoverUnknown
	}
}

// IsRetryable reports whether err is a transient provider failure.
// Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Reason.IsRetryable()
	}
	return ClassifyError(err).IsRetryable()
}
