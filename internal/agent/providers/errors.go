// Package providers implements LLM backends for the agent loop: the
// Anthropic Messages API and OpenAI-compatible chat completion APIs.
package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FailReason categorizes why a provider request failed, driving the
// loop's retry decision.
type FailReason string

const (
	// FailBilling indicates payment or quota issues (HTTP 402).
	FailBilling FailReason = "billing"

	// FailRateLimit indicates rate limiting (HTTP 429).
	FailRateLimit FailReason = "rate_limit"

	// FailAuth indicates authentication failure (HTTP 401, 403).
	FailAuth FailReason = "auth"

	// FailTimeout indicates a request timeout.
	FailTimeout FailReason = "timeout"

	// FailServerError indicates server-side issues (HTTP 5xx).
	FailServerError FailReason = "server_error"

	// FailInvalidRequest indicates client-side issues (HTTP 400).
	FailInvalidRequest FailReason = "invalid_request"

	// FailContextLength indicates the request exceeded the model's
	// context window.
	FailContextLength FailReason = "context_length"

	// FailModelUnavailable indicates the model is not available.
	FailModelUnavailable FailReason = "model_unavailable"

	// FailContentFilter indicates content was blocked by safety filters.
	FailContentFilter FailReason = "content_filter"

	// FailUnknown indicates an unclassified error.
	FailUnknown FailReason = "unknown"
)

// IsRetryable returns true if retrying the same request may succeed.
func (r FailReason) IsRetryable() bool {
	switch r {
	case FailRateLimit, FailTimeout, FailServerError:
		return true
	default:
		return false
	}
}

// Error is a structured error from an LLM provider, carrying the
// context needed for retry decisions and debugging.
type Error struct {
	// Reason categorizes the error for retry logic.
	Reason FailReason

	// Provider is the backend name ("anthropic", "openai").
	Provider string

	// Model is the model that was requested.
	Model string

	// Status is the HTTP status code, if applicable.
	Status int

	// Code is the provider-specific error code.
	Code string

	// Message is the human-readable error message.
	Message string

	// RequestID is the provider's request ID for debugging.
	RequestID string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Reason))
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the same request is worth another attempt.
// The agent loop discovers this method through errors.As.
func (e *Error) Retryable() bool { return e.Reason.IsRetryable() }

// NewError creates an Error classified from its cause.
func NewError(provider, model string, cause error) *Error {
	err := &Error{
		Provider: provider,
		Model:    model,
		Cause:    cause,
		Reason:   FailUnknown,
	}
	if cause != nil {
		err.Message = cause.Error()
		err.Reason = Classify(cause)
	}
	return err
}

// WithStatus adds the HTTP status and reclassifies from it.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	if reason := classifyStatus(status); reason != FailUnknown {
		e.Reason = reason
	}
	return e
}

// WithCode adds a provider-specific error code and reclassifies from it.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	if reason := classifyCode(code); reason != FailUnknown {
		e.Reason = reason
	}
	return e
}

// WithRequestID attaches the provider's request ID.
func (e *Error) WithRequestID(id string) *Error {
	e.RequestID = id
	return e
}

// WithMessage sets the error message.
func (e *Error) WithMessage(msg string) *Error {
	if msg != "" {
		e.Message = msg
	}
	return e
}

// Classify inspects a raw error and returns the matching FailReason.
func Classify(err error) FailReason {
	if err == nil {
		return FailUnknown
	}
	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "context_length") ||
		strings.Contains(errStr, "context length") ||
		strings.Contains(errStr, "maximum context") ||
		strings.Contains(errStr, "prompt is too long") {
		return FailContextLength
	}

	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "etimedout") {
		return FailTimeout
	}

	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "rate_limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") {
		return FailRateLimit
	}

	if strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "invalid api key") ||
		strings.Contains(errStr, "invalid_api_key") ||
		strings.Contains(errStr, "authentication") ||
		strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") {
		return FailAuth
	}

	if strings.Contains(errStr, "billing") ||
		strings.Contains(errStr, "payment") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "402") {
		return FailBilling
	}

	if strings.Contains(errStr, "content_filter") ||
		strings.Contains(errStr, "content policy") ||
		strings.Contains(errStr, "safety") {
		return FailContentFilter
	}

	if strings.Contains(errStr, "model not found") ||
		strings.Contains(errStr, "model_not_found") ||
		strings.Contains(errStr, "does not exist") {
		return FailModelUnavailable
	}

	if strings.Contains(errStr, "internal server") ||
		strings.Contains(errStr, "server error") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") {
		return FailServerError
	}

	return FailUnknown
}

func classifyStatus(status int) FailReason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return FailAuth
	case status == http.StatusPaymentRequired:
		return FailBilling
	case status == http.StatusTooManyRequests:
		return FailRateLimit
	case status == http.StatusBadRequest:
		return FailInvalidRequest
	case status == http.StatusNotFound:
		return FailModelUnavailable
	case status >= 500:
		return FailServerError
	default:
		return FailUnknown
	}
}

func classifyCode(code string) FailReason {
	switch strings.ToLower(code) {
	case "rate_limit_error", "rate_limit_exceeded":
		return FailRateLimit
	case "authentication_error", "invalid_api_key", "permission_error":
		return FailAuth
	case "billing_error", "insufficient_quota":
		return FailBilling
	case "context_length_exceeded":
		return FailContextLength
	case "model_not_found", "not_found_error":
		return FailModelUnavailable
	case "content_policy_violation", "content_filter":
		return FailContentFilter
	case "overloaded_error", "api_error", "server_error", "internal_error":
		return FailServerError
	case "invalid_request_error":
		return FailInvalidRequest
	default:
		return FailUnknown
	}
}

// AsError extracts a provider Error from an error chain.
func AsError(err error) (*Error, bool) {
	var provErr *Error
	if errors.As(err, &provErr) {
		return provErr, true
	}
	return nil, false
}

// IsRetryable checks if an error should be retried.
func IsRetryable(err error) bool {
	if provErr, ok := AsError(err); ok {
		return provErr.Reason.IsRetryable()
	}
	return Classify(err).IsRetryable()
}

// IsContextLength checks if an error is a context-window overflow.
func IsContextLength(err error) bool {
	if provErr, ok := AsError(err); ok {
		return provErr.Reason == FailContextLength
	}
	return Classify(err) == FailContextLength
}
