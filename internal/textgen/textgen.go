// Package textgen abstracts the external text-generation service behind a
// single Provider interface with retryable-error classification, so the
// scoring layers never know which backend is configured.
package textgen

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"
)

// Provider is one text-generation backend. Implementations must bound the
// call with the supplied context.
type Provider interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	Name() string
}

// retryableError marks a transient provider failure worth retrying.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// markRetryable wraps err so IsRetryable reports true.
func markRetryable(err error) error {
	return &retryableError{err: err}
}

// IsRetryable reports whether a provider error is transient: rate limits
// and 5xx-class statuses. Everything else is fatal for the batch.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re *retryableError
	if errors.As(err, &re) {
		return true
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.Code)
	}
	return retryableMessage(err.Error())
}

func retryableStatus(code int) bool {
	return code == 429 || (code >= 500 && code < 600)
}

// retryableMessage sniffs error text from backends that don't surface a
// structured status.
func retryableMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range []string{
		"429", "rate limit", "resource exhausted", "resource_exhausted",
		"quota", "overloaded", "unavailable", "status 500", "status 502",
		"status 503", "deadline exceeded", "timeout",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
