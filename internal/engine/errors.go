// Package engine error classification. Collaborator failures are
// recovered inside handlers; only caller misuse and cancellation ever
// surface to the run's caller.

package engine

import (
	"errors"
	"fmt"
	"strings"
)

// RetryClass indicates whether an error should be retried.
type RetryClass string

const (
	RetryClassRetryable    RetryClass = "retryable"
	RetryClassMaybe        RetryClass = "maybe"
	RetryClassNonRetryable RetryClass = "non_retryable"
)

// ValidationError rejects caller misuse (empty question, non-positive
// step cap) before the loop starts.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation checks if an error is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// LLMError wraps a provider SDK error together with whatever HTTP
// metadata could be recovered from it.
type LLMError struct {
	Err        error
	HTTPStatus int
	RetryAfter string
}

func (e *LLMError) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("llm call failed (status %d): %v", e.HTTPStatus, e.Err)
	}
	return fmt.Sprintf("llm call failed: %v", e.Err)
}

func (e *LLMError) Unwrap() error { return e.Err }

// WrapLLMError attaches HTTP metadata to a provider error.
func WrapLLMError(err error, httpStatus int, retryAfter string) error {
	if err == nil {
		return nil
	}
	return &LLMError{Err: err, HTTPStatus: httpStatus, RetryAfter: retryAfter}
}

// ClassifyCollaboratorError classifies an error from an external call
// (model completion, search, fetch, code execution). A wrapped LLMError
// is classified by status; everything else by inspecting its message.
// Unknown errors are non-retryable: handlers already degrade gracefully,
// so retrying blind gains nothing.
func ClassifyCollaboratorError(err error) RetryClass {
	if err == nil {
		return RetryClassNonRetryable
	}

	var llmErr *LLMError
	if errors.As(err, &llmErr) && llmErr.HTTPStatus > 0 {
		switch {
		case llmErr.HTTPStatus == 429, llmErr.HTTPStatus >= 500:
			return RetryClassRetryable
		case llmErr.HTTPStatus == 408:
			return RetryClassMaybe
		default:
			return RetryClassNonRetryable
		}
	}

	errStr := strings.ToLower(err.Error())

	// Rate limits and server-side failures are worth retrying.
	if strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") {
		return RetryClassRetryable
	}
	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "bad gateway") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "gateway timeout") {
		return RetryClassRetryable
	}
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "temporary failure") {
		return RetryClassRetryable
	}

	// A blown deadline may clear on a second try, but not on many.
	if strings.Contains(errStr, "context deadline exceeded") ||
		strings.Contains(errStr, "deadline exceeded") {
		return RetryClassMaybe
	}

	// Auth, quota, and malformed-request failures never clear on retry.
	if strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "forbidden") ||
		strings.Contains(errStr, "invalid api key") {
		return RetryClassNonRetryable
	}
	if strings.Contains(errStr, "400") ||
		strings.Contains(errStr, "bad request") ||
		strings.Contains(errStr, "invalid request") ||
		strings.Contains(errStr, "malformed") {
		return RetryClassNonRetryable
	}
	if strings.Contains(errStr, "402") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "billing") {
		return RetryClassNonRetryable
	}

	return RetryClassNonRetryable
}

// RetryExhaustedError indicates that all retry attempts have been spent.
type RetryExhaustedError struct {
	Err      error
	Attempts int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// IsRetryExhausted checks if an error is a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	var re *RetryExhaustedError
	return errors.As(err, &re)
}

// StepError wraps errors with loop context for diagnostics.
type StepError struct {
	Err       error
	Step      int
	Action    ActionType
	Operation string // "decision", "handler", "persist"
}

func (e *StepError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("[step=%d op=%s action=%s] %v", e.Step, e.Operation, e.Action, e.Err)
	}
	return fmt.Sprintf("[step=%d op=%s] %v", e.Step, e.Operation, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
