// Package errors provides standardized error handling for the loan pipeline.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Tool gateway failures.
	ErrCodeToolConnectionFailed  ErrorCode = "TOOL_CONNECTION_FAILED"
	ErrCodeToolTimeout           ErrorCode = "TOOL_TIMEOUT"
	ErrCodeToolInvocationError   ErrorCode = "TOOL_INVOCATION_ERROR"
	ErrCodeToolMalformedResponse ErrorCode = "TOOL_MALFORMED_RESPONSE"
	ErrCodeToolUnavailable       ErrorCode = "TOOL_UNAVAILABLE"

	// Assessment failures.
	ErrCodeSchemaViolation  ErrorCode = "SCHEMA_VIOLATION"
	ErrCodeReasoningTimeout ErrorCode = "REASONING_TIMEOUT"
	ErrCodeReasoningFailed  ErrorCode = "REASONING_FAILED"

	// Workflow failures.
	ErrCodeStageFailed ErrorCode = "STAGE_FAILED"
	ErrCodeSlaExceeded ErrorCode = "SLA_EXCEEDED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// NewToolConnectionFailedError creates a retryable tool connection error.
func NewToolConnectionFailedError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeToolConnectionFailed,
		Message:   fmt.Sprintf("Tool service '%s' unreachable", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewToolTimeoutError creates a non-retryable tool timeout error.
func NewToolTimeoutError(service, operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeToolTimeout,
		Message:   fmt.Sprintf("Tool service '%s' timed out", service),
		Details:   fmt.Sprintf("operation: %s", operation),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewToolInvocationError creates a non-retryable error for a tool call the
// service executed but rejected. Surfaced to the caller as-is.
func NewToolInvocationError(service, operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeToolInvocationError,
		Message:   fmt.Sprintf("Tool service '%s' returned an error", service),
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewToolMalformedResponseError creates a non-retryable parse error. Details
// carry the response shape only, never raw content.
func NewToolMalformedResponseError(service, operation, shape string) *StandardError {
	return &StandardError{
		Code:      ErrCodeToolMalformedResponse,
		Message:   fmt.Sprintf("Tool service '%s' returned an unparseable response", service),
		Details:   fmt.Sprintf("operation: %s, shape: %s", operation, shape),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewToolUnavailableError wraps a lower-level tool failure into the terminal
// unavailable state a stage degrades on.
func NewToolUnavailableError(service string, cause error) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &StandardError{
		Code:      ErrCodeToolUnavailable,
		Message:   fmt.Sprintf("Tool service '%s' unavailable", service),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewSchemaViolationError creates a schema validation error for a reasoning reply.
func NewSchemaViolationError(stage, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSchemaViolation,
		Message:   fmt.Sprintf("Assessment output for stage '%s' did not conform to schema", stage),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewReasoningTimeoutError creates a retryable reasoning timeout error.
func NewReasoningTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeReasoningTimeout,
		Message:   "Reasoning call exceeded timeout threshold",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewReasoningFailedError creates a retryable reasoning API error.
func NewReasoningFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeReasoningFailed,
		Message:   "Reasoning API error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewStageFailedError creates a non-retryable stage failure.
func NewStageFailedError(stage string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStageFailed,
		Message:   fmt.Sprintf("Stage '%s' failed", stage),
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewSlaExceededError creates the workflow-level deadline breach error.
func NewSlaExceededError(elapsed time.Duration) *StandardError {
	return &StandardError{
		Code:      ErrCodeSlaExceeded,
		Message:   "SLA exceeded",
		Details:   fmt.Sprintf("elapsed: %s", elapsed),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// IsCode reports whether err carries the given standardized code.
func IsCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code == code
	}
	return false
}

// IsToolUnavailable reports whether err is the degraded-mode trigger.
func IsToolUnavailable(err error) bool {
	return IsCode(err, ErrCodeToolUnavailable)
}

// IsRetryable reports whether err is marked retryable.
func IsRetryable(err error) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Retryable
	}
	return false
}
