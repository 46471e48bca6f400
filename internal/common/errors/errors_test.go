package errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsCode(t *testing.T) {
	err := NewToolTimeoutError("credit-bureau", "credit-report")

	assert.True(t, IsCode(err, ErrCodeToolTimeout))
	assert.False(t, IsCode(err, ErrCodeToolConnectionFailed))
	assert.False(t, IsCode(errors.New("plain"), ErrCodeToolTimeout))

	wrapped := fmt.Errorf("invoking: %w", err)
	assert.True(t, IsCode(wrapped, ErrCodeToolTimeout))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewToolConnectionFailedError("credit-bureau", errors.New("refused"))))
	assert.True(t, IsRetryable(NewReasoningFailedError(errors.New("status 503"))))
	assert.False(t, IsRetryable(NewToolTimeoutError("credit-bureau", "credit-report")))
	assert.False(t, IsRetryable(NewSchemaViolationError("credit", "confidence: required")))
	assert.False(t, IsRetryable(NewStageFailedError("credit", errors.New("boom"))))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestToolUnavailablePreservesCause(t *testing.T) {
	cause := NewToolConnectionFailedError("credit-bureau", errors.New("connection refused"))
	err := NewToolUnavailableError("credit-bureau", cause)

	assert.True(t, IsToolUnavailable(err))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Details, "unreachable")
}

func TestStageFailedErrorCarriesStageAndCause(t *testing.T) {
	cause := NewReasoningTimeoutError()
	err := NewStageFailedError("credit", cause)

	require.Equal(t, ErrCodeStageFailed, err.Code)
	assert.Contains(t, err.Message, "credit")
	assert.True(t, errors.Is(err, cause))
}

func TestSlaExceededErrorReportsElapsed(t *testing.T) {
	err := NewSlaExceededError(184 * time.Millisecond)

	require.Equal(t, ErrCodeSlaExceeded, err.Code)
	assert.False(t, err.Retryable)
	assert.Contains(t, err.Details, "184ms")
}
