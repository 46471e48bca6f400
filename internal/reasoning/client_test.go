package reasoning

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stderrors "loanflow/internal/common/errors"
	"loanflow/internal/common/logger"
)

func testRequest() *Request {
	return &Request{
		Instructions: "You are a credit analyst.",
		Messages:     []Message{{Role: "user", Content: `{"application":{}}`}},
		MaxTokens:    512,
	}
}

func TestClient_Complete_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ai/complete", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"content":"{\"confidence\":0.8}","usage":{"promptTokens":120,"completionTokens":40}}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key", Timeout: 2 * time.Second}, logger.NewNoOpLogger())
	resp, err := client.Complete(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, `{"confidence":0.8}`, resp.Content)
	assert.Equal(t, 120, resp.Usage.PromptTokens)
	assert.Equal(t, 40, resp.Usage.CompletionTokens)
}

func TestClient_Complete_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"content":"ok"}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Timeout: 5 * time.Second, MaxRetries: 3}, logger.NewNoOpLogger())
	resp, err := client.Complete(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Complete_ExhaustedRetriesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Timeout: 5 * time.Second, MaxRetries: 1}, logger.NewNoOpLogger())
	_, err := client.Complete(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, stderrors.IsCode(err, stderrors.ErrCodeReasoningFailed))
}

func TestClient_Complete_TimeoutIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Timeout: 30 * time.Millisecond}, logger.NewNoOpLogger())
	_, err := client.Complete(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, stderrors.IsCode(err, stderrors.ErrCodeReasoningTimeout))
}

func TestClient_Complete_CallerCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	client := NewClient(Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, logger.NewNoOpLogger())
	_, err := client.Complete(ctx, testRequest())
	require.Error(t, err)
	assert.True(t, stderrors.IsCode(err, stderrors.ErrCodeReasoningTimeout))
}

func TestClient_Complete_CancellationRacingResponse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Cancel while the response is being produced, so Do may still
		// return a live body that must be released.
		cancel()
		w.Write([]byte(`{"content":"ok"}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, logger.NewNoOpLogger())
	_, err := client.Complete(ctx, testRequest())
	require.Error(t, err)
	assert.True(t, stderrors.IsCode(err, stderrors.ErrCodeReasoningTimeout))
}

func TestClient_Complete_MalformedBodyFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, logger.NewNoOpLogger())
	_, err := client.Complete(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, stderrors.IsCode(err, stderrors.ErrCodeReasoningFailed))
}
