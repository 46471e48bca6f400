// Package reasoning wraps the remote reasoning capability behind a typed
// client. The capability receives instructions, structured input, and the
// tool operations available to it, and replies with either tool calls or a
// final structured response.
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	stderrors "loanflow/internal/common/errors"
	"loanflow/internal/common/logger"
)

// Message is one turn of the reasoning exchange.
type Message struct {
	Role       string     `json:"role"` // "user", "assistant", "tool"
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
}

// ToolDef describes one operation the capability may call autonomously.
type ToolDef struct {
	Service     string          `json:"service"`
	Operation   string          `json:"operation"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolCall is the capability's request to invoke one tool operation.
type ToolCall struct {
	ID        string                 `json:"id"`
	Service   string                 `json:"service"`
	Operation string                 `json:"operation"`
	Arguments map[string]interface{} `json:"arguments"`
}

// TokenUsage reports token spend of one completion.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Request is one completion request.
type Request struct {
	Instructions string    `json:"instructions"`
	Messages     []Message `json:"messages"`
	Tools        []ToolDef `json:"tools,omitempty"`
	MaxTokens    int       `json:"maxTokens,omitempty"`
	Temperature  float64   `json:"temperature"`
}

// Response is either a final reply (Content) or a batch of tool calls.
type Response struct {
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	Usage     TokenUsage `json:"usage"`
}

// Engine is the reasoning capability as seen by assessment workers.
type Engine interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Config holds the remote API settings.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

// Client is the HTTP implementation of Engine.
type Client struct {
	cfg    Config
	client *http.Client
	logger logger.Logger
}

func NewClient(cfg Config, log logger.Logger) *Client {
	return &Client{
		cfg: cfg,
		// No client-level timeout; the per-request context bounds each call.
		client: &http.Client{},
		logger: log.WithFields(map[string]interface{}{"component": "reasoning"}),
	}
}

func (c *Client) Complete(ctx context.Context, req *Request) (*Response, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, stderrors.NewReasoningFailedError(err)
	}

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, stderrors.NewReasoningTimeoutError()
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/ai/complete", bytes.NewReader(body))
		if err != nil {
			return nil, stderrors.NewReasoningFailedError(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		resp, lastErr = c.client.Do(httpReq)

		if ctx.Err() != nil ||
			errors.Is(lastErr, context.DeadlineExceeded) ||
			errors.Is(lastErr, context.Canceled) {
			if resp != nil {
				resp.Body.Close()
			}
			return nil, stderrors.NewReasoningTimeoutError()
		}

		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}
	}

	if lastErr != nil {
		return nil, stderrors.NewReasoningFailedError(lastErr)
	}
	if resp == nil {
		return nil, stderrors.NewReasoningFailedError(fmt.Errorf("no successful response after retries"))
	}
	defer resp.Body.Close()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, stderrors.NewReasoningFailedError(fmt.Errorf("decode response: %w", err))
	}

	c.logger.Debug("completion finished", map[string]interface{}{
		"toolCalls":        len(out.ToolCalls),
		"completionTokens": out.Usage.CompletionTokens,
	})

	return &out, nil
}
