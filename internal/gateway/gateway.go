// Package gateway manages connection lifecycle and invocation of external
// tool services (verification, document processing, financial calculation).
// Each stage invocation opens one session; the session's connection is
// acquired lazily on first use and released on every exit path.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"loanflow/internal/audit"
	"loanflow/internal/common/config"
	stderrors "loanflow/internal/common/errors"
	"loanflow/internal/common/logger"
	"loanflow/internal/common/metrics"
	"loanflow/internal/models"
)

// Gateway fronts one external tool service.
type Gateway struct {
	service string
	cfg     config.ToolServiceConfig
	pool    *Pool
	audit   *audit.Recorder
	logger  logger.Logger
}

func New(service string, cfg config.ToolServiceConfig, pool *Pool, rec *audit.Recorder, log logger.Logger) *Gateway {
	pool.Configure(service, cfg.MaxIdle)
	return &Gateway{
		service: service,
		cfg:     cfg,
		pool:    pool,
		audit:   rec,
		logger:  log.WithFields(map[string]interface{}{"toolService": service}),
	}
}

func (g *Gateway) Service() string {
	return g.service
}

// Open starts a session scoped to one stage invocation. The caller must
// Close it.
func (g *Gateway) Open(appID string, stage models.Stage) *Session {
	return &Session{gw: g, appID: appID, stage: stage}
}

// Session is the per-stage invocation scope of a gateway.
type Session struct {
	gw     *Gateway
	conn   *Conn
	appID  string
	stage  models.Stage
	closed bool
}

// Invoke calls one named operation. Failure taxonomy:
//   - connection failure: one retry after a fixed backoff, then ToolUnavailable
//   - timeout: no retry, ToolUnavailable
//   - service-side error: surfaced as-is
//   - unparseable response: ToolUnavailable, logged with shape diagnostics only
func (s *Session) Invoke(ctx context.Context, operation string, params map[string]interface{}) (map[string]interface{}, error) {
	if s.closed {
		return nil, stderrors.NewToolUnavailableError(s.gw.service, fmt.Errorf("session closed"))
	}
	if s.conn == nil {
		s.conn = s.gw.pool.Acquire(s.gw.service, s.gw.cfg.Endpoint)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.gw.cfg.InvokeTimeout())
	defer cancel()

	result, err := s.attempt(callCtx, operation, params, 1)
	if err != nil && stderrors.IsCode(err, stderrors.ErrCodeToolConnectionFailed) {
		select {
		case <-time.After(s.gw.cfg.Backoff()):
		case <-callCtx.Done():
			s.record(ctx, operation, "TIMEOUT", 1)
			return nil, stderrors.NewToolUnavailableError(s.gw.service, stderrors.NewToolTimeoutError(s.gw.service, operation))
		}
		result, err = s.attempt(callCtx, operation, params, 2)
	}
	if err != nil {
		return nil, s.finalize(ctx, operation, err)
	}
	return result, nil
}

func (s *Session) attempt(ctx context.Context, operation string, params map[string]interface{}, attempt int) (map[string]interface{}, error) {
	result, err := s.conn.do(ctx, operation, params)
	switch {
	case err == nil:
		s.record(ctx, operation, "OK", attempt)
	case stderrors.IsCode(err, stderrors.ErrCodeToolConnectionFailed):
		s.record(ctx, operation, "CONNECTION_FAILED", attempt)
	case stderrors.IsCode(err, stderrors.ErrCodeToolTimeout):
		s.record(ctx, operation, "TIMEOUT", attempt)
	case stderrors.IsCode(err, stderrors.ErrCodeToolInvocationError):
		s.record(ctx, operation, "INVOCATION_ERROR", attempt)
	case stderrors.IsCode(err, stderrors.ErrCodeToolMalformedResponse):
		s.record(ctx, operation, "MALFORMED_RESPONSE", attempt)
	default:
		s.record(ctx, operation, "ERROR", attempt)
	}
	return result, err
}

// finalize maps terminal failures to the caller-visible taxonomy.
func (s *Session) finalize(ctx context.Context, operation string, err error) error {
	switch {
	case stderrors.IsCode(err, stderrors.ErrCodeToolInvocationError):
		// The service ran and rejected the call; surfaced as-is.
		return err
	case stderrors.IsCode(err, stderrors.ErrCodeToolMalformedResponse):
		var stdErr *stderrors.StandardError
		errors.As(err, &stdErr)
		s.gw.logger.Error("unparseable tool response", map[string]interface{}{
			"operation": operation,
			"shape":     stdErr.Details,
		})
		return stderrors.NewToolUnavailableError(s.gw.service, err)
	default:
		return stderrors.NewToolUnavailableError(s.gw.service, err)
	}
}

func (s *Session) record(ctx context.Context, operation, result string, attempt int) {
	metrics.ToolInvocations.WithLabelValues(s.gw.service, operation, result).Inc()
	if s.gw.audit != nil {
		s.gw.audit.ToolAttempt(ctx, s.appID, s.stage, s.gw.service, operation, result, attempt)
	}
}

// Close releases the session's connection back to the shared pool. Safe to
// call multiple times.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.conn != nil {
		s.gw.pool.Release(s.conn)
		s.conn = nil
	}
}

// invocationEnvelope is the wire format of tool service replies.
type invocationEnvelope struct {
	Result map[string]interface{} `json:"result"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Conn) do(ctx context.Context, operation string, params map[string]interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, stderrors.NewToolInvocationError(c.service, operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/ops/"+operation, bytes.NewReader(body))
	if err != nil {
		return nil, stderrors.NewToolInvocationError(c.service, operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, stderrors.NewToolTimeoutError(c.service, operation)
		}
		return nil, stderrors.NewToolConnectionFailedError(c.service, err)
	}
	defer resp.Body.Close()

	var envelope invocationEnvelope
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(&envelope); err != nil {
		shape := fmt.Sprintf("status=%d contentType=%q", resp.StatusCode, resp.Header.Get("Content-Type"))
		return nil, stderrors.NewToolMalformedResponseError(c.service, operation, shape)
	}

	if envelope.Error != nil {
		return nil, stderrors.NewToolInvocationError(c.service, operation,
			fmt.Errorf("%s: %s", envelope.Error.Code, envelope.Error.Message))
	}
	if envelope.Result == nil {
		shape := fmt.Sprintf("status=%d missing result field", resp.StatusCode)
		return nil, stderrors.NewToolMalformedResponseError(c.service, operation, shape)
	}

	return envelope.Result, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout()
	}
	return false
}
