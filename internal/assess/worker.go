// Package assess wraps one stage's reasoning capability: fixed persona,
// assigned tool gateways, required output schema, and a bounded
// retry/degradation policy.
package assess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	stderrors "loanflow/internal/common/errors"
	"loanflow/internal/common/logger"
	"loanflow/internal/common/validation"
	"loanflow/internal/gateway"
	"loanflow/internal/models"
	"loanflow/internal/reasoning"
)

// maxToolRounds bounds how many tool-call batches one assessment may issue.
const maxToolRounds = 4

// Worker performs one stage's assessment.
type Worker struct {
	persona  Persona
	engine   reasoning.Engine
	gateways []*gateway.Gateway
	logger   logger.Logger
}

func NewWorker(persona Persona, engine reasoning.Engine, gateways []*gateway.Gateway, log logger.Logger) *Worker {
	return &Worker{
		persona:  persona,
		engine:   engine,
		gateways: gateways,
		logger:   log.WithFields(map[string]interface{}{"stage": string(persona.Stage)}),
	}
}

func (w *Worker) Stage() models.Stage {
	return w.persona.Stage
}

// priorSummary is the compact prior-outcome view embedded in stage input.
// Full payloads are never forwarded, which bounds context growth across the
// pipeline.
type priorSummary struct {
	Stage          string  `json:"stage"`
	Status         string  `json:"status"`
	Confidence     float64 `json:"confidence"`
	RoutingHint    string  `json:"routingHint,omitempty"`
	Recommendation string  `json:"recommendation,omitempty"`
	Summary        string  `json:"summary,omitempty"`
}

func summarizePriors(priors []models.StageOutcome) []priorSummary {
	out := make([]priorSummary, 0, len(priors))
	for _, p := range priors {
		out = append(out, priorSummary{
			Stage:          string(p.Stage),
			Status:         string(p.Status),
			Confidence:     p.Assessment.Confidence,
			RoutingHint:    p.Assessment.RoutingHint,
			Recommendation: p.Assessment.Recommendation,
			Summary:        p.Assessment.Summary,
		})
	}
	return out
}

// Assess runs the stage's assessment. Tool failures degrade the outcome
// instead of propagating; only reasoning-level errors are returned, for the
// stage runner to retry or normalize.
func (w *Worker) Assess(ctx context.Context, app *models.Application, priors []models.StageOutcome) (models.StageOutcome, error) {
	started := time.Now()

	// One session per assigned gateway for the duration of this invocation,
	// released on every exit path.
	sessions := make(map[string]*gateway.Session, len(w.gateways))
	for _, gw := range w.gateways {
		session := gw.Open(app.ApplicationID, w.persona.Stage)
		defer session.Close()
		sessions[gw.Service()] = session
	}

	input, err := json.Marshal(map[string]interface{}{
		"application":      app,
		"priorAssessments": summarizePriors(priors),
	})
	if err != nil {
		return models.StageOutcome{}, fmt.Errorf("encode stage input: %w", err)
	}

	run := &assessmentRun{
		worker:   w,
		sessions: sessions,
		used:     make(map[string]bool),
		skipped:  make(map[string]bool),
		messages: []reasoning.Message{{Role: "user", Content: string(input)}},
	}

	content, err := run.converse(ctx)
	if err != nil {
		return models.StageOutcome{}, err
	}

	assessment, schemaErr := w.parseAssessment(content)
	if schemaErr != nil {
		w.logger.Warn("assessment did not conform to schema, requesting conformance", map[string]interface{}{
			"applicationId": app.ApplicationID,
			"error":         schemaErr.Error(),
		})
		assessment, err = run.retryConform(ctx, content)
		if err != nil {
			return models.StageOutcome{}, err
		}
		if assessment == nil {
			// Second schema failure: deterministic minimal outcome instead of
			// propagating an error.
			return w.fallbackOutcome(started, run), nil
		}
	}

	status := models.StatusComplete
	if run.allToolsUnavailable() {
		status = models.StatusDegraded
	}

	return models.StageOutcome{
		Stage:        w.persona.Stage,
		Status:       status,
		Assessment:   *assessment,
		Usage:        run.usage,
		ToolsUsed:    keys(run.used),
		ToolsSkipped: keys(run.skipped),
		StartedAt:    started,
		Elapsed:      time.Since(started),
	}, nil
}

// assessmentRun tracks one invocation's conversation and tool accounting.
type assessmentRun struct {
	worker   *Worker
	sessions map[string]*gateway.Session
	messages []reasoning.Message
	usage    models.Usage
	used     map[string]bool
	skipped  map[string]bool
}

// converse drives the autonomous tool loop until the capability produces a
// final reply or the round budget runs out.
func (r *assessmentRun) converse(ctx context.Context) (string, error) {
	for round := 0; round <= maxToolRounds; round++ {
		resp, err := r.complete(ctx)
		if err != nil {
			return "", err
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		r.messages = append(r.messages, reasoning.Message{Role: "assistant", ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			r.messages = append(r.messages, r.invokeTool(ctx, call))
		}
	}
	// Round budget exhausted without a final reply; ask for one without tools.
	r.messages = append(r.messages, reasoning.Message{
		Role:    "user",
		Content: "Tool budget exhausted. Produce your final assessment now from the information gathered.",
	})
	resp, err := r.complete(ctx)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (r *assessmentRun) complete(ctx context.Context) (*reasoning.Response, error) {
	callStarted := time.Now()
	resp, err := r.worker.engine.Complete(ctx, &reasoning.Request{
		Instructions: r.worker.persona.Instructions,
		Messages:     r.messages,
		Tools:        r.worker.persona.Tools,
		MaxTokens:    r.worker.persona.MaxTokens,
		Temperature:  r.worker.persona.Temperature,
	})
	if err != nil {
		return nil, err
	}
	r.usage.Add(models.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		Latency:          time.Since(callStarted),
	})
	return resp, nil
}

// invokeTool executes one tool call and converts the result (or failure)
// into a tool message. Unavailable tools never abort the assessment.
func (r *assessmentRun) invokeTool(ctx context.Context, call reasoning.ToolCall) reasoning.Message {
	session, ok := r.sessions[call.Service]
	if !ok {
		return toolMessage(call.ID, map[string]interface{}{
			"error": fmt.Sprintf("tool service %q is not assigned to this stage", call.Service),
		})
	}

	result, err := session.Invoke(ctx, call.Operation, call.Arguments)
	if err != nil {
		// A service that ran the call and rejected it is still available;
		// the capability sees the service's own error and may correct the
		// call or proceed without it.
		if stderrors.IsCode(err, stderrors.ErrCodeToolInvocationError) {
			var stdErr *stderrors.StandardError
			errors.As(err, &stdErr)
			return toolMessage(call.ID, map[string]interface{}{
				"error": stdErr.Details,
			})
		}
		r.skipped[call.Service] = true
		return toolMessage(call.ID, map[string]interface{}{
			"error": fmt.Sprintf("tool unavailable: %s/%s", call.Service, call.Operation),
		})
	}

	r.used[call.Service] = true
	return toolMessage(call.ID, result)
}

// retryConform re-asks once with an explicit schema-conformance instruction.
// Returns (nil, nil) when the reply is invalid a second time.
func (r *assessmentRun) retryConform(ctx context.Context, previous string) (*models.Assessment, error) {
	r.messages = append(r.messages,
		reasoning.Message{Role: "assistant", Content: previous},
		reasoning.Message{
			Role: "user",
			Content: "Your previous reply did not conform to the required JSON schema. " +
				"Reply again with only a JSON object that conforms to this schema:\n" +
				r.worker.persona.OutputSchema,
		},
	)
	resp, err := r.complete(ctx)
	if err != nil {
		return nil, err
	}
	assessment, schemaErr := r.worker.parseAssessment(resp.Content)
	if schemaErr != nil {
		return nil, nil
	}
	return assessment, nil
}

// fallbackOutcome is the deterministic minimal result after repeated schema
// violations: degraded, escalate to manual review.
func (w *Worker) fallbackOutcome(started time.Time, run *assessmentRun) models.StageOutcome {
	return models.StageOutcome{
		Stage:  w.persona.Stage,
		Status: models.StatusDegraded,
		Assessment: models.Assessment{
			Confidence:  0,
			RoutingHint: models.HintManualReview,
			Summary:     "assessment output did not conform to schema after retry",
		},
		Usage:        run.usage,
		ToolsUsed:    keys(run.used),
		ToolsSkipped: keys(run.skipped),
		StartedAt:    started,
		Elapsed:      time.Since(started),
	}
}

// allToolsUnavailable reports whether every assigned gateway failed and none
// succeeded during this invocation.
func (r *assessmentRun) allToolsUnavailable() bool {
	return len(r.sessions) > 0 && len(r.used) == 0 && len(r.skipped) > 0
}

func (w *Worker) parseAssessment(content string) (*models.Assessment, error) {
	doc := []byte(content)
	result, err := validation.Validate(doc, w.persona.OutputSchema)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, stderrors.NewSchemaViolationError(string(w.persona.Stage), result.Describe())
	}
	var assessment models.Assessment
	if err := json.Unmarshal(doc, &assessment); err != nil {
		return nil, fmt.Errorf("decode assessment: %w", err)
	}
	return &assessment, nil
}

func toolMessage(callID string, payload map[string]interface{}) reasoning.Message {
	content, _ := json.Marshal(payload)
	return reasoning.Message{Role: "tool", ToolCallID: callID, Content: string(content)}
}

func keys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
