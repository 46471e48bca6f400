// Package audit records the structured, PII-masked event trail of every
// workflow execution: tool invocations, stage completions, handoffs, and the
// terminal decision.
package audit

import (
	"context"
	"time"

	"loanflow/internal/common/logger"
	"loanflow/internal/models"
)

// Event kinds.
const (
	KindToolInvocation = "TOOL_INVOCATION"
	KindStageCompleted = "STAGE_COMPLETED"
	KindHandoff        = "HANDOFF"
	KindDecision       = "DECISION"
)

// Event is one append-only audit record.
type Event struct {
	Timestamp     time.Time              `json:"timestamp"`
	ApplicationID string                 `json:"applicationId"` // masked
	CorrelationID string                 `json:"correlationId,omitempty"`
	Kind          string                 `json:"kind"`
	Stage         string                 `json:"stage,omitempty"`
	Detail        map[string]interface{} `json:"detail,omitempty"`
}

// Sink receives a copy of every recorded event, best effort.
type Sink interface {
	Index(ctx context.Context, event Event) error
}

// Recorder masks identifiers, appends events to the store, and fans them out
// to optional sinks.
type Recorder struct {
	store     Store
	sinks     []Sink
	logger    logger.Logger
	prefixLen int
}

func NewRecorder(store Store, prefixLen int, log logger.Logger) *Recorder {
	return &Recorder{
		store:     store,
		prefixLen: prefixLen,
		logger:    log.WithFields(map[string]interface{}{"component": "audit"}),
	}
}

// AddSink registers an additional event consumer (e.g. Elasticsearch).
func (r *Recorder) AddSink(s Sink) {
	r.sinks = append(r.sinks, s)
}

func (r *Recorder) record(ctx context.Context, appID string, event Event) {
	event.Timestamp = time.Now().UTC()
	event.ApplicationID = MaskID(appID, r.prefixLen)

	if err := r.store.Append(ctx, event.ApplicationID, event); err != nil {
		r.logger.Error("failed to append audit event", map[string]interface{}{
			"applicationId": event.ApplicationID,
			"kind":          event.Kind,
			"error":         err,
		})
	}

	for _, sink := range r.sinks {
		if err := sink.Index(ctx, event); err != nil {
			r.logger.Warn("audit sink rejected event", map[string]interface{}{
				"applicationId": event.ApplicationID,
				"kind":          event.Kind,
				"error":         err,
			})
		}
	}
}

// ToolAttempt records one tool service invocation attempt and its result.
func (r *Recorder) ToolAttempt(ctx context.Context, appID string, stage models.Stage, service, operation, result string, attempt int) {
	r.record(ctx, appID, Event{
		Kind:  KindToolInvocation,
		Stage: string(stage),
		Detail: map[string]interface{}{
			"service":   service,
			"operation": operation,
			"result":    result,
			"attempt":   attempt,
		},
	})
}

// StageCompleted records the summary of one finished stage.
func (r *Recorder) StageCompleted(ctx context.Context, appID string, outcome models.StageOutcome) {
	r.record(ctx, appID, Event{
		Kind:  KindStageCompleted,
		Stage: string(outcome.Stage),
		Detail: map[string]interface{}{
			"status":      string(outcome.Status),
			"confidence":  outcome.Assessment.Confidence,
			"routingHint": outcome.Assessment.RoutingHint,
			"elapsedMs":   outcome.Elapsed.Milliseconds(),
		},
	})
}

// Handoff records a workflow state transition.
func (r *Recorder) Handoff(ctx context.Context, appID, from, to string, routing models.RoutingClass) {
	r.record(ctx, appID, Event{
		Kind: KindHandoff,
		Detail: map[string]interface{}{
			"from":    from,
			"to":      to,
			"routing": string(routing),
		},
	})
}

// DecisionRecorded records the terminal decision.
func (r *Recorder) DecisionRecorded(ctx context.Context, appID string, decision *models.Decision) {
	r.record(ctx, appID, Event{
		Kind:          KindDecision,
		CorrelationID: decision.CorrelationID,
		Detail: map[string]interface{}{
			"outcome":   string(decision.Outcome),
			"elapsedMs": decision.Elapsed.Milliseconds(),
		},
	})
}

// Lookup returns the recorded event sequence for an application, in append
// order.
func (r *Recorder) Lookup(ctx context.Context, appID string) ([]Event, error) {
	return r.store.List(ctx, MaskID(appID, r.prefixLen))
}
