// Package orchestrator drives a loan application through the five-stage
// assessment pipeline as an explicit state machine: intake, routing, credit
// (with income in parallel on the standard and enhanced routes), risk, and
// terminal decision synthesis.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"loanflow/internal/assess"
	"loanflow/internal/audit"
	stderrors "loanflow/internal/common/errors"
	"loanflow/internal/common/logger"
	"loanflow/internal/common/metrics"
	"loanflow/internal/decision"
	"loanflow/internal/models"
)

// Workflow states. ROUTE is a decision point, never user-visible.
const (
	stateIntake           = "INTAKE"
	stateRoute            = "ROUTE"
	stateCredit           = "CREDIT"
	stateIncome           = "INCOME"
	stateRisk             = "RISK"
	stateDecision         = "DECISION"
	stateManualEscalation = "MANUAL_ESCALATION"
)

// Config holds the workflow control parameters.
type Config struct {
	SLA                    time.Duration
	StageDeadline          time.Duration
	FastTrackMinConfidence float64
	MaxConcurrent          int
}

// Orchestrator owns the workflow state machine. One goroutine per
// application; no cross-application shared mutable state beyond the gateway
// pool and the audit store.
type Orchestrator struct {
	cfg     Config
	workers map[models.Stage]*assess.Worker
	runner  *Runner
	synth   *decision.Synthesizer
	audit   *audit.Recorder
	tracer  trace.Tracer
	logger  logger.Logger
	sem     chan struct{}
}

func New(cfg Config, workers map[models.Stage]*assess.Worker, runner *Runner, synth *decision.Synthesizer, rec *audit.Recorder, tracer trace.Tracer, log logger.Logger) *Orchestrator {
	var sem chan struct{}
	if cfg.MaxConcurrent > 0 {
		sem = make(chan struct{}, cfg.MaxConcurrent)
	}
	return &Orchestrator{
		cfg:     cfg,
		workers: workers,
		runner:  runner,
		synth:   synth,
		audit:   rec,
		tracer:  tracer,
		logger:  log.WithFields(map[string]interface{}{"component": "orchestrator"}),
		sem:     sem,
	}
}

// Run drives one application to its terminal Decision. It never returns an
// error and never returns without a decision: every failure mode, including
// SLA breach, maps to MANUAL_REVIEW.
func (o *Orchestrator) Run(ctx context.Context, app *models.Application) *models.Decision {
	if o.sem != nil {
		o.sem <- struct{}{}
		defer func() { <-o.sem }()
	}

	metrics.WorkflowsActive.Inc()
	defer metrics.WorkflowsActive.Dec()

	correlationID := uuid.NewString()

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.SLA)
	defer cancel()

	var span trace.Span
	if o.tracer != nil {
		runCtx, span = o.tracer.Start(runCtx, "workflow.run",
			trace.WithAttributes(attribute.String("correlation.id", correlationID)))
		defer span.End()
	}

	state := NewRunState()
	d := o.execute(runCtx, correlationID, app, state)
	state.MarkTerminal()

	// Recording must survive the SLA deadline itself.
	recordCtx := context.WithoutCancel(runCtx)
	o.audit.DecisionRecorded(recordCtx, app.ApplicationID, d)
	metrics.Decisions.WithLabelValues(string(d.Outcome)).Inc()
	if span != nil {
		span.SetAttributes(attribute.String("decision.outcome", string(d.Outcome)))
	}

	o.logger.Info("workflow finished", map[string]interface{}{
		"correlationId": correlationID,
		"routing":       string(state.Routing()),
		"outcome":       string(d.Outcome),
		"stages":        len(state.Outcomes()),
		"elapsedMs":     d.Elapsed.Milliseconds(),
	})

	return d
}

func (o *Orchestrator) execute(ctx context.Context, correlationID string, app *models.Application, state *RunState) *models.Decision {
	// INTAKE
	intake := o.stage(ctx, models.StageIntake, app, state)
	if breached, d := o.checkSLA(ctx, correlationID, app, state); breached {
		return d
	}
	if intake.Status == models.StatusFailed {
		return o.escalate(ctx, correlationID, app, state, stateIntake,
			"intake stage failed: "+intake.Error)
	}

	// ROUTE
	route := o.resolveRoute(intake)
	state.SetRouting(route)
	o.audit.Handoff(ctx, app.ApplicationID, stateIntake, stateRoute, route)

	// CREDIT (+ INCOME fan-out on the standard and enhanced routes)
	if route == models.RouteFastTrack {
		o.audit.Handoff(ctx, app.ApplicationID, stateRoute, stateCredit, route)
		o.stage(ctx, models.StageCredit, app, state)
	} else {
		o.audit.Handoff(ctx, app.ApplicationID, stateRoute, stateCredit+"+"+stateIncome, route)
		o.fanOut(ctx, app, state)
	}
	if breached, d := o.checkSLA(ctx, correlationID, app, state); breached {
		return d
	}
	if failed, stageName := o.anyFailed(state, route); failed {
		return o.escalate(ctx, correlationID, app, state, stageName,
			fmt.Sprintf("%s stage failed", stageName))
	}

	// RISK
	o.audit.Handoff(ctx, app.ApplicationID, stateCredit, stateRisk, route)
	risk := o.stage(ctx, models.StageRisk, app, state)
	if breached, d := o.checkSLA(ctx, correlationID, app, state); breached {
		return d
	}
	if risk.Status == models.StatusFailed {
		return o.escalate(ctx, correlationID, app, state, stateRisk,
			"risk stage failed: "+risk.Error)
	}
	if route == models.RouteEnhanced && risk.Assessment.Recommendation != models.RecommendApprove {
		return o.escalate(ctx, correlationID, app, state, stateRisk,
			"enhanced route requires a clean risk approval, got "+risk.Assessment.Recommendation)
	}

	// DECISION
	o.audit.Handoff(ctx, app.ApplicationID, stateRisk, stateDecision, route)
	return o.synth.Synthesize(correlationID, app, state.Outcomes(), state.StartedAt())
}

// stage runs one assessment under its own deadline, shorter than and
// independent of the workflow SLA. A stage that exhausts it fails on its
// own; the run context stays alive for the remaining stages.
func (o *Orchestrator) stage(ctx context.Context, stage models.Stage, app *models.Application, state *RunState) models.StageOutcome {
	if o.cfg.StageDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.StageDeadline)
		defer cancel()
	}
	if o.tracer != nil {
		var span trace.Span
		ctx, span = o.tracer.Start(ctx, "workflow.stage",
			trace.WithAttributes(attribute.String("stage", string(stage))))
		defer span.End()
	}
	return o.runner.Run(ctx, o.workers[stage], app, state)
}

// fanOut runs Credit and Income concurrently. The barrier waits for both
// regardless of status: a FAILED or DEGRADED outcome is valid input to Risk,
// and Risk never starts before both are recorded.
func (o *Orchestrator) fanOut(ctx context.Context, app *models.Application, state *RunState) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		o.stage(ctx, models.StageCredit, app, state)
	}()
	go func() {
		defer wg.Done()
		o.stage(ctx, models.StageIncome, app, state)
	}()
	wg.Wait()
}

// resolveRoute validates the intake routing hint. FAST_TRACK is advisory:
// the eligibility precondition (minimum confidence) is checked
// independently, with a silent downgrade to STANDARD when it fails.
func (o *Orchestrator) resolveRoute(intake models.StageOutcome) models.RoutingClass {
	switch intake.Assessment.RoutingHint {
	case models.HintFastTrack:
		if intake.Status == models.StatusComplete &&
			intake.Assessment.Confidence >= o.cfg.FastTrackMinConfidence {
			return models.RouteFastTrack
		}
		return models.RouteStandard
	case models.HintEnhanced:
		return models.RouteEnhanced
	default:
		return models.RouteStandard
	}
}

func (o *Orchestrator) anyFailed(state *RunState, route models.RoutingClass) (bool, string) {
	if credit, ok := state.Outcome(models.StageCredit); ok && credit.Status == models.StatusFailed {
		return true, stateCredit
	}
	if route != models.RouteFastTrack {
		if income, ok := state.Outcome(models.StageIncome); ok && income.Status == models.StatusFailed {
			return true, stateIncome
		}
	}
	return false, ""
}

func (o *Orchestrator) checkSLA(ctx context.Context, correlationID string, app *models.Application, state *RunState) (bool, *models.Decision) {
	if ctx.Err() == nil {
		return false, nil
	}
	slaErr := stderrors.NewSlaExceededError(time.Since(state.StartedAt()).Round(time.Millisecond))
	return true, o.escalate(ctx, correlationID, app, state, stateManualEscalation,
		fmt.Sprintf("%s (%s)", slaErr.Message, slaErr.Details))
}

// escalate is the MANUAL_ESCALATION terminal state: synthesis with a forced
// MANUAL_REVIEW outcome and the accumulated rationale.
func (o *Orchestrator) escalate(ctx context.Context, correlationID string, app *models.Application, state *RunState, from, reason string) *models.Decision {
	auditCtx := context.WithoutCancel(ctx)
	o.audit.Handoff(auditCtx, app.ApplicationID, from, stateManualEscalation, state.Routing())

	o.logger.Warn("workflow escalated to manual review", map[string]interface{}{
		"correlationId": correlationID,
		"reason":        reason,
	})

	return o.synth.ManualReview(correlationID, app, state.Outcomes(), state.StartedAt(), reason)
}
