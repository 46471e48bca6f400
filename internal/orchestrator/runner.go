package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"loanflow/internal/assess"
	"loanflow/internal/audit"
	stderrors "loanflow/internal/common/errors"
	"loanflow/internal/common/logger"
	"loanflow/internal/common/metrics"
	"loanflow/internal/models"
)

// Runner invokes one assessment worker, attaches timing, retries once on
// transient worker errors, and normalizes any remaining error into a FAILED
// outcome. No error ever propagates past Run.
type Runner struct {
	audit      *audit.Recorder
	logger     logger.Logger
	retryDelay time.Duration
}

func NewRunner(rec *audit.Recorder, retryDelay time.Duration, log logger.Logger) *Runner {
	return &Runner{
		audit:      rec,
		retryDelay: retryDelay,
		logger:     log.WithFields(map[string]interface{}{"component": "stage-runner"}),
	}
}

// Run executes one stage, appends its outcome to the run state, and emits
// the per-stage audit event.
func (r *Runner) Run(ctx context.Context, worker *assess.Worker, app *models.Application, state *RunState) models.StageOutcome {
	stage := worker.Stage()
	started := time.Now()

	outcome, err := worker.Assess(ctx, app, state.Outcomes())
	if err != nil && r.shouldRetry(ctx, err) {
		r.logger.Warn("stage errored, retrying once", map[string]interface{}{
			"stage":         string(stage),
			"applicationId": app.ApplicationID,
			"error":         err,
		})
		select {
		case <-time.After(r.retryDelay):
			outcome, err = worker.Assess(ctx, app, state.Outcomes())
		case <-ctx.Done():
		}
	}

	if err != nil {
		stageErr := stderrors.NewStageFailedError(string(stage), err)
		outcome = models.StageOutcome{
			Stage:  stage,
			Status: models.StatusFailed,
			Assessment: models.Assessment{
				RoutingHint: models.HintManualReview,
				Summary:     "stage failed",
			},
			StartedAt: started,
			Elapsed:   time.Since(started),
			Error:     errorLabel(stageErr),
		}
	}

	state.Append(outcome)

	metrics.StagesCompleted.WithLabelValues(string(stage), string(outcome.Status)).Inc()
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(outcome.Elapsed.Seconds())
	r.audit.StageCompleted(ctx, app.ApplicationID, outcome)

	r.logger.Info("stage completed", map[string]interface{}{
		"stage":         string(stage),
		"applicationId": app.ApplicationID,
		"status":        string(outcome.Status),
		"routingHint":   outcome.Assessment.RoutingHint,
		"elapsedMs":     outcome.Elapsed.Milliseconds(),
	})

	return outcome
}

// shouldRetry allows a single retry on transient worker errors only. Typed
// errors carry their own retryable flag; unclassified errors get the one
// retry. Deadline expiry makes a retry pointless.
func (r *Runner) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var stdErr *stderrors.StandardError
	if errors.As(err, &stdErr) {
		return stderrors.IsRetryable(err)
	}
	return true
}

// errorLabel renders an error class plus message for the FAILED outcome.
func errorLabel(err error) string {
	var stdErr *stderrors.StandardError
	if errors.As(err, &stdErr) {
		if stdErr.Details != "" {
			return fmt.Sprintf("%s: %s (%s)", stdErr.Code, stdErr.Message, stdErr.Details)
		}
		return fmt.Sprintf("%s: %s", stdErr.Code, stdErr.Message)
	}
	return fmt.Sprintf("%T: %v", err, err)
}
