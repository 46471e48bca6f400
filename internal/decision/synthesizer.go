// Package decision combines the ordered stage outcomes of one workflow
// execution into the terminal Decision, deterministically.
package decision

import (
	"strings"
	"time"

	"loanflow/internal/models"
)

// Synthesizer evaluates the stage outcomes by fixed rules. The Risk stage's
// recommendation is the primary signal; without a usable Risk outcome, the
// only possible result is manual review.
type Synthesizer struct {
	riskMinConfidence float64
}

func NewSynthesizer(riskMinConfidence float64) *Synthesizer {
	return &Synthesizer{riskMinConfidence: riskMinConfidence}
}

// Synthesize produces the terminal decision for a workflow that reached the
// decision state.
func (s *Synthesizer) Synthesize(correlationID string, app *models.Application, outcomes []models.StageOutcome, startedAt time.Time) *models.Decision {
	risk, ok := findStage(outcomes, models.StageRisk)
	if !ok || !risk.Usable(s.riskMinConfidence) {
		return s.ManualReview(correlationID, app, outcomes, startedAt, "no usable risk assessment")
	}

	d := s.base(correlationID, app, outcomes, startedAt)

	switch risk.Assessment.Recommendation {
	case models.RecommendApprove:
		d.Outcome = models.OutcomeApproved
		d.ApprovedAmount = approvedAmount(risk, app)
		d.InterestRate = risk.Assessment.InterestRate
	case models.RecommendConditional:
		d.Outcome = models.OutcomeConditionallyApproved
		d.ApprovedAmount = approvedAmount(risk, app)
		d.InterestRate = risk.Assessment.InterestRate
		d.Conditions = risk.Assessment.Conditions
	case models.RecommendDecline:
		d.Outcome = models.OutcomeDeclined
		d.DeclineReasons = risk.Assessment.Factors
	default:
		return s.ManualReview(correlationID, app, outcomes, startedAt, "unrecognized risk recommendation")
	}

	d.Rationale = buildRationale(outcomes, "")
	return d
}

// ManualReview produces the forced terminal decision for escalated or failed
// workflows. The reason always opens the rationale.
func (s *Synthesizer) ManualReview(correlationID string, app *models.Application, outcomes []models.StageOutcome, startedAt time.Time, reason string) *models.Decision {
	d := s.base(correlationID, app, outcomes, startedAt)
	d.Outcome = models.OutcomeManualReview
	d.Rationale = buildRationale(outcomes, reason)
	return d
}

func (s *Synthesizer) base(correlationID string, app *models.Application, outcomes []models.StageOutcome, startedAt time.Time) *models.Decision {
	var usage models.Usage
	for _, o := range outcomes {
		usage.Add(o.Usage)
	}
	return &models.Decision{
		CorrelationID: correlationID,
		ApplicationID: app.ApplicationID,
		Usage:         usage,
		Elapsed:       time.Since(startedAt),
		DecidedAt:     time.Now().UTC(),
	}
}

func buildRationale(outcomes []models.StageOutcome, reason string) string {
	var lines []string
	if reason != "" {
		lines = append(lines, "Escalated to manual review: "+reason)
	}
	for _, o := range outcomes {
		lines = append(lines, o.OneLine())
	}
	if len(lines) == 0 {
		lines = append(lines, "no stages completed")
	}
	return strings.Join(lines, "\n")
}

func findStage(outcomes []models.StageOutcome, stage models.Stage) (models.StageOutcome, bool) {
	for _, o := range outcomes {
		if o.Stage == stage {
			return o, true
		}
	}
	return models.StageOutcome{}, false
}

func approvedAmount(risk models.StageOutcome, app *models.Application) float64 {
	if risk.Assessment.ApprovedAmount > 0 {
		return risk.Assessment.ApprovedAmount
	}
	return app.Amount
}
