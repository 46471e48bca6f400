package decision

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanflow/internal/models"
)

func testApplication() *models.Application {
	return &models.Application{
		ApplicationID: "APP-20240917-00042",
		Amount:        24000,
	}
}

func outcome(stage models.Stage, status models.StageStatus, a models.Assessment, u models.Usage) models.StageOutcome {
	return models.StageOutcome{Stage: stage, Status: status, Assessment: a, Usage: u}
}

func fullPipeline(riskAssessment models.Assessment) []models.StageOutcome {
	return []models.StageOutcome{
		outcome(models.StageIntake, models.StatusComplete,
			models.Assessment{Confidence: 0.9, RoutingHint: "STANDARD", Summary: "complete"},
			models.Usage{PromptTokens: 100, CompletionTokens: 20}),
		outcome(models.StageCredit, models.StatusComplete,
			models.Assessment{Confidence: 0.8, Summary: "clean history"},
			models.Usage{PromptTokens: 150, CompletionTokens: 30}),
		outcome(models.StageIncome, models.StatusComplete,
			models.Assessment{Confidence: 0.78, Summary: "income verified"},
			models.Usage{PromptTokens: 140, CompletionTokens: 25}),
		outcome(models.StageRisk, models.StatusComplete, riskAssessment,
			models.Usage{PromptTokens: 200, CompletionTokens: 60}),
	}
}

func TestSynthesize_ApproveRecommendation(t *testing.T) {
	synth := NewSynthesizer(0.5)
	outcomes := fullPipeline(models.Assessment{
		Confidence:     0.85,
		Recommendation: models.RecommendApprove,
		Summary:        "affordable",
		ApprovedAmount: 22000,
		InterestRate:   7.9,
	})

	d := synth.Synthesize("corr-1", testApplication(), outcomes, time.Now().Add(-3*time.Second))
	require.NotNil(t, d)

	assert.Equal(t, models.OutcomeApproved, d.Outcome)
	assert.Equal(t, 22000.0, d.ApprovedAmount)
	assert.Equal(t, 7.9, d.InterestRate)
	assert.Equal(t, "corr-1", d.CorrelationID)
	assert.Equal(t, 590, d.Usage.PromptTokens)
	assert.Equal(t, 135, d.Usage.CompletionTokens)
	assert.GreaterOrEqual(t, d.Elapsed, 3*time.Second)
}

func TestSynthesize_ApproveWithoutAmountFallsBackToRequested(t *testing.T) {
	synth := NewSynthesizer(0.5)
	outcomes := fullPipeline(models.Assessment{
		Confidence:     0.85,
		Recommendation: models.RecommendApprove,
	})

	d := synth.Synthesize("corr-1", testApplication(), outcomes, time.Now())
	assert.Equal(t, 24000.0, d.ApprovedAmount)
}

func TestSynthesize_ConditionalRecommendation(t *testing.T) {
	synth := NewSynthesizer(0.5)
	outcomes := fullPipeline(models.Assessment{
		Confidence:     0.7,
		Recommendation: models.RecommendConditional,
		Conditions:     []string{"recent pay stubs", "proof of residence"},
		ApprovedAmount: 18000,
		InterestRate:   9.2,
	})

	d := synth.Synthesize("corr-1", testApplication(), outcomes, time.Now())

	assert.Equal(t, models.OutcomeConditionallyApproved, d.Outcome)
	assert.Equal(t, []string{"recent pay stubs", "proof of residence"}, d.Conditions)
	assert.Empty(t, d.DeclineReasons)
}

func TestSynthesize_DeclineRecommendation(t *testing.T) {
	synth := NewSynthesizer(0.5)
	outcomes := fullPipeline(models.Assessment{
		Confidence:     0.9,
		Recommendation: models.RecommendDecline,
		Factors:        []string{"debt-to-income above policy maximum"},
	})

	d := synth.Synthesize("corr-1", testApplication(), outcomes, time.Now())

	assert.Equal(t, models.OutcomeDeclined, d.Outcome)
	assert.Equal(t, []string{"debt-to-income above policy maximum"}, d.DeclineReasons)
	assert.Zero(t, d.ApprovedAmount)
}

func TestSynthesize_MissingRiskOutcomeIsManualReview(t *testing.T) {
	synth := NewSynthesizer(0.5)
	outcomes := fullPipeline(models.Assessment{})[:3] // no risk stage

	d := synth.Synthesize("corr-1", testApplication(), outcomes, time.Now())

	assert.Equal(t, models.OutcomeManualReview, d.Outcome)
	assert.Contains(t, d.Rationale, "no usable risk assessment")
}

func TestSynthesize_FailedRiskOutcomeIsManualReview(t *testing.T) {
	synth := NewSynthesizer(0.5)
	outcomes := fullPipeline(models.Assessment{})
	outcomes[3].Status = models.StatusFailed

	d := synth.Synthesize("corr-1", testApplication(), outcomes, time.Now())
	assert.Equal(t, models.OutcomeManualReview, d.Outcome)
}

func TestSynthesize_LowConfidenceDegradedRiskIsManualReview(t *testing.T) {
	synth := NewSynthesizer(0.5)
	outcomes := fullPipeline(models.Assessment{
		Confidence:     0.2,
		Recommendation: models.RecommendApprove,
	})
	outcomes[3].Status = models.StatusDegraded

	d := synth.Synthesize("corr-1", testApplication(), outcomes, time.Now())
	assert.Equal(t, models.OutcomeManualReview, d.Outcome)
}

func TestSynthesize_UnrecognizedRecommendationIsManualReview(t *testing.T) {
	synth := NewSynthesizer(0.5)
	outcomes := fullPipeline(models.Assessment{
		Confidence:     0.9,
		Recommendation: "ESCALATE",
	})

	d := synth.Synthesize("corr-1", testApplication(), outcomes, time.Now())
	assert.Equal(t, models.OutcomeManualReview, d.Outcome)
	assert.Contains(t, d.Rationale, "unrecognized risk recommendation")
}

func TestSynthesize_RationaleIsOrderedStageLines(t *testing.T) {
	synth := NewSynthesizer(0.5)
	outcomes := fullPipeline(models.Assessment{
		Confidence:     0.85,
		Recommendation: models.RecommendApprove,
		Summary:        "affordable",
	})

	d := synth.Synthesize("corr-1", testApplication(), outcomes, time.Now())

	lines := strings.Split(d.Rationale, "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "intake:"))
	assert.True(t, strings.HasPrefix(lines[1], "credit:"))
	assert.True(t, strings.HasPrefix(lines[2], "income:"))
	assert.True(t, strings.HasPrefix(lines[3], "risk:"))
}

func TestManualReview_ReasonOpensRationale(t *testing.T) {
	synth := NewSynthesizer(0.5)

	d := synth.ManualReview("corr-1", testApplication(), nil, time.Now(), "SLA exceeded after 3m0s")

	assert.Equal(t, models.OutcomeManualReview, d.Outcome)
	assert.True(t, strings.HasPrefix(d.Rationale, "Escalated to manual review: SLA exceeded after 3m0s"))
}

func TestManualReview_NoStagesStillProducesRationale(t *testing.T) {
	synth := NewSynthesizer(0.5)

	d := synth.ManualReview("corr-1", testApplication(), nil, time.Now(), "")
	assert.Equal(t, "no stages completed", d.Rationale)
}
