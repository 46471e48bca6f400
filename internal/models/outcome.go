package models

import (
	"fmt"
	"time"
)

// Stage names the discrete assessment steps of the pipeline.
type Stage string

const (
	StageIntake Stage = "intake"
	StageCredit Stage = "credit"
	StageIncome Stage = "income"
	StageRisk   Stage = "risk"
)

// StageStatus is the normalized result class of one stage invocation.
type StageStatus string

const (
	StatusComplete StageStatus = "COMPLETE"
	StatusDegraded StageStatus = "DEGRADED"
	StatusFailed   StageStatus = "FAILED"
)

// RoutingClass selects the execution path of the workflow.
type RoutingClass string

const (
	RouteStandard  RoutingClass = "STANDARD"
	RouteFastTrack RoutingClass = "FAST_TRACK"
	RouteEnhanced  RoutingClass = "ENHANCED"
)

// Routing hints a stage may emit. FAST_TRACK/ENHANCED are advisory; the
// orchestrator validates eligibility before honoring them.
const (
	HintStandard     = "STANDARD"
	HintFastTrack    = "FAST_TRACK"
	HintEnhanced     = "ENHANCED"
	HintManualReview = "MANUAL_REVIEW"
)

// Risk-stage recommendations, the primary decision signal.
const (
	RecommendApprove     = "APPROVE"
	RecommendConditional = "CONDITIONAL"
	RecommendDecline     = "DECLINE"
)

// Usage accumulates token and latency spend across reasoning calls.
type Usage struct {
	PromptTokens     int           `json:"promptTokens"`
	CompletionTokens int           `json:"completionTokens"`
	Latency          time.Duration `json:"latency"`
}

func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.Latency += other.Latency
}

// Assessment is the structured payload every stage produces. Stage-specific
// fields live in Details; confidence and routing hint are always present.
type Assessment struct {
	Confidence     float64                `json:"confidence"`
	RoutingHint    string                 `json:"routingHint"`
	Recommendation string                 `json:"recommendation,omitempty"`
	Summary        string                 `json:"summary"`
	Conditions     []string               `json:"conditions,omitempty"`
	Factors        []string               `json:"factors,omitempty"`
	ApprovedAmount float64                `json:"approvedAmount,omitempty"`
	InterestRate   float64                `json:"interestRate,omitempty"`
	Details        map[string]interface{} `json:"details,omitempty"`
}

// StageOutcome is the immutable record of one assessment invocation.
type StageOutcome struct {
	Stage        Stage       `json:"stage"`
	Status       StageStatus `json:"status"`
	Assessment   Assessment  `json:"assessment"`
	Usage        Usage       `json:"usage"`
	ToolsUsed    []string    `json:"toolsUsed,omitempty"`
	ToolsSkipped []string    `json:"toolsSkipped,omitempty"`
	StartedAt    time.Time   `json:"startedAt"`
	Elapsed      time.Duration `json:"elapsed"`
	Error        string      `json:"error,omitempty"`
}

// OneLine renders the outcome as a single rationale line.
func (o StageOutcome) OneLine() string {
	line := fmt.Sprintf("%s: %s (confidence %.2f)", o.Stage, o.Status, o.Assessment.Confidence)
	if o.Assessment.Summary != "" {
		line += " - " + o.Assessment.Summary
	}
	if o.Error != "" {
		line += " - " + o.Error
	}
	return line
}

// Usable reports whether the outcome carries an assessment downstream stages
// can rely on.
func (o StageOutcome) Usable(minConfidence float64) bool {
	if o.Status == StatusFailed {
		return false
	}
	if o.Status == StatusDegraded && o.Assessment.Confidence < minConfidence {
		return false
	}
	return true
}
