package models

import "time"

// DecisionOutcome is the terminal classification of a loan application.
type DecisionOutcome string

const (
	OutcomeApproved              DecisionOutcome = "APPROVED"
	OutcomeConditionallyApproved DecisionOutcome = "CONDITIONALLY_APPROVED"
	OutcomeDeclined              DecisionOutcome = "DECLINED"
	OutcomeManualReview          DecisionOutcome = "MANUAL_REVIEW"
)

// Decision is the sole return value of the orchestrator's public entry
// point. Created exactly once per workflow execution.
type Decision struct {
	CorrelationID  string          `json:"correlationId"`
	ApplicationID  string          `json:"applicationId"`
	Outcome        DecisionOutcome `json:"outcome"`
	ApprovedAmount float64         `json:"approvedAmount,omitempty"`
	InterestRate   float64         `json:"interestRate,omitempty"`
	Conditions     []string        `json:"conditions,omitempty"`
	DeclineReasons []string        `json:"declineReasons,omitempty"`
	Rationale      string          `json:"rationale"`
	Usage          Usage           `json:"usage"`
	Elapsed        time.Duration   `json:"elapsed"`
	DecidedAt      time.Time       `json:"decidedAt"`
}
