package assess

import (
	"loanflow/internal/models"
	"loanflow/internal/reasoning"
)

// Persona is the immutable behavioral configuration of one assessment
// worker: instructions, required output schema, assigned tool operations,
// and model parameters. Loaded once at startup.
type Persona struct {
	Stage        models.Stage
	Instructions string
	OutputSchema string
	Tools        []reasoning.ToolDef
	MaxTokens    int
	Temperature  float64
}

// baseSchema is shared by every stage: an assessment always carries a
// confidence score and a routing hint.
const baseSchema = `{
  "type": "object",
  "required": ["confidence", "routingHint", "summary"],
  "properties": {
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "routingHint": {"type": "string", "enum": ["STANDARD", "FAST_TRACK", "ENHANCED", "MANUAL_REVIEW"]},
    "summary": {"type": "string"},
    "details": {"type": "object"}
  }
}`

const riskSchema = `{
  "type": "object",
  "required": ["confidence", "routingHint", "summary", "recommendation"],
  "properties": {
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "routingHint": {"type": "string", "enum": ["STANDARD", "FAST_TRACK", "ENHANCED", "MANUAL_REVIEW"]},
    "summary": {"type": "string"},
    "recommendation": {"type": "string", "enum": ["APPROVE", "CONDITIONAL", "DECLINE"]},
    "conditions": {"type": "array", "items": {"type": "string"}},
    "factors": {"type": "array", "items": {"type": "string"}},
    "approvedAmount": {"type": "number", "minimum": 0},
    "interestRate": {"type": "number", "minimum": 0},
    "details": {"type": "object"}
  }
}`

// IntakePersona screens the application and recommends the execution route.
func IntakePersona(tools []reasoning.ToolDef) Persona {
	return Persona{
		Stage: models.StageIntake,
		Instructions: "You are a loan intake analyst. Review the application for completeness " +
			"and consistency, verify the applicant's identity with the available tools, and " +
			"recommend a processing route. Recommend FAST_TRACK only for exceptionally strong, " +
			"fully consistent profiles; recommend ENHANCED when the amount is large relative to " +
			"stated income or the profile shows irregularities; otherwise recommend STANDARD. " +
			"Reply with a JSON object matching the required schema.",
		OutputSchema: baseSchema,
		Tools:        tools,
		MaxTokens:    512,
		Temperature:  0,
	}
}

// CreditPersona assesses creditworthiness.
func CreditPersona(tools []reasoning.ToolDef) Persona {
	return Persona{
		Stage: models.StageCredit,
		Instructions: "You are a credit analyst. Pull the applicant's credit report with the " +
			"available tools, compare it against the stated score, and assess repayment history, " +
			"utilization, and derogatory marks. If tools are unavailable, assess from the stated " +
			"attributes and say so in the summary. Reply with a JSON object matching the required schema.",
		OutputSchema: baseSchema,
		Tools:        tools,
		MaxTokens:    768,
		Temperature:  0,
	}
}

// IncomePersona verifies income and employment.
func IncomePersona(tools []reasoning.ToolDef) Persona {
	return Persona{
		Stage: models.StageIncome,
		Instructions: "You are an income verification analyst. Verify employment and stated " +
			"income with the available tools, compute debt-to-income, and flag gaps between " +
			"stated and verified figures. If tools are unavailable, assess from the stated " +
			"attributes and say so in the summary. Reply with a JSON object matching the required schema.",
		OutputSchema: baseSchema,
		Tools:        tools,
		MaxTokens:    768,
		Temperature:  0,
	}
}

// RiskPersona synthesizes prior assessments into a lending recommendation.
func RiskPersona(tools []reasoning.ToolDef) Persona {
	return Persona{
		Stage: models.StageRisk,
		Instructions: "You are a senior risk officer. Weigh the prior credit and income " +
			"assessments together with the application, use the financial calculators for " +
			"affordability and pricing, and recommend APPROVE, CONDITIONAL (with explicit " +
			"conditions), or DECLINE (with explicit factors). Include approvedAmount and " +
			"interestRate when approving. Treat degraded prior assessments as lower-confidence " +
			"input, not as missing. Reply with a JSON object matching the required schema.",
		OutputSchema: riskSchema,
		Tools:        tools,
		MaxTokens:    1024,
		Temperature:  0,
	}
}
