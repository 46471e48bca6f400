package models

// FinancialAttributes carries the applicant-provided financial profile.
// Values are self-reported at intake; verification happens downstream.
type FinancialAttributes struct {
	AnnualIncome    float64 `json:"annualIncome"`
	MonthlyDebt     float64 `json:"monthlyDebt"`
	EmploymentYears float64 `json:"employmentYears"`
	StatedScore     int     `json:"statedScore"`
	LiquidAssets    float64 `json:"liquidAssets"`
}

// Application identifies one loan request. Immutable once submitted; the
// orchestrator only ever references it.
type Application struct {
	ApplicationID string              `json:"applicationId"`
	ApplicantID   string              `json:"applicantId"`
	Amount        float64             `json:"amount"`
	Purpose       string              `json:"purpose"`
	TermMonths    int                 `json:"termMonths"`
	Financials    FinancialAttributes `json:"financials"`
}
