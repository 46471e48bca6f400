package decision

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"loanflow/internal/models"
)

// Store persists terminal decisions for downstream reporting. One row per
// workflow execution, keyed by correlation id.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Save(ctx context.Context, d *models.Decision) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (
			correlation_id, application_id, outcome, approved_amount,
			interest_rate, conditions, decline_reasons, rationale,
			prompt_tokens, completion_tokens, elapsed_ms, decided_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		d.CorrelationID,
		d.ApplicationID,
		string(d.Outcome),
		d.ApprovedAmount,
		d.InterestRate,
		strings.Join(d.Conditions, "; "),
		strings.Join(d.DeclineReasons, "; "),
		d.Rationale,
		d.Usage.PromptTokens,
		d.Usage.CompletionTokens,
		d.Elapsed.Milliseconds(),
		d.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// Get loads one persisted decision by correlation id.
func (s *Store) Get(ctx context.Context, correlationID string) (*models.Decision, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT correlation_id, application_id, outcome, approved_amount,
			interest_rate, rationale
		FROM decisions WHERE correlation_id = $1`, correlationID)

	var d models.Decision
	var outcome string
	if err := row.Scan(&d.CorrelationID, &d.ApplicationID, &outcome,
		&d.ApprovedAmount, &d.InterestRate, &d.Rationale); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("decision %s not found", correlationID)
		}
		return nil, fmt.Errorf("query decision: %w", err)
	}
	d.Outcome = models.DecisionOutcome(outcome)
	return &d, nil
}
