package decision

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanflow/internal/models"
)

func TestStore_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	decidedAt := time.Now().UTC()
	d := &models.Decision{
		CorrelationID:  "corr-1",
		ApplicationID:  "APP-20240917-00042",
		Outcome:        models.OutcomeConditionallyApproved,
		ApprovedAmount: 18000,
		InterestRate:   9.2,
		Conditions:     []string{"recent pay stubs", "proof of residence"},
		Rationale:      "intake: COMPLETE (confidence 0.90)",
		Usage:          models.Usage{PromptTokens: 590, CompletionTokens: 135},
		Elapsed:        42 * time.Second,
		DecidedAt:      decidedAt,
	}

	mock.ExpectExec("INSERT INTO decisions").
		WithArgs("corr-1", "APP-20240917-00042", "CONDITIONALLY_APPROVED", 18000.0, 9.2,
			"recent pay stubs; proof of residence", "", d.Rationale,
			590, 135, int64(42000), decidedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	store := NewStore(db)
	require.NoError(t, store.Save(context.Background(), d))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO decisions").WillReturnError(assert.AnError)

	store := NewStore(db)
	err = store.Save(context.Background(), &models.Decision{CorrelationID: "corr-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert decision")
}

func TestStore_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{
		"correlation_id", "application_id", "outcome", "approved_amount",
		"interest_rate", "rationale",
	}).AddRow("corr-1", "APP-20240917-00042", "APPROVED", 22000.0, 7.9, "risk: COMPLETE")

	mock.ExpectQuery("FROM decisions WHERE correlation_id").
		WithArgs("corr-1").
		WillReturnRows(rows)

	store := NewStore(db)
	d, err := store.Get(context.Background(), "corr-1")
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeApproved, d.Outcome)
	assert.Equal(t, 22000.0, d.ApprovedAmount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM decisions WHERE correlation_id").
		WithArgs("corr-ghost").
		WillReturnRows(sqlmock.NewRows([]string{
			"correlation_id", "application_id", "outcome", "approved_amount",
			"interest_rate", "rationale",
		}))

	store := NewStore(db)
	_, err = store.Get(context.Background(), "corr-ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
