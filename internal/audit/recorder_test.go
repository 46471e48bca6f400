package audit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanflow/internal/common/logger"
	"loanflow/internal/models"
)

func newRedisRecorder(t *testing.T) (*Recorder, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := NewRedisStore(client, time.Hour)
	return NewRecorder(store, 8, logger.NewNoOpLogger()), mr
}

func TestMaskID(t *testing.T) {
	assert.Equal(t, "APP-2024***", MaskID("APP-20240917-00042", 8))
	assert.Equal(t, "short***", MaskID("short", 8))
	assert.Equal(t, "APP-2024***", MaskID("APP-20240917-00042", 0), "non-positive prefix falls back to default")
}

func TestRecorder_EventsKeyedByMaskedID(t *testing.T) {
	recorder, mr := newRedisRecorder(t)
	ctx := context.Background()

	recorder.ToolAttempt(ctx, "APP-20240917-00042", models.StageCredit, "credit-bureau", "credit-report", "OK", 1)

	require.True(t, mr.Exists("audit:app:APP-2024***"))
	assert.False(t, mr.Exists("audit:app:APP-20240917-00042"), "raw id must never reach the store")

	events, err := recorder.Lookup(ctx, "APP-20240917-00042")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "APP-2024***", events[0].ApplicationID)
	assert.Equal(t, KindToolInvocation, events[0].Kind)
	assert.Equal(t, "credit", events[0].Stage)
	assert.Equal(t, "credit-bureau", events[0].Detail["service"])
}

func TestRecorder_LookupPreservesAppendOrder(t *testing.T) {
	recorder, _ := newRedisRecorder(t)
	ctx := context.Background()

	recorder.Handoff(ctx, "APP-20240917-00042", "INTAKE", "ROUTE", models.RouteStandard)
	recorder.ToolAttempt(ctx, "APP-20240917-00042", models.StageIntake, "identity-verification", "verify-identity", "OK", 1)
	recorder.StageCompleted(ctx, "APP-20240917-00042", models.StageOutcome{
		Stage:   models.StageIntake,
		Status:  models.StatusComplete,
		Elapsed: 120 * time.Millisecond,
	})
	recorder.DecisionRecorded(ctx, "APP-20240917-00042", &models.Decision{
		CorrelationID: "corr-1",
		Outcome:       models.OutcomeApproved,
	})

	events, err := recorder.Lookup(ctx, "APP-20240917-00042")
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, KindHandoff, events[0].Kind)
	assert.Equal(t, KindToolInvocation, events[1].Kind)
	assert.Equal(t, KindStageCompleted, events[2].Kind)
	assert.Equal(t, KindDecision, events[3].Kind)
	assert.Equal(t, "corr-1", events[3].CorrelationID)
}

func TestRecorder_LookupIsReadOnly(t *testing.T) {
	recorder, _ := newRedisRecorder(t)
	ctx := context.Background()

	recorder.Handoff(ctx, "APP-20240917-00042", "INTAKE", "ROUTE", models.RouteFastTrack)

	first, err := recorder.Lookup(ctx, "APP-20240917-00042")
	require.NoError(t, err)
	second, err := recorder.Lookup(ctx, "APP-20240917-00042")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRecorder_UnknownApplicationReturnsEmpty(t *testing.T) {
	recorder, _ := newRedisRecorder(t)

	events, err := recorder.Lookup(context.Background(), "APP-99999999-never")
	require.NoError(t, err)
	assert.Empty(t, events)
}

type captureSink struct {
	events []Event
}

func (s *captureSink) Index(_ context.Context, event Event) error {
	s.events = append(s.events, event)
	return nil
}

func TestRecorder_SinkReceivesMaskedCopies(t *testing.T) {
	store := NewMemoryStore()
	recorder := NewRecorder(store, 8, logger.NewNoOpLogger())
	sink := &captureSink{}
	recorder.AddSink(sink)

	recorder.ToolAttempt(context.Background(), "APP-20240917-00042", models.StageRisk, "financial-calculator", "affordability", "OK", 1)

	require.Len(t, sink.events, 1)
	assert.Equal(t, "APP-2024***", sink.events[0].ApplicationID)
}
