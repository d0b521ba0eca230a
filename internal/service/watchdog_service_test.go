package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediflow/go-booking-saga/internal/models"
	"github.com/mediflow/go-booking-saga/internal/router"
)

type fakeWatchdogStore struct {
	stuck   []models.SagaState
	rescued int64
	backlog int64

	staleCalls []int
}

func (f *fakeWatchdogStore) StuckSagas(context.Context, time.Duration) ([]models.SagaState, error) {
	return f.stuck, nil
}

func (f *fakeWatchdogStore) ResetStaleProcessing(_ context.Context, olderThanMinutes int) (int64, error) {
	f.staleCalls = append(f.staleCalls, olderThanMinutes)
	return f.rescued, nil
}

func (f *fakeWatchdogStore) OutboxBacklog(context.Context) (int64, error) {
	return f.backlog, nil
}

type recordingAlerter struct {
	calls []router.Severity
}

func (r *recordingAlerter) Alert(_ context.Context, severity router.Severity, _ string, _ ...any) {
	r.calls = append(r.calls, severity)
}

func TestSweep_AlertsPerStuckSaga(t *testing.T) {
	t.Parallel()

	store := &fakeWatchdogStore{
		stuck: []models.SagaState{
			{ID: uuid.New(), AppointmentID: uuid.New(), Status: models.SagaCompensating},
			{ID: uuid.New(), AppointmentID: uuid.New(), Status: models.SagaCompensating},
		},
		rescued: 3,
		backlog: 7,
	}
	alerts := &recordingAlerter{}
	w := NewWatchdogService(store, alerts, 30*time.Minute, testLogger())

	w.Sweep(context.Background())

	require.Len(t, alerts.calls, 2)
	assert.Equal(t, router.SeverityCritical, alerts.calls[0])
	assert.Equal(t, []int{staleClaimMinutes}, store.staleCalls)
}

func TestSweep_QuietWhenHealthy(t *testing.T) {
	t.Parallel()

	store := &fakeWatchdogStore{}
	alerts := &recordingAlerter{}
	w := NewWatchdogService(store, alerts, 30*time.Minute, testLogger())

	w.Sweep(context.Background())

	assert.Empty(t, alerts.calls)
}
