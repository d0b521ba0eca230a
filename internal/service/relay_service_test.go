package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediflow/go-booking-saga/internal/models"
)

type fakeOutboxRepo struct {
	pending []models.OutboxEvent

	sent     []uuid.UUID
	errored  []uuid.UUID
	reverted []uuid.UUID
	notes    []string

	markSentErr error
}

func (f *fakeOutboxRepo) FetchAndClaim(_ context.Context, batchSize int) ([]models.OutboxEvent, error) {
	if batchSize > len(f.pending) {
		batchSize = len(f.pending)
	}
	batch := f.pending[:batchSize]
	f.pending = f.pending[batchSize:]
	return batch, nil
}

func (f *fakeOutboxRepo) MarkAsSent(_ context.Context, id uuid.UUID) error {
	if f.markSentErr != nil {
		return f.markSentErr
	}
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeOutboxRepo) MarkAsError(_ context.Context, id uuid.UUID, _ string) error {
	f.errored = append(f.errored, id)
	return nil
}

func (f *fakeOutboxRepo) MarkManyAsPending(_ context.Context, ids []uuid.UUID, note string) error {
	f.reverted = append(f.reverted, ids...)
	f.notes = append(f.notes, note)
	return nil
}

type fakePublisher struct {
	published []string // routing keys in order
	failAfter int      // fail on the Nth publish (1-based); 0 = never
}

func (f *fakePublisher) PublishEvent(_ context.Context, routingKey, _, _ string, _ []byte) error {
	if f.failAfter > 0 && len(f.published)+1 >= f.failAfter {
		return errors.New("broker connection is closed")
	}
	f.published = append(f.published, routingKey)
	return nil
}

func outboxEvent(eventType string) models.OutboxEvent {
	payload, _ := json.Marshal(map[string]string{"k": "v"})
	return models.OutboxEvent{
		ID:            uuid.New(),
		AggregateType: models.AggregateAppointment,
		AggregateID:   uuid.New(),
		EventType:     eventType,
		Payload:       payload,
		Status:        models.OutboxPending,
		CreatedAt:     time.Now(),
	}
}

func TestProcessNextBatch_PublishesAndCheckpoints(t *testing.T) {
	t.Parallel()

	repo := &fakeOutboxRepo{pending: []models.OutboxEvent{
		outboxEvent(models.EventAppointmentCreated),
		outboxEvent(models.EventAppointmentConfirmed),
	}}
	pub := &fakePublisher{}
	relay := NewRelayService(repo, pub, testLogger())

	err := relay.ProcessNextBatch(context.Background(), 10)
	require.NoError(t, err)

	// Insertion order is publish order, which keys per-appointment ordering.
	assert.Equal(t, []string{models.EventAppointmentCreated, models.EventAppointmentConfirmed}, pub.published)
	assert.Len(t, repo.sent, 2)
	assert.Empty(t, repo.reverted)
}

func TestProcessNextBatch_EmptyOutboxIsQuiet(t *testing.T) {
	t.Parallel()

	repo := &fakeOutboxRepo{}
	relay := NewRelayService(repo, &fakePublisher{}, testLogger())

	require.NoError(t, relay.ProcessNextBatch(context.Background(), 10))
}

func TestProcessNextBatch_BrokerFailureRevertsRemainder(t *testing.T) {
	t.Parallel()

	events := []models.OutboxEvent{
		outboxEvent(models.EventAppointmentCreated),
		outboxEvent(models.EventAppointmentConfirmed),
		outboxEvent(models.EventAppointmentCancelled),
	}
	repo := &fakeOutboxRepo{pending: events}
	pub := &fakePublisher{failAfter: 2}
	relay := NewRelayService(repo, pub, testLogger())

	err := relay.ProcessNextBatch(context.Background(), 10)
	require.Error(t, err)

	// First event made it through; the failed one and the tail go back to
	// PENDING for the next cycle.
	assert.Len(t, repo.sent, 1)
	assert.Equal(t, []uuid.UUID{events[1].ID, events[2].ID}, repo.reverted)
	assert.Equal(t, []string{"broker_offline"}, repo.notes)
}

func TestProcessNextBatch_CheckpointFailureRevertsTail(t *testing.T) {
	t.Parallel()

	events := []models.OutboxEvent{
		outboxEvent(models.EventAppointmentCreated),
		outboxEvent(models.EventAppointmentConfirmed),
	}
	repo := &fakeOutboxRepo{pending: events, markSentErr: errors.New("db down")}
	relay := NewRelayService(repo, &fakePublisher{}, testLogger())

	err := relay.ProcessNextBatch(context.Background(), 10)
	require.Error(t, err)

	// The already-published event is NOT reverted: redelivering it is safe
	// under at-least-once, republishing from scratch is the fallback.
	assert.Equal(t, []uuid.UUID{events[1].ID}, repo.reverted)
}

func TestProcessNextBatch_UnroutableEventIsParked(t *testing.T) {
	t.Parallel()

	bad := outboxEvent("")
	good := outboxEvent(models.EventAppointmentCreated)
	repo := &fakeOutboxRepo{pending: []models.OutboxEvent{bad, good}}
	pub := &fakePublisher{}
	relay := NewRelayService(repo, pub, testLogger())

	err := relay.ProcessNextBatch(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{bad.ID}, repo.errored)
	assert.Equal(t, []string{models.EventAppointmentCreated}, pub.published)
}

func TestProcessNextBatch_ShutdownRevertsRemainder(t *testing.T) {
	t.Parallel()

	events := []models.OutboxEvent{
		outboxEvent(models.EventAppointmentCreated),
		outboxEvent(models.EventAppointmentConfirmed),
	}
	repo := &fakeOutboxRepo{pending: events}
	relay := NewRelayService(repo, &fakePublisher{}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := relay.ProcessNextBatch(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []uuid.UUID{events[0].ID, events[1].ID}, repo.reverted)
	assert.Equal(t, []string{"graceful_shutdown"}, repo.notes)
}
