package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mediflow/go-booking-saga/internal/models"
	"github.com/mediflow/go-booking-saga/pkg/metrics"
)

// MaxBatchMemoryThresholdMB flags batches whose payloads risk memory
// pressure when the relay falls behind and catches up in large bites.
const MaxBatchMemoryThresholdMB = 20

// OutboxRepository defines the contract for outbox persistence.
type OutboxRepository interface {
	FetchAndClaim(ctx context.Context, batchSize int) ([]models.OutboxEvent, error)
	MarkAsSent(ctx context.Context, id uuid.UUID) error
	MarkAsError(ctx context.Context, id uuid.UUID, errLog string) error
	MarkManyAsPending(ctx context.Context, ids []uuid.UUID, note string) error
}

// EventPublisher defines the contract for confirmed broker publishing.
type EventPublisher interface {
	PublishEvent(ctx context.Context, routingKey, eventID, aggregateID string, body []byte) error
}

// RelayService drains the transactional outbox into the broker: claim a
// batch, publish each event with confirms, checkpoint it as sent.
type RelayService struct {
	repo   OutboxRepository
	broker EventPublisher
	logger *slog.Logger
}

func NewRelayService(r OutboxRepository, b EventPublisher, l *slog.Logger) *RelayService {
	return &RelayService{
		repo:   r,
		broker: b,
		logger: l,
	}
}

// ProcessNextBatch claims and publishes one batch of pending events.
// It reacts to shutdown signals between events and reverts unpublished
// claims atomically, so a dying relay never strands PROCESSING rows.
func (s *RelayService) ProcessNextBatch(ctx context.Context, batchSize int) error {
	start := time.Now()

	events, err := s.repo.FetchAndClaim(ctx, batchSize)
	if err != nil {
		return fmt.Errorf("fetch failure: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	metrics.BatchSize.Observe(float64(len(events)))

	defer func() {
		metrics.BatchDuration.Observe(time.Since(start).Seconds())

		s.logger.Info("Batch cycle telemetry",
			"count", len(events),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()

	var batchBytes int
	for _, e := range events {
		batchBytes += e.EstimateBytes()
	}
	if batchMB := batchBytes / (1024 * 1024); batchMB > MaxBatchMemoryThresholdMB {
		s.logger.Warn("Heavy batch detected: memory pressure risk",
			"size_mb", batchMB,
			"threshold_mb", MaxBatchMemoryThresholdMB,
			"count", len(events),
		)
	}

	for i, e := range events {
		select {
		case <-ctx.Done():
			s.logger.Warn("Shutdown signal received. Reverting remaining events.")
			s.revertRemaining(events, i, "graceful_shutdown")
			return ctx.Err()
		default:
		}

		l := s.logger.With("event_id", e.ID, "event_type", e.EventType)

		// The event type doubles as the routing key; anything that does
		// not look like one is a poison row, parked instead of retried.
		if !isRoutableEvent(e) {
			l.Error("Unroutable outbox event, parking", "aggregate_type", e.AggregateType)
			_ = s.repo.MarkAsError(ctx, e.ID, "unroutable_event")
			metrics.EventsPublished.WithLabelValues("error", e.EventType).Inc()
			continue
		}

		if err := s.broker.PublishEvent(ctx, e.EventType, e.ID.String(), e.AggregateID.String(), e.Payload); err != nil {
			l.Error("Broker publish failed, aborting batch", "error", err)
			s.revertRemaining(events, i, "broker_offline")
			metrics.EventsPublished.WithLabelValues("error", e.EventType).Inc()
			return fmt.Errorf("broker failure: %w", err)
		}

		if err := s.repo.MarkAsSent(ctx, e.ID); err != nil {
			l.Error("Event published but failed to checkpoint in DB", "error", err)
			if i+1 < len(events) {
				s.revertRemaining(events, i+1, "db_checkpoint_failure")
			}
			metrics.EventsPublished.WithLabelValues("error", e.EventType).Inc()
			return fmt.Errorf("db checkpoint failure: %w", err)
		}

		metrics.EventsPublished.WithLabelValues("sent", e.EventType).Inc()
	}

	return nil
}

// revertRemaining puts the unpublished tail of a batch back to PENDING on a
// fresh context, since the original one may already be cancelled.
func (s *RelayService) revertRemaining(events []models.OutboxEvent, start int, note string) {
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ids := make([]uuid.UUID, 0, len(events)-start)
	for i := start; i < len(events); i++ {
		ids = append(ids, events[i].ID)
	}

	if err := s.repo.MarkManyAsPending(cleanupCtx, ids, note); err != nil {
		s.logger.Error("CRITICAL: Failed to revert claimed events",
			"error", err, "count", len(ids), "note", note)
	}
}

func isRoutableEvent(e models.OutboxEvent) bool {
	return e.EventType != "" && e.AggregateType == models.AggregateAppointment && len(e.Payload) > 0
}
