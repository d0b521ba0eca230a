package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mediflow/go-booking-saga/internal/models"
)

// RecordOutbox appends an integration event inside the caller's transaction.
// The event id is an idempotency key: a duplicate insert is a silent no-op,
// which makes redelivered handlers safe to re-run end to end.
func RecordOutbox(ctx context.Context, q DBTX, e *models.OutboxEvent) error {
	_, err := q.Exec(ctx, `
		INSERT INTO outbox_events (
			id, aggregate_type, aggregate_id, event_type, payload,
			status, attempts, error_log, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,0,'',$7)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.AggregateType, e.AggregateID, e.EventType, e.Payload,
		models.OutboxPending, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record outbox event: %w", err)
	}
	return nil
}

// EventSeen reports whether an event id was already recorded. Handlers use
// this as the fast-path deduplication check before doing any real work.
func (s *Store) EventSeen(ctx context.Context, eventID uuid.UUID) (bool, error) {
	var seen bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM outbox_events WHERE id = $1)`, eventID,
	).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("failed to check event id: %w", err)
	}
	return seen, nil
}

// FetchAndClaim atomically claims a batch of pending outbox events for this
// relay instance. SKIP LOCKED lets concurrent relays drain the table without
// stepping on each other; claimed rows move to PROCESSING so a crashed relay
// leaves a visible trail for the janitor to rescue.
func (s *Store) FetchAndClaim(ctx context.Context, batchSize int) ([]models.OutboxEvent, error) {
	var events []models.OutboxEvent

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, aggregate_type, aggregate_id, event_type, payload,
			       status, attempts, error_log, created_at, claimed_at, processed_at
			FROM outbox_events
			WHERE status = $1
			ORDER BY created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED`,
			models.OutboxPending, batchSize,
		)
		if err != nil {
			return fmt.Errorf("failed to fetch pending events: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var e models.OutboxEvent
			if err := rows.Scan(
				&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload,
				&e.Status, &e.Attempts, &e.ErrorLog, &e.CreatedAt, &e.ClaimedAt, &e.ProcessedAt,
			); err != nil {
				return fmt.Errorf("failed to scan outbox event: %w", err)
			}
			events = append(events, e)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for i := range events {
			if _, err := tx.Exec(ctx, `
				UPDATE outbox_events
				SET status = $2, claimed_at = CURRENT_TIMESTAMP
				WHERE id = $1`,
				events[i].ID, models.OutboxProcessing,
			); err != nil {
				return fmt.Errorf("failed to claim outbox event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// MarkAsSent records broker acknowledgment. Runs in its own transaction so
// publisher bookkeeping never blocks, or is blocked by, business commits.
func (s *Store) MarkAsSent(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = $2, processed_at = CURRENT_TIMESTAMP
		WHERE id = $1`,
		id, models.OutboxSent,
	)
	return err
}

// MarkAsError parks a poison event and keeps the failure for operators.
func (s *Store) MarkAsError(ctx context.Context, id uuid.UUID, errLog string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = $2, attempts = attempts + 1, error_log = $3
		WHERE id = $1`,
		id, models.OutboxFailed, errLog,
	)
	return err
}

// MarkManyAsPending reverts claimed events so another cycle can pick them
// up, used on graceful shutdown and broker failure mid-batch.
func (s *Store) MarkManyAsPending(ctx context.Context, ids []uuid.UUID, note string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = $2, error_log = $3, claimed_at = NULL
		WHERE id = ANY($1)`,
		ids, models.OutboxPending, note,
	)
	return err
}

// OutboxBacklog counts unpublished events, exported as the lag gauge.
func (s *Store) OutboxBacklog(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM outbox_events WHERE status IN ($1, $2)`,
		models.OutboxPending, models.OutboxProcessing,
	).Scan(&n)
	return n, err
}

// ResetStaleProcessing rescues events stuck in PROCESSING, typically after a
// relay crash between claim and publish. Staleness is judged by the claim
// time, never row age: an old backlog row claimed moments ago is still being
// published and must not be reverted underneath the relay.
func (s *Store) ResetStaleProcessing(ctx context.Context, olderThanMinutes int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = $1, error_log = 'rescued_stale_processing', claimed_at = NULL
		WHERE status = $2
		  AND claimed_at < CURRENT_TIMESTAMP - ($3 * INTERVAL '1 minute')`,
		models.OutboxPending, models.OutboxProcessing, olderThanMinutes,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
