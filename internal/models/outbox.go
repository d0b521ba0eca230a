package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Outbox row lifecycle. Rows are appended in the same transaction as the
// business mutation that caused them and published asynchronously by the
// relay; they are never deleted.
const (
	OutboxPending    = "PENDING"
	OutboxProcessing = "PROCESSING"
	OutboxSent       = "SENT"
	OutboxFailed     = "FAILED"
)

// OutboxEvent is an integration event awaiting publication to the broker.
// ID is the caller-supplied idempotency key: inserting the same id twice is
// a no-op.
type OutboxEvent struct {
	ID            uuid.UUID       `db:"id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   uuid.UUID       `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	Status        string          `db:"status"`
	Attempts      int             `db:"attempts"`
	ErrorLog      string          `db:"error_log"`
	CreatedAt     time.Time       `db:"created_at"`
	ClaimedAt     *time.Time      `db:"claimed_at"`
	ProcessedAt   *time.Time      `db:"processed_at"`
}

// EstimateBytes approximates the in-memory footprint of the row, used by the
// relay to spot batches that risk memory pressure.
func (e *OutboxEvent) EstimateBytes() int {
	return len(e.Payload) + len(e.EventType) + len(e.AggregateType) + 64
}
