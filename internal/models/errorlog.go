package models

import (
	"encoding/json"
	"time"
)

// EventErrorLog categories. BUSINESS_ERROR means a retry can never succeed,
// FATAL_ERROR means the message was dead-lettered, DLQ_SEND_FAILED means the
// dead-letter publish itself failed and the payload survives only here.
const (
	ErrorCategoryBusiness      = "BUSINESS_ERROR"
	ErrorCategoryFatal         = "FATAL_ERROR"
	ErrorCategoryDLQSendFailed = "DLQ_SEND_FAILED"
)

// EventErrorLog is an append-only audit row written by the error router for
// every failure it accepts as unresolvable in-band.
type EventErrorLog struct {
	ID           int64           `db:"id"`
	EventType    string          `db:"event_type"`
	Payload      json.RawMessage `db:"payload"`
	ErrorMessage string          `db:"error_message"`
	StackTrace   string          `db:"stack_trace"`
	Category     string          `db:"category"`
	CreatedAt    time.Time       `db:"created_at"`
}
