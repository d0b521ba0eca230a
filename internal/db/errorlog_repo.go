package db

import (
	"context"
	"fmt"

	"github.com/mediflow/go-booking-saga/internal/models"
)

// InsertErrorLog appends an audit row for a failure the router accepted as
// unresolvable in-band.
func (s *Store) InsertErrorLog(ctx context.Context, e *models.EventErrorLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO event_error_logs (
			event_type, payload, error_message, stack_trace, category, created_at
		) VALUES ($1,$2,$3,$4,$5,CURRENT_TIMESTAMP)`,
		e.EventType, e.Payload, e.ErrorMessage, e.StackTrace, e.Category,
	)
	if err != nil {
		return fmt.Errorf("failed to insert error log: %w", err)
	}
	return nil
}
