package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mediflow/go-booking-saga/internal/models"
)

const sagaColumns = `
	id, appointment_id, status, current_step, failure_reason, created_at, updated_at
`

// SagaByAppointmentID resolves the saga orchestrating an appointment, or
// ErrSagaNotFound.
func (s *Store) SagaByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*models.SagaState, error) {
	return scanSaga(s.pool.QueryRow(ctx,
		`SELECT `+sagaColumns+` FROM saga_states WHERE appointment_id = $1`, appointmentID))
}

func scanSaga(row pgx.Row) (*models.SagaState, error) {
	var st models.SagaState
	err := row.Scan(
		&st.ID, &st.AppointmentID, &st.Status, &st.CurrentStep,
		&st.FailureReason, &st.CreatedAt, &st.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrSagaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan saga state: %w", err)
	}
	return &st, nil
}

func insertSaga(ctx context.Context, q DBTX, st *models.SagaState) error {
	_, err := q.Exec(ctx, `
		INSERT INTO saga_states (
			id, appointment_id, status, current_step, failure_reason, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		st.ID, st.AppointmentID, st.Status, st.CurrentStep, st.FailureReason,
		st.CreatedAt, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert saga state: %w", err)
	}
	return nil
}

func updateSaga(ctx context.Context, q DBTX, st *models.SagaState) error {
	tag, err := q.Exec(ctx, `
		UPDATE saga_states SET
			status = $2, current_step = $3, failure_reason = $4,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`,
		st.ID, st.Status, st.CurrentStep, st.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("failed to update saga state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrSagaNotFound
	}
	return nil
}

// StuckSagas lists sagas that entered COMPENSATING before the cutoff and
// never resolved. Consumed by the watchdog sweep; the coordinator itself
// carries no timers.
func (s *Store) StuckSagas(ctx context.Context, olderThan time.Duration) ([]models.SagaState, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sagaColumns+`
		FROM saga_states
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC`,
		models.SagaCompensating, time.Now().UTC().Add(-olderThan),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck sagas: %w", err)
	}
	defer rows.Close()

	var out []models.SagaState
	for rows.Next() {
		var st models.SagaState
		if err := rows.Scan(
			&st.ID, &st.AppointmentID, &st.Status, &st.CurrentStep,
			&st.FailureReason, &st.CreatedAt, &st.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stuck saga: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
