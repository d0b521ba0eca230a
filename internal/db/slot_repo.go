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

// ReserveSlot acquires an exclusive row lock on the slot and flips it to
// unavailable. Two concurrent reserve calls serialize on the lock: the loser
// observes is_available = false and gets ErrSlotAlreadyBooked. The lock is
// held for exactly this transaction and never spans a network call.
func (s *Store) ReserveSlot(ctx context.Context, slotID, doctorID uuid.UUID) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var slot models.Slot
		err := tx.QueryRow(ctx, `
			SELECT id, doctor_id, date, start_time, end_time, is_available, updated_at
			FROM slots
			WHERE id = $1
			FOR UPDATE`,
			slotID,
		).Scan(&slot.ID, &slot.DoctorID, &slot.Date, &slot.StartTime,
			&slot.EndTime, &slot.IsAvailable, &slot.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrSlotNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock slot: %w", err)
		}

		if slot.DoctorID != doctorID {
			return models.ErrSlotDoctorMismatch
		}
		if slot.InPast(time.Now().UTC()) {
			return models.ErrSlotInPast
		}
		if !slot.IsAvailable {
			return models.ErrSlotAlreadyBooked
		}

		_, err = tx.Exec(ctx, `
			UPDATE slots SET is_available = FALSE, updated_at = CURRENT_TIMESTAMP
			WHERE id = $1`,
			slotID,
		)
		if err != nil {
			return fmt.Errorf("failed to reserve slot: %w", err)
		}
		return nil
	})
}

// ReleaseSlot is the compensating action for a successful reservation.
// Idempotent: releasing a free or missing slot is not an error.
func (s *Store) ReleaseSlot(ctx context.Context, slotID uuid.UUID) error {
	return releaseSlot(ctx, s.pool, slotID)
}

func releaseSlot(ctx context.Context, q DBTX, slotID uuid.UUID) error {
	_, err := q.Exec(ctx, `
		UPDATE slots SET is_available = TRUE, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`,
		slotID,
	)
	if err != nil {
		return fmt.Errorf("failed to release slot: %w", err)
	}
	return nil
}

// SlotByID returns a point-in-time snapshot of the slot, without locking.
func (s *Store) SlotByID(ctx context.Context, slotID uuid.UUID) (*models.Slot, error) {
	var slot models.Slot
	err := s.pool.QueryRow(ctx, `
		SELECT id, doctor_id, date, start_time, end_time, is_available, updated_at
		FROM slots WHERE id = $1`,
		slotID,
	).Scan(&slot.ID, &slot.DoctorID, &slot.Date, &slot.StartTime,
		&slot.EndTime, &slot.IsAvailable, &slot.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load slot: %w", err)
	}
	return &slot, nil
}
