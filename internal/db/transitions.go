package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mediflow/go-booking-saga/internal/models"
)

// TransitionUpdate bundles everything one saga step mutates. ApplyTransition
// commits the whole bundle atomically, which is what makes the outbox
// pattern hold: the decision and the intent-to-publish share one commit.
type TransitionUpdate struct {
	Appointment *models.Appointment
	Saga        *models.SagaState
	Event       *models.OutboxEvent
	ReleaseSlot *uuid.UUID
}

// ApplyTransition persists a saga step in a single transaction: appointment
// update, saga update, optional outbox append and optional slot release.
func (s *Store) ApplyTransition(ctx context.Context, upd TransitionUpdate) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if upd.Appointment != nil {
			if err := updateAppointment(ctx, tx, upd.Appointment); err != nil {
				return err
			}
		}
		if upd.Saga != nil {
			if err := updateSaga(ctx, tx, upd.Saga); err != nil {
				return err
			}
		}
		if upd.Event != nil {
			if err := RecordOutbox(ctx, tx, upd.Event); err != nil {
				return err
			}
		}
		if upd.ReleaseSlot != nil {
			if err := releaseSlot(ctx, tx, *upd.ReleaseSlot); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateBooking inserts the appointment, its saga state and the
// AppointmentCreated outbox row as one atomic unit. If this commit fails the
// caller compensates by releasing the slot it reserved beforehand.
func (s *Store) CreateBooking(ctx context.Context, a *models.Appointment, st *models.SagaState, e *models.OutboxEvent) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := insertAppointment(ctx, tx, a); err != nil {
			return err
		}
		if err := insertSaga(ctx, tx, st); err != nil {
			return err
		}
		return RecordOutbox(ctx, tx, e)
	})
}
