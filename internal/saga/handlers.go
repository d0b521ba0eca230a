package saga

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mediflow/go-booking-saga/internal/db"
	"github.com/mediflow/go-booking-saga/internal/models"
)

// HandlePatientValidated enriches the appointment with the patient's contact
// details and advances the saga past the patient identity check.
func (c *Coordinator) HandlePatientValidated(ctx context.Context, evt models.PatientValidatedEvent) error {
	st, a, err := c.loadSaga(ctx, evt.AppointmentID)
	if err != nil {
		return err
	}
	if st.Status.IsTerminal() {
		c.logger.Debug("Saga already closed, dropping patient validation",
			"saga_id", st.ID, "status", st.Status)
		return nil
	}

	a.PatientName = evt.Name
	a.PatientEmail = evt.Email
	a.PatientPhone = evt.Phone

	c.advance(st, models.SagaPatientValidated, "patient identity validated")

	if err := c.store.ApplyTransition(ctx, db.TransitionUpdate{Appointment: a, Saga: st}); err != nil {
		return fmt.Errorf("failed to apply patient validation: %w", err)
	}

	c.logger.Info("Patient validated", "appointment_id", a.ID, "saga_id", st.ID)
	return c.maybeStartPayment(ctx, st, a)
}

// HandleDoctorValidated stores the doctor's consultation fee on the
// appointment. Once the identity phase is complete it triggers the payment.
func (c *Coordinator) HandleDoctorValidated(ctx context.Context, evt models.DoctorValidatedEvent) error {
	st, a, err := c.loadSaga(ctx, evt.AppointmentID)
	if err != nil {
		return err
	}
	if st.Status.IsTerminal() {
		c.logger.Debug("Saga already closed, dropping doctor validation",
			"saga_id", st.ID, "status", st.Status)
		return nil
	}

	a.ConsultationFee = evt.ConsultationFee
	st.CurrentStep = "doctor identity validated"

	if err := c.store.ApplyTransition(ctx, db.TransitionUpdate{Appointment: a, Saga: st}); err != nil {
		return fmt.Errorf("failed to apply doctor validation: %w", err)
	}

	c.logger.Info("Doctor validated",
		"appointment_id", a.ID, "saga_id", st.ID, "consultation_fee", evt.ConsultationFee)
	return c.maybeStartPayment(ctx, st, a)
}

// maybeStartPayment asks the payment collaborator for a charge once both
// identity checks cleared (guests skip the patient check) and the fee is
// known. The call is idempotent on the collaborator side, keyed by
// appointment id, so a redelivered validation event cannot double-charge.
func (c *Coordinator) maybeStartPayment(ctx context.Context, st *models.SagaState, a *models.Appointment) error {
	identityDone := st.Status == models.SagaPatientValidated || a.IsGuestBooking()
	if !identityDone || a.ConsultationFee <= 0 || a.Status != models.AppointmentPending {
		return nil
	}

	if err := c.payments.CreatePayment(ctx, a.ID, a.ConsultationFee, DefaultPaymentMethod); err != nil {
		return fmt.Errorf("failed to create payment for appointment %s: %w", a.ID, err)
	}

	c.logger.Info("Payment requested",
		"appointment_id", a.ID, "amount", a.ConsultationFee)
	return nil
}

// HandleValidationFailed compensates a booking whose identity check was
// rejected downstream: the appointment is cancelled, the slot freed and a
// cancellation event emitted.
func (c *Coordinator) HandleValidationFailed(ctx context.Context, evt models.ValidationFailedEvent) error {
	st, a, err := c.loadSaga(ctx, evt.AppointmentID)
	if err != nil {
		return err
	}
	if st.Status.IsTerminal() {
		c.logger.Debug("Saga already closed, dropping validation failure",
			"saga_id", st.ID, "status", st.Status)
		return nil
	}

	c.logger.Warn("Validation failed, compensating booking",
		"appointment_id", a.ID, "saga_id", st.ID, "reason", evt.Reason)
	return c.compensate(ctx, st, a, evt.EventID, evt.Reason)
}

// HandlePaymentCompleted confirms the appointment: the booking becomes
// CONFIRMED and the full snapshot goes out for scheduling and notification
// consumers. Redeliveries are absorbed by the seen-event fast path and the
// state machine.
func (c *Coordinator) HandlePaymentCompleted(ctx context.Context, evt models.PaymentCompletedEvent) error {
	seen, err := c.store.EventSeen(ctx, evt.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event dedupe: %w", err)
	}
	if seen {
		c.logger.Debug("Duplicate payment completion, skipping", "event_id", evt.EventID)
		return nil
	}

	st, a, err := c.loadSaga(ctx, evt.AppointmentID)
	if err != nil {
		return err
	}
	if st.Status.IsTerminal() || !a.Status.CanTransitionTo(models.AppointmentConfirmed) {
		c.logger.Debug("Payment completion no longer applicable",
			"saga_id", st.ID, "saga_status", st.Status, "appointment_status", a.Status)
		return nil
	}

	a.Status = models.AppointmentConfirmed
	a.TransactionID = evt.TransactionID
	c.advance(st, models.SagaPaymentCompleted, "payment completed")

	confirmed, err := snapshotEvent(evt.EventID, models.EventAppointmentConfirmed, a, evt.Amount, "")
	if err != nil {
		return err
	}

	if err := c.store.ApplyTransition(ctx, db.TransitionUpdate{
		Appointment: a,
		Saga:        st,
		Event:       confirmed,
	}); err != nil {
		return fmt.Errorf("failed to confirm appointment %s: %w", a.ID, err)
	}

	c.logger.Info("Appointment confirmed",
		"appointment_id", a.ID, "transaction_id", evt.TransactionID, "amount", evt.Amount)
	return nil
}

// HandlePaymentFailed compensates a confirmed charge failure. An ambiguous
// gateway result (ConfirmedFailure=false) leaves the booking untouched: the
// reconciler will either see a later payment.completed or a confirmed
// failure.
func (c *Coordinator) HandlePaymentFailed(ctx context.Context, evt models.PaymentFailedEvent) error {
	st, a, err := c.loadSaga(ctx, evt.AppointmentID)
	if err != nil {
		return err
	}
	if st.Status.IsTerminal() {
		c.logger.Debug("Saga already closed, dropping payment failure",
			"saga_id", st.ID, "status", st.Status)
		return nil
	}

	if !evt.ConfirmedFailure {
		c.logger.Warn("Ambiguous payment failure, holding booking for reconciliation",
			"appointment_id", a.ID, "saga_id", st.ID, "reason", evt.Reason)
		return nil
	}

	c.logger.Warn("Payment failed, compensating booking",
		"appointment_id", a.ID, "saga_id", st.ID, "reason", evt.Reason)
	return c.compensate(ctx, st, a, evt.EventID, evt.Reason)
}

// HandleRefundProcessed closes a user-initiated cancellation. The
// appointment is cancelled either way; a failed refund leaves the saga
// FAILED with the collaborator's error retained for manual follow-up.
func (c *Coordinator) HandleRefundProcessed(ctx context.Context, evt models.RefundProcessedEvent) error {
	st, a, err := c.loadSaga(ctx, evt.AppointmentID)
	if err != nil {
		return err
	}
	if st.Status.IsTerminal() {
		c.logger.Debug("Saga already closed, dropping refund result",
			"saga_id", st.ID, "status", st.Status)
		return nil
	}

	reason := "cancellation refund processed"
	if !evt.Success {
		reason = "refund failed: " + evt.ErrorMessage
	}

	upd := db.TransitionUpdate{Saga: st, ReleaseSlot: &a.SlotID}
	if a.Status.CanTransitionTo(models.AppointmentCancelled) {
		a.Status = models.AppointmentCancelled
		upd.Appointment = a
	}

	cancelled, err := snapshotEvent(evt.EventID, models.EventAppointmentCancelled, a, 0, reason)
	if err != nil {
		return err
	}
	upd.Event = cancelled

	c.advance(st, models.SagaCompensating, "awaiting refund")
	if evt.Success {
		c.advance(st, models.SagaCompensated, "cancellation complete")
	} else {
		st.FailureReason = evt.ErrorMessage
		c.advance(st, models.SagaFailed, "refund failed")
	}

	if err := c.store.ApplyTransition(ctx, upd); err != nil {
		return fmt.Errorf("failed to close cancellation for appointment %s: %w", a.ID, err)
	}

	if evt.Success {
		c.logger.Info("Cancellation completed",
			"appointment_id", a.ID, "refund_amount", evt.RefundAmount)
	} else {
		c.logger.Error("Refund failed, appointment cancelled with saga marked FAILED",
			"appointment_id", a.ID, "error", evt.ErrorMessage)
	}
	return nil
}

// compensate rolls a booking back in two steps: first the atomic
// cancel + slot release + cancellation event with the saga in COMPENSATING,
// then the terminal COMPENSATED mark. A crash between the two leaves the
// saga in COMPENSATING, where the stuck-saga watchdog or a redelivery picks
// it up.
func (c *Coordinator) compensate(ctx context.Context, st *models.SagaState, a *models.Appointment, eventID uuid.UUID, reason string) error {
	upd := db.TransitionUpdate{Saga: st, ReleaseSlot: &a.SlotID}

	c.advance(st, models.SagaCompensating, "compensating booking")
	st.FailureReason = reason

	if a.Status.CanTransitionTo(models.AppointmentCancelled) {
		a.Status = models.AppointmentCancelled
		upd.Appointment = a
	}

	cancelled, err := snapshotEvent(eventID, models.EventAppointmentCancelled, a, 0, reason)
	if err != nil {
		return err
	}
	upd.Event = cancelled

	if err := c.store.ApplyTransition(ctx, upd); err != nil {
		return fmt.Errorf("failed to compensate appointment %s: %w", a.ID, err)
	}

	if c.advance(st, models.SagaCompensated, "compensation complete") {
		if err := c.store.ApplyTransition(ctx, db.TransitionUpdate{Saga: st}); err != nil {
			return fmt.Errorf("failed to close compensation for appointment %s: %w", a.ID, err)
		}
	}

	c.logger.Info("Booking compensated", "appointment_id", a.ID, "reason", reason)
	return nil
}
