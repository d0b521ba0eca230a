package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mediflow/go-booking-saga/internal/db"
	"github.com/mediflow/go-booking-saga/internal/models"
	"github.com/mediflow/go-booking-saga/internal/validate"
	"github.com/mediflow/go-booking-saga/pkg/metrics"
)

// BookingStore defines the persistence contract for the booking entrypoints.
type BookingStore interface {
	ReserveSlot(ctx context.Context, slotID, doctorID uuid.UUID) error
	ReleaseSlot(ctx context.Context, slotID uuid.UUID) error
	SlotByID(ctx context.Context, slotID uuid.UUID) (*models.Slot, error)
	CreateBooking(ctx context.Context, a *models.Appointment, st *models.SagaState, e *models.OutboxEvent) error
	AppointmentByID(ctx context.Context, id uuid.UUID) (*models.Appointment, error)
	SagaByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*models.SagaState, error)
	ApplyTransition(ctx context.Context, upd db.TransitionUpdate) error
}

// IdentityGate runs the synchronous pre-flight identity checks.
type IdentityGate interface {
	Validate(ctx context.Context, doctorID, patientID uuid.UUID) (*validate.UserInfo, error)
}

// CreateAppointmentInput is the booking request. A zero PatientID means a
// guest booking.
type CreateAppointmentInput struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	SlotID    uuid.UUID
	Notes     string
}

// BookingService owns the synchronous appointment operations: create,
// cancel and complete. Everything downstream of these runs through the
// choreography.
type BookingService struct {
	store  BookingStore
	gate   IdentityGate
	logger *slog.Logger
}

func NewBookingService(store BookingStore, gate IdentityGate, logger *slog.Logger) *BookingService {
	return &BookingService{store: store, gate: gate, logger: logger}
}

// CreateAppointment books a slot: identity pre-flight, exclusive slot
// reservation, then the atomic appointment + saga + outbox insert. If that
// final commit fails the reservation is compensated immediately, so a slot
// is never left booked without an appointment.
func (s *BookingService) CreateAppointment(ctx context.Context, in CreateAppointmentInput) (*models.Appointment, error) {
	doctor, err := s.gate.Validate(ctx, in.DoctorID, in.PatientID)
	if err != nil {
		return nil, err
	}

	if err := s.store.ReserveSlot(ctx, in.SlotID, in.DoctorID); err != nil {
		if errors.Is(err, models.ErrSlotAlreadyBooked) {
			metrics.SlotConflicts.Inc()
		}
		return nil, err
	}

	slot, err := s.store.SlotByID(ctx, in.SlotID)
	if err != nil {
		s.releaseReservation(in.SlotID)
		return nil, err
	}

	now := time.Now().UTC()
	a := &models.Appointment{
		ID:              uuid.New(),
		DoctorID:        in.DoctorID,
		PatientID:       in.PatientID,
		SlotID:          in.SlotID,
		Status:          models.AppointmentPending,
		ConsultationFee: doctor.ConsultationFee,
		Notes:           in.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	st := &models.SagaState{
		ID:            uuid.New(),
		AppointmentID: a.ID,
		Status:        models.SagaDoctorValidated,
		CurrentStep:   "booking created",
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	created, err := createdEvent(a, st, slot)
	if err != nil {
		s.releaseReservation(in.SlotID)
		return nil, err
	}

	if err := s.store.CreateBooking(ctx, a, st, created); err != nil {
		s.logger.Error("Booking commit failed, releasing reserved slot",
			"slot_id", in.SlotID, "error", err)
		s.releaseReservation(in.SlotID)
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	metrics.SagaTransitions.WithLabelValues(string(models.SagaDoctorValidated)).Inc()
	s.logger.Info("Appointment created",
		"appointment_id", a.ID, "saga_id", st.ID,
		"doctor_id", in.DoctorID, "slot_id", in.SlotID, "guest", a.IsGuestBooking())
	return a, nil
}

// CancelAppointment starts a user-initiated cancellation. Unpaid bookings
// cancel locally in one commit. Paid ones enter compensation: the booking
// moves to CANCELLING and a refund request goes out; the refund result event
// closes the saga.
func (s *BookingService) CancelAppointment(ctx context.Context, appointmentID uuid.UUID, reason, cancelledBy string) error {
	a, err := s.store.AppointmentByID(ctx, appointmentID)
	if err != nil {
		return err
	}
	st, err := s.store.SagaByAppointmentID(ctx, appointmentID)
	if err != nil {
		return err
	}

	// Terminal bookings and in-flight cancellations reject a second request.
	if a.Status.IsTerminal() || a.Status == models.AppointmentCancelling {
		return models.ErrSagaClosed
	}

	// No charge happened yet: cancel and free the slot in one commit.
	if a.TransactionID == "" {
		a.Status = models.AppointmentCancelled
		st.Status = models.SagaCompensated
		st.CurrentStep = "cancelled before payment"
		st.FailureReason = reason

		cancelled, err := cancellationEvent(uuid.New(), models.EventAppointmentCancelled, a, st, reason, cancelledBy)
		if err != nil {
			return err
		}
		if err := s.store.ApplyTransition(ctx, db.TransitionUpdate{
			Appointment: a,
			Saga:        st,
			Event:       cancelled,
			ReleaseSlot: &a.SlotID,
		}); err != nil {
			return fmt.Errorf("failed to cancel appointment %s: %w", appointmentID, err)
		}

		metrics.SagaTransitions.WithLabelValues(string(models.SagaCompensated)).Inc()
		s.logger.Info("Appointment cancelled before payment",
			"appointment_id", appointmentID, "cancelled_by", cancelledBy)
		return nil
	}

	a.Status = models.AppointmentCancelling
	st.Status = models.SagaCompensating
	st.CurrentStep = "awaiting refund"
	st.FailureReason = reason

	initiated, err := cancellationEvent(uuid.New(), models.EventCancellationStarted, a, st, reason, cancelledBy)
	if err != nil {
		return err
	}
	if err := s.store.ApplyTransition(ctx, db.TransitionUpdate{
		Appointment: a,
		Saga:        st,
		Event:       initiated,
	}); err != nil {
		return fmt.Errorf("failed to initiate cancellation for %s: %w", appointmentID, err)
	}

	metrics.SagaTransitions.WithLabelValues(string(models.SagaCompensating)).Inc()
	s.logger.Info("Cancellation initiated, refund requested",
		"appointment_id", appointmentID, "cancelled_by", cancelledBy)
	return nil
}

// CompleteAppointment marks a confirmed visit as done and closes the saga.
func (s *BookingService) CompleteAppointment(ctx context.Context, appointmentID uuid.UUID) error {
	a, err := s.store.AppointmentByID(ctx, appointmentID)
	if err != nil {
		return err
	}
	st, err := s.store.SagaByAppointmentID(ctx, appointmentID)
	if err != nil {
		return err
	}

	if !a.Status.CanTransitionTo(models.AppointmentCompleted) {
		return models.ErrSagaClosed
	}

	a.Status = models.AppointmentCompleted
	if st.Status.CanTransitionTo(models.SagaCompleted) {
		st.Status = models.SagaCompleted
		st.CurrentStep = "visit completed"
		metrics.SagaTransitions.WithLabelValues(string(models.SagaCompleted)).Inc()
	}

	if err := s.store.ApplyTransition(ctx, db.TransitionUpdate{Appointment: a, Saga: st}); err != nil {
		return fmt.Errorf("failed to complete appointment %s: %w", appointmentID, err)
	}

	s.logger.Info("Appointment completed", "appointment_id", appointmentID)
	return nil
}

// releaseReservation compensates a slot reservation on a fresh context so
// the rollback survives caller cancellation.
func (s *BookingService) releaseReservation(slotID uuid.UUID) {
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.store.ReleaseSlot(cleanupCtx, slotID); err != nil {
		s.logger.Error("CRITICAL: Failed to release slot after booking failure",
			"slot_id", slotID, "error", err)
	}
}

func createdEvent(a *models.Appointment, st *models.SagaState, slot *models.Slot) (*models.OutboxEvent, error) {
	eventID := uuid.New()
	payload, err := json.Marshal(models.AppointmentCreatedEvent{
		EventID:       eventID,
		SagaID:        st.ID,
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		SlotID:        a.SlotID,
		StartTime:     slot.StartTime,
		EndTime:       slot.EndTime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal created event: %w", err)
	}
	return &models.OutboxEvent{
		ID:            eventID,
		AggregateType: models.AggregateAppointment,
		AggregateID:   a.ID,
		EventType:     models.EventAppointmentCreated,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

func cancellationEvent(eventID uuid.UUID, eventType string, a *models.Appointment, st *models.SagaState, reason, cancelledBy string) (*models.OutboxEvent, error) {
	var payload []byte
	var err error

	switch eventType {
	case models.EventCancellationStarted:
		payload, err = json.Marshal(models.CancellationInitiatedEvent{
			EventID:       eventID,
			SagaID:        st.ID,
			AppointmentID: a.ID,
			Reason:        reason,
			CancelledBy:   cancelledBy,
		})
	default:
		payload, err = json.Marshal(models.AppointmentSnapshotEvent{
			EventID:         eventID,
			AppointmentID:   a.ID,
			DoctorID:        a.DoctorID,
			PatientID:       a.PatientID,
			SlotID:          a.SlotID,
			Status:          a.Status,
			ConsultationFee: a.ConsultationFee,
			TransactionID:   a.TransactionID,
			Reason:          reason,
			Timestamp:       time.Now().UTC(),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	return &models.OutboxEvent{
		ID:            eventID,
		AggregateType: models.AggregateAppointment,
		AggregateID:   a.ID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}, nil
}
