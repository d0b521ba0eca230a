package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mediflow/go-booking-saga/internal/db"
	"github.com/mediflow/go-booking-saga/internal/models"
	"github.com/mediflow/go-booking-saga/internal/router"
	"github.com/mediflow/go-booking-saga/pkg/metrics"
)

// Store is the persistence contract the coordinator drives. Every mutation
// goes through ApplyTransition so state change and outbox append share one
// commit.
type Store interface {
	AppointmentByID(ctx context.Context, id uuid.UUID) (*models.Appointment, error)
	SagaByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*models.SagaState, error)
	EventSeen(ctx context.Context, eventID uuid.UUID) (bool, error)
	ApplyTransition(ctx context.Context, upd db.TransitionUpdate) error
}

// PaymentClient is the synchronous payment collaborator contract. The
// coordinator starts a payment once both identities check out.
type PaymentClient interface {
	CreatePayment(ctx context.Context, appointmentID uuid.UUID, amount float64, method string) error
}

// DefaultPaymentMethod is used when the booking did not specify one.
const DefaultPaymentMethod = "card"

// Coordinator reacts to inbound choreography events: one idempotent handler
// per event type. Handlers only return errors; the router owns routing.
type Coordinator struct {
	store    Store
	payments PaymentClient
	logger   *slog.Logger
}

func NewCoordinator(store Store, payments PaymentClient, logger *slog.Logger) *Coordinator {
	return &Coordinator{store: store, payments: payments, logger: logger}
}

// Register wires every handler into the router. This is the single
// coordinator implementation for saga events.
func (c *Coordinator) Register(r *router.Router) {
	r.Handle(models.EventPatientValidated, handle(c.HandlePatientValidated))
	r.Handle(models.EventDoctorValidated, handle(c.HandleDoctorValidated))
	r.Handle(models.EventValidationFailed, handle(c.HandleValidationFailed))
	r.Handle(models.EventPaymentCompleted, handle(c.HandlePaymentCompleted))
	r.Handle(models.EventPaymentFailed, handle(c.HandlePaymentFailed))
	r.Handle(models.EventRefundProcessed, handle(c.HandleRefundProcessed))
}

// handle adapts a typed handler to the router contract. A payload that does
// not decode can never be processed, so it surfaces as a plain error and
// the router classifies it fatal.
func handle[T any](fn func(ctx context.Context, evt T) error) router.Handler {
	return func(ctx context.Context, msg router.Message) error {
		var evt T
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			return fmt.Errorf("undecodable %s payload: %w", msg.EventType, err)
		}
		return fn(ctx, evt)
	}
}

// advance moves the saga to next if the transition is legal. Transitions
// from a terminal or already-matching state are a no-op, which is what
// keeps handlers safe under at-least-once delivery.
func (c *Coordinator) advance(st *models.SagaState, next models.SagaStatus, step string) bool {
	if st.Status == next || !st.Status.CanTransitionTo(next) {
		c.logger.Debug("Saga transition skipped",
			"saga_id", st.ID, "from", st.Status, "to", next)
		return false
	}
	st.Status = next
	st.CurrentStep = step
	metrics.SagaTransitions.WithLabelValues(string(next)).Inc()
	return true
}

// snapshotEvent builds the full-appointment event emitted on confirmation
// and cancellation. The inbound event id is reused as the idempotency key,
// so a redelivered handler records the same row and the outbox dedupes it.
// amount is the charged amount from the payment event; zero on cancellation
// paths where no charge settled.
func snapshotEvent(eventID uuid.UUID, eventType string, a *models.Appointment, amount float64, reason string) (*models.OutboxEvent, error) {
	payload, err := json.Marshal(models.AppointmentSnapshotEvent{
		EventID:         eventID,
		AppointmentID:   a.ID,
		DoctorID:        a.DoctorID,
		PatientID:       a.PatientID,
		SlotID:          a.SlotID,
		Status:          a.Status,
		ConsultationFee: a.ConsultationFee,
		Amount:          amount,
		TransactionID:   a.TransactionID,
		Reason:          reason,
		Timestamp:       time.Now().UTC(),
	})
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

// loadSaga fetches the saga and its appointment for a correlation id.
func (c *Coordinator) loadSaga(ctx context.Context, appointmentID uuid.UUID) (*models.SagaState, *models.Appointment, error) {
	st, err := c.store.SagaByAppointmentID(ctx, appointmentID)
	if err != nil {
		return nil, nil, err
	}
	a, err := c.store.AppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, nil, err
	}
	return st, a, nil
}
