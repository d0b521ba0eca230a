package models

import (
	"time"

	"github.com/google/uuid"
)

// Integration event types. The value doubles as the broker routing key, so
// the topic a payload lands on is derived directly from its event type.
const (
	EventAppointmentCreated   = "appointment.created"
	EventPatientValidated     = "validation.patient.validated"
	EventDoctorValidated      = "validation.doctor.validated"
	EventValidationFailed     = "validation.failed"
	EventPaymentCompleted     = "payment.completed"
	EventPaymentFailed        = "payment.failed"
	EventRefundProcessed      = "payment.refund.processed"
	EventCancellationStarted  = "appointment.cancellation.initiated"
	EventAppointmentConfirmed = "appointment.confirmed"
	EventAppointmentCancelled = "appointment.cancelled"
)

// AggregateAppointment is the aggregate type for every event the saga
// engine emits. All events for one appointment share the aggregate id, which
// keys the broker ordering guarantee.
const AggregateAppointment = "appointment"

// SagaEventTypes lists the routing keys the saga coordinator consumes.
var SagaEventTypes = []string{
	EventPatientValidated,
	EventDoctorValidated,
	EventValidationFailed,
	EventPaymentCompleted,
	EventPaymentFailed,
	EventRefundProcessed,
}

// AppointmentCreatedEvent starts the downstream validation choreography.
type AppointmentCreatedEvent struct {
	EventID       uuid.UUID `json:"event_id"`
	SagaID        uuid.UUID `json:"saga_id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	SlotID        uuid.UUID `json:"slot_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
}

// PatientValidatedEvent carries patient contact details from the identity
// collaborator.
type PatientValidatedEvent struct {
	EventID       uuid.UUID `json:"event_id"`
	SagaID        uuid.UUID `json:"saga_id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
}

// DoctorValidatedEvent carries the doctor's consultation fee.
type DoctorValidatedEvent struct {
	EventID         uuid.UUID `json:"event_id"`
	SagaID          uuid.UUID `json:"saga_id"`
	AppointmentID   uuid.UUID `json:"appointment_id"`
	ConsultationFee float64   `json:"consultation_fee"`
}

// ValidationFailedEvent signals that a downstream identity check rejected
// the booking.
type ValidationFailedEvent struct {
	EventID       uuid.UUID `json:"event_id"`
	SagaID        uuid.UUID `json:"saga_id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Reason        string    `json:"reason"`
}

// PaymentCompletedEvent arrives from the payment collaborator after a
// successful charge.
type PaymentCompletedEvent struct {
	EventID       uuid.UUID `json:"event_id"`
	PaymentID     uuid.UUID `json:"payment_id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Amount        float64   `json:"amount"`
	TransactionID string    `json:"transaction_id"`
	PaymentDate   time.Time `json:"payment_date"`
}

// PaymentFailedEvent arrives when a charge fails. ConfirmedFailure=false
// marks an ambiguous gateway result: the appointment stays PENDING for a
// reconciling query instead of being cancelled on a guess.
type PaymentFailedEvent struct {
	EventID          uuid.UUID `json:"event_id"`
	AppointmentID    uuid.UUID `json:"appointment_id"`
	Reason           string    `json:"reason"`
	ConfirmedFailure bool      `json:"confirmed_failure"`
}

// CancellationInitiatedEvent asks the payment collaborator for a refund.
type CancellationInitiatedEvent struct {
	EventID       uuid.UUID `json:"event_id"`
	SagaID        uuid.UUID `json:"saga_id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Reason        string    `json:"reason"`
	CancelledBy   string    `json:"cancelled_by"`
}

// RefundProcessedEvent reports the refund outcome during compensation.
type RefundProcessedEvent struct {
	EventID       uuid.UUID `json:"event_id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	PaymentID     uuid.UUID `json:"payment_id"`
	Success       bool      `json:"success"`
	RefundAmount  float64   `json:"refund_amount"`
	ErrorMessage  string    `json:"error_message"`
}

// AppointmentSnapshotEvent is the full appointment snapshot emitted on
// confirmation and cancellation for scheduling/notification collaborators.
type AppointmentSnapshotEvent struct {
	EventID         uuid.UUID         `json:"event_id"`
	AppointmentID   uuid.UUID         `json:"appointment_id"`
	DoctorID        uuid.UUID         `json:"doctor_id"`
	PatientID       uuid.UUID         `json:"patient_id"`
	SlotID          uuid.UUID         `json:"slot_id"`
	Status          AppointmentStatus `json:"status"`
	ConsultationFee float64           `json:"consultation_fee"`
	Amount          float64           `json:"amount,omitempty"`
	TransactionID   string            `json:"transaction_id,omitempty"`
	Reason          string            `json:"reason,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}
