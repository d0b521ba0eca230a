package models

import (
	"time"

	"github.com/google/uuid"
)

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	AppointmentPending    AppointmentStatus = "PENDING"
	AppointmentConfirmed  AppointmentStatus = "CONFIRMED"
	AppointmentCancelling AppointmentStatus = "CANCELLING"
	AppointmentCancelled  AppointmentStatus = "CANCELLED"
	AppointmentCompleted  AppointmentStatus = "COMPLETED"
)

// IsTerminal reports whether no further transitions are allowed.
func (s AppointmentStatus) IsTerminal() bool {
	return s == AppointmentCancelled || s == AppointmentCompleted
}

// CanTransitionTo reports whether a transition from s to next is legal.
// Terminal states accept nothing; everything else follows the booking
// lifecycle: PENDING -> CONFIRMED | CANCELLING | CANCELLED,
// CONFIRMED -> COMPLETED | CANCELLING | CANCELLED,
// CANCELLING -> CANCELLED.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	switch s {
	case AppointmentPending:
		return next == AppointmentConfirmed || next == AppointmentCancelling || next == AppointmentCancelled
	case AppointmentConfirmed:
		return next == AppointmentCompleted || next == AppointmentCancelling || next == AppointmentCancelled
	case AppointmentCancelling:
		return next == AppointmentCancelled
	default:
		return false
	}
}

// Appointment is the durable record of a booking and its lifecycle.
// Rows are never deleted; terminal states are final.
type Appointment struct {
	ID              uuid.UUID         `db:"id"`
	DoctorID        uuid.UUID         `db:"doctor_id"`
	PatientID       uuid.UUID         `db:"patient_id"`
	SlotID          uuid.UUID         `db:"slot_id"`
	Status          AppointmentStatus `db:"status"`
	ConsultationFee float64           `db:"consultation_fee"`
	Notes           string            `db:"notes"`

	// Enrichment fields filled in by the saga as validation and
	// payment events arrive.
	PatientName   string `db:"patient_name"`
	PatientEmail  string `db:"patient_email"`
	PatientPhone  string `db:"patient_phone"`
	TransactionID string `db:"transaction_id"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// IsGuestBooking reports whether the appointment was created without a
// registered patient account. Guest bookings skip patient identity checks.
func (a *Appointment) IsGuestBooking() bool {
	return a.PatientID == uuid.Nil
}
