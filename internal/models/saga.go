package models

import (
	"time"

	"github.com/google/uuid"
)

// SagaStatus is the lifecycle state of a booking saga.
type SagaStatus string

const (
	SagaDoctorValidated  SagaStatus = "DOCTOR_VALIDATED"
	SagaPatientValidated SagaStatus = "PATIENT_VALIDATED"
	SagaPaymentCompleted SagaStatus = "PAYMENT_COMPLETED"
	SagaCompleted        SagaStatus = "COMPLETED"
	SagaCompensating     SagaStatus = "COMPENSATING"
	SagaCompensated      SagaStatus = "COMPENSATED"
	SagaFailed           SagaStatus = "FAILED"
)

// IsTerminal reports whether the saga is closed. Terminal sagas are
// immutable.
func (s SagaStatus) IsTerminal() bool {
	return s == SagaCompleted || s == SagaCompensated || s == SagaFailed
}

// CanTransitionTo reports whether a transition from s to next is legal.
// Any non-terminal state may enter COMPENSATING; COMPENSATING resolves to
// COMPENSATED (clean rollback) or FAILED (compensation itself failed).
func (s SagaStatus) CanTransitionTo(next SagaStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == SagaCompensating {
		return s != SagaCompensating
	}
	switch s {
	case SagaDoctorValidated:
		return next == SagaPatientValidated || next == SagaPaymentCompleted || next == SagaCompleted
	case SagaPatientValidated:
		return next == SagaPaymentCompleted || next == SagaCompleted
	case SagaPaymentCompleted:
		return next == SagaCompleted
	case SagaCompensating:
		return next == SagaCompensated || next == SagaFailed
	default:
		return false
	}
}

// SagaState tracks the progress of exactly one appointment booking saga.
// There is at most one non-terminal saga per appointment at any time.
type SagaState struct {
	ID            uuid.UUID  `db:"id"`
	AppointmentID uuid.UUID  `db:"appointment_id"`
	Status        SagaStatus `db:"status"`
	CurrentStep   string     `db:"current_step"`
	FailureReason string     `db:"failure_reason"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}
