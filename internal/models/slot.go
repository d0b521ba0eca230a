package models

import (
	"time"

	"github.com/google/uuid"
)

// Slot is a bookable time slot owned by the scheduling collaborator. The
// saga engine only flips IsAvailable through the reservation service, which
// guards every transition with an exclusive row lock.
type Slot struct {
	ID          uuid.UUID `db:"id"`
	DoctorID    uuid.UUID `db:"doctor_id"`
	Date        time.Time `db:"date"`
	StartTime   time.Time `db:"start_time"`
	EndTime     time.Time `db:"end_time"`
	IsAvailable bool      `db:"is_available"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// InPast reports whether the slot starts before now. Reservations against
// past slots are rejected synchronously.
func (s *Slot) InPast(now time.Time) bool {
	return s.StartTime.Before(now)
}
