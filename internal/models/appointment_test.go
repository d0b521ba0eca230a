package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAppointmentStatus_CanTransitionTo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    AppointmentStatus
		to      AppointmentStatus
		allowed bool
	}{
		{"pending to confirmed", AppointmentPending, AppointmentConfirmed, true},
		{"pending to cancelling", AppointmentPending, AppointmentCancelling, true},
		{"pending to cancelled", AppointmentPending, AppointmentCancelled, true},
		{"pending to completed", AppointmentPending, AppointmentCompleted, false},
		{"confirmed to completed", AppointmentConfirmed, AppointmentCompleted, true},
		{"confirmed to cancelling", AppointmentConfirmed, AppointmentCancelling, true},
		{"confirmed to pending", AppointmentConfirmed, AppointmentPending, false},
		{"cancelling to cancelled", AppointmentCancelling, AppointmentCancelled, true},
		{"cancelling to confirmed", AppointmentCancelling, AppointmentConfirmed, false},
		{"cancelled is terminal", AppointmentCancelled, AppointmentPending, false},
		{"completed is terminal", AppointmentCompleted, AppointmentCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestAppointmentStatus_IsTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, AppointmentCancelled.IsTerminal())
	assert.True(t, AppointmentCompleted.IsTerminal())
	assert.False(t, AppointmentPending.IsTerminal())
	assert.False(t, AppointmentConfirmed.IsTerminal())
	assert.False(t, AppointmentCancelling.IsTerminal())
}

func TestAppointment_IsGuestBooking(t *testing.T) {
	t.Parallel()

	guest := Appointment{PatientID: uuid.Nil}
	assert.True(t, guest.IsGuestBooking())

	registered := Appointment{PatientID: uuid.New()}
	assert.False(t, registered.IsGuestBooking())
}
