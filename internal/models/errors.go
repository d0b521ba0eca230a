package models

import "errors"

// Domain sentinel errors. The error router treats these as BUSINESS
// failures: logged, never retried.
var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSagaNotFound        = errors.New("saga state not found")
	ErrSagaClosed          = errors.New("saga already in a terminal state")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrSlotAlreadyBooked   = errors.New("slot is already booked")
	ErrSlotInPast          = errors.New("slot is in the past")
	ErrSlotDoctorMismatch  = errors.New("slot does not belong to the doctor")
)
