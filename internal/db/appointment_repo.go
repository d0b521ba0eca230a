package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mediflow/go-booking-saga/internal/models"
)

const appointmentColumns = `
	id, doctor_id, patient_id, slot_id, status, consultation_fee, notes,
	patient_name, patient_email, patient_phone, transaction_id,
	created_at, updated_at
`

// AppointmentByID loads an appointment or returns ErrAppointmentNotFound.
func (s *Store) AppointmentByID(ctx context.Context, id uuid.UUID) (*models.Appointment, error) {
	return scanAppointment(s.pool.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
}

func scanAppointment(row pgx.Row) (*models.Appointment, error) {
	var a models.Appointment
	err := row.Scan(
		&a.ID, &a.DoctorID, &a.PatientID, &a.SlotID, &a.Status,
		&a.ConsultationFee, &a.Notes,
		&a.PatientName, &a.PatientEmail, &a.PatientPhone, &a.TransactionID,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan appointment: %w", err)
	}
	return &a, nil
}

func insertAppointment(ctx context.Context, q DBTX, a *models.Appointment) error {
	_, err := q.Exec(ctx, `
		INSERT INTO appointments (
			id, doctor_id, patient_id, slot_id, status, consultation_fee, notes,
			patient_name, patient_email, patient_phone, transaction_id,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		a.ID, a.DoctorID, a.PatientID, a.SlotID, a.Status, a.ConsultationFee,
		a.Notes, a.PatientName, a.PatientEmail, a.PatientPhone, a.TransactionID,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert appointment: %w", err)
	}
	return nil
}

func updateAppointment(ctx context.Context, q DBTX, a *models.Appointment) error {
	tag, err := q.Exec(ctx, `
		UPDATE appointments SET
			status = $2, consultation_fee = $3, notes = $4,
			patient_name = $5, patient_email = $6, patient_phone = $7,
			transaction_id = $8, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`,
		a.ID, a.Status, a.ConsultationFee, a.Notes,
		a.PatientName, a.PatientEmail, a.PatientPhone, a.TransactionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrAppointmentNotFound
	}
	return nil
}
