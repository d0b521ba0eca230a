package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSagaStatus_CanTransitionTo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		from    SagaStatus
		to      SagaStatus
		allowed bool
	}{
		{"happy path identity", SagaDoctorValidated, SagaPatientValidated, true},
		{"doctor straight to payment (guest)", SagaDoctorValidated, SagaPaymentCompleted, true},
		{"patient validated to payment", SagaPatientValidated, SagaPaymentCompleted, true},
		{"payment to completed", SagaPaymentCompleted, SagaCompleted, true},
		{"no going backwards", SagaPatientValidated, SagaDoctorValidated, false},

		{"doctor validated can compensate", SagaDoctorValidated, SagaCompensating, true},
		{"patient validated can compensate", SagaPatientValidated, SagaCompensating, true},
		{"payment completed can compensate", SagaPaymentCompleted, SagaCompensating, true},
		{"compensating resolves compensated", SagaCompensating, SagaCompensated, true},
		{"compensating resolves failed", SagaCompensating, SagaFailed, true},
		{"compensating cannot complete", SagaCompensating, SagaCompleted, false},

		{"completed is terminal", SagaCompleted, SagaCompensating, false},
		{"compensated is terminal", SagaCompensated, SagaCompensating, false},
		{"failed is terminal", SagaFailed, SagaCompensating, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestSagaStatus_IsTerminal(t *testing.T) {
	t.Parallel()

	for _, s := range []SagaStatus{SagaCompleted, SagaCompensated, SagaFailed} {
		assert.True(t, s.IsTerminal(), string(s))
	}
	for _, s := range []SagaStatus{SagaDoctorValidated, SagaPatientValidated, SagaPaymentCompleted, SagaCompensating} {
		assert.False(t, s.IsTerminal(), string(s))
	}
}
