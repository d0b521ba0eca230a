package saga

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mediflow/go-booking-saga/internal/router"
)

// HTTPPaymentClient talks to the payment collaborator over its REST API.
// The appointment id is the idempotency key: the collaborator deduplicates
// repeated creates for the same appointment.
type HTTPPaymentClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewHTTPPaymentClient(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPPaymentClient {
	return &HTTPPaymentClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type createPaymentRequest struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Amount        float64   `json:"amount"`
	Method        string    `json:"method"`
}

// CreatePayment asks the collaborator to start a charge. The outcome itself
// arrives asynchronously as a payment.completed or payment.failed event;
// this call only needs the request accepted.
func (p *HTTPPaymentClient) CreatePayment(ctx context.Context, appointmentID uuid.UUID, amount float64, method string) error {
	body, err := json.Marshal(createPaymentRequest{
		AppointmentID: appointmentID,
		Amount:        amount,
		Method:        method,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build payment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", appointmentID.String())

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("payment service unreachable: %w", err)
	}
	defer resp.Body.Close()

	// 409 means the collaborator already holds a payment for this
	// appointment, which is exactly what a redelivered trigger produces.
	if resp.StatusCode == http.StatusConflict {
		p.logger.Debug("Payment already exists", "appointment_id", appointmentID)
		return nil
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("payment service returned %d: %w", resp.StatusCode, router.ErrRetryable)
	}
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("payment service returned %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
