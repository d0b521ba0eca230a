package router

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mediflow/go-booking-saga/internal/models"
)

// Category is the failure taxonomy driving the routing decision.
type Category string

const (
	// CategoryTransient covers storage connectivity and network timeouts:
	// retrying later can succeed.
	CategoryTransient Category = "transient"
	// CategoryBusiness covers failures no retry can fix, like a referenced
	// appointment that does not exist.
	CategoryBusiness Category = "business"
	// CategoryFatal is everything unclassified, plus retry exhaustion.
	CategoryFatal Category = "fatal"
)

// ErrRetryable lets collaborator clients flag failures the typed checks
// cannot see, like an HTTP 503 from a downstream service.
var ErrRetryable = errors.New("retryable failure")

// businessErrors are the domain sentinels that mark a message as
// unresolvable by redelivery.
var businessErrors = []error{
	models.ErrAppointmentNotFound,
	models.ErrSagaNotFound,
	models.ErrSlotNotFound,
}

// Classify maps a handler failure onto the taxonomy. Business sentinels are
// checked first; transient detection combines typed checks with message
// heuristics for driver-level failures that arrive as plain strings.
func Classify(err error) Category {
	for _, sentinel := range businessErrors {
		if errors.Is(err, sentinel) {
			return CategoryBusiness
		}
	}

	if isTransient(err) {
		return CategoryTransient
	}

	return CategoryFatal
}

func isTransient(err error) bool {
	// Cancellation reaches handlers when the consumer shuts down
	// mid-dispatch; the message itself is healthy, so it retries.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, ErrRetryable) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 = connection exception, 40001/40P01 = serialization
		// failure and deadlock, 57P03 = cannot connect now.
		if strings.HasPrefix(pgErr.Code, "08") ||
			pgErr.Code == "40001" || pgErr.Code == "40P01" || pgErr.Code == "57P03" {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "too many clients") ||
		strings.Contains(msg, "deadlock")
}
