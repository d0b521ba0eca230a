package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mediflow/go-booking-saga/pkg/metrics"
)

// Role identifies which identity check the collaborator performs.
type Role string

const (
	RoleDoctor  Role = "DOCTOR"
	RolePatient Role = "PATIENT"
)

// UserInfo is the identity snapshot returned by the collaborator. For
// doctors it carries the consultation fee.
type UserInfo struct {
	ID              uuid.UUID
	Name            string
	Email           string
	Phone           string
	ConsultationFee float64
}

// UserValidator is the synchronous identity collaborator contract.
type UserValidator interface {
	ValidateUser(ctx context.Context, userID uuid.UUID, role Role) (*UserInfo, error)
}

// CodeValidationFailed is the generic code unexpected failures normalize
// to, so internal error types never leak to callers.
const CodeValidationFailed = "VALIDATION_FAILED"

// ValidationError is the only error type the gate surfaces.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Gate runs doctor and patient identity checks concurrently on an injected
// bounded executor. It runs before any saga exists, so its failures return
// synchronously to the booking caller instead of going through the error
// router.
type Gate struct {
	exec    Executor
	users   UserValidator
	timeout time.Duration
	logger  *slog.Logger
}

func NewGate(exec Executor, users UserValidator, timeout time.Duration, logger *slog.Logger) *Gate {
	return &Gate{exec: exec, users: users, timeout: timeout, logger: logger}
}

type checkResult struct {
	info *UserInfo
	err  error
}

// Validate checks the doctor (always) and the patient (only for non-guest
// bookings, patientID != uuid.Nil) in parallel, then returns the doctor
// info. When both checks fail, the doctor error takes precedence.
func (g *Gate) Validate(ctx context.Context, doctorID, patientID uuid.UUID) (*UserInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	doctorCh, err := g.submitCheck(ctx, doctorID, RoleDoctor)
	if err != nil {
		return nil, err
	}

	var patientCh <-chan checkResult
	if patientID != uuid.Nil {
		patientCh, err = g.submitCheck(ctx, patientID, RolePatient)
		if err != nil {
			return nil, err
		}
	}

	var doctorRes, patientRes checkResult
	select {
	case doctorRes = <-doctorCh:
	case <-ctx.Done():
		return nil, g.normalize(RoleDoctor, ctx.Err())
	}
	if patientCh != nil {
		select {
		case patientRes = <-patientCh:
		case <-ctx.Done():
			return nil, g.normalize(RolePatient, ctx.Err())
		}
	}

	// Doctor errors win on simultaneous failure.
	if doctorRes.err != nil {
		return nil, g.normalize(RoleDoctor, doctorRes.err)
	}
	if patientRes.err != nil {
		return nil, g.normalize(RolePatient, patientRes.err)
	}

	return doctorRes.info, nil
}

func (g *Gate) submitCheck(ctx context.Context, userID uuid.UUID, role Role) (<-chan checkResult, error) {
	ch := make(chan checkResult, 1)
	err := g.exec.Submit(func() {
		info, err := g.users.ValidateUser(ctx, userID, role)
		ch <- checkResult{info: info, err: err}
	})
	if err != nil {
		metrics.GateRejections.Inc()
		g.logger.Warn("Validation gate rejected submission", "role", role, "error", err)
		return nil, &ValidationError{
			Code:    CodeValidationFailed,
			Message: "validation capacity exhausted, try again",
		}
	}
	return ch, nil
}

// normalize surfaces concrete validation errors untouched and folds
// everything else (timeouts, unmapped failures) into the generic code.
func (g *Gate) normalize(role Role, err error) error {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr
	}

	g.logger.Error("Unexpected validation failure", "role", role, "error", err)
	return &ValidationError{
		Code:    CodeValidationFailed,
		Message: fmt.Sprintf("could not validate %s identity", role),
	}
}
