package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/mediflow/go-booking-saga/internal/models"
	"github.com/mediflow/go-booking-saga/internal/router"
	"github.com/mediflow/go-booking-saga/pkg/metrics"
)

// staleClaimMinutes is how long an outbox row may sit in PROCESSING before
// the janitor assumes its relay died mid-batch.
const staleClaimMinutes = 10

// WatchdogStore defines the persistence contract for the maintenance sweeps.
type WatchdogStore interface {
	StuckSagas(ctx context.Context, olderThan time.Duration) ([]models.SagaState, error)
	ResetStaleProcessing(ctx context.Context, olderThanMinutes int) (int64, error)
	OutboxBacklog(ctx context.Context) (int64, error)
}

// WatchdogService periodically sweeps for sagas stuck in COMPENSATING and
// does outbox housekeeping. It is the only timer in the system: handlers
// never block or sleep, so detecting an abandoned compensation is a
// standalone duty.
type WatchdogService struct {
	store          WatchdogStore
	alerts         router.Alerter
	stuckThreshold time.Duration
	logger         *slog.Logger
}

func NewWatchdogService(store WatchdogStore, alerts router.Alerter, stuckThreshold time.Duration, logger *slog.Logger) *WatchdogService {
	return &WatchdogService{
		store:          store,
		alerts:         alerts,
		stuckThreshold: stuckThreshold,
		logger:         logger,
	}
}

// Run executes sweeps on the given interval until the context is cancelled.
func (s *WatchdogService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Watchdog sweeping", "interval", interval, "stuck_threshold", s.stuckThreshold)

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			s.logger.Info("Watchdog stopping")
			return
		}
	}
}

// Sweep runs one maintenance pass: stuck-saga detection plus outbox
// housekeeping. Each duty fails independently so one broken query does not
// silence the others.
func (s *WatchdogService) Sweep(ctx context.Context) {
	stuck, err := s.store.StuckSagas(ctx, s.stuckThreshold)
	if err != nil {
		s.logger.Error("Watchdog: failed to query stuck sagas", "error", err)
	} else {
		metrics.StuckSagas.Set(float64(len(stuck)))
		for _, st := range stuck {
			s.alerts.Alert(ctx, router.SeverityCritical,
				"Saga stuck in compensation",
				"saga_id", st.ID,
				"appointment_id", st.AppointmentID,
				"current_step", st.CurrentStep,
				"stuck_since", st.UpdatedAt,
			)
		}
	}

	rescued, err := s.store.ResetStaleProcessing(ctx, staleClaimMinutes)
	if err != nil {
		s.logger.Error("Watchdog: failed to reset stale outbox claims", "error", err)
	} else if rescued > 0 {
		s.logger.Warn("Watchdog: rescued stale outbox claims", "count", rescued)
	}

	backlog, err := s.store.OutboxBacklog(ctx)
	if err != nil {
		s.logger.Error("Watchdog: failed to measure outbox backlog", "error", err)
	} else {
		metrics.OutboxBacklog.Set(float64(backlog))
	}
}
