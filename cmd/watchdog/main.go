package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mediflow/go-booking-saga/internal/config"
	"github.com/mediflow/go-booking-saga/internal/db"
	"github.com/mediflow/go-booking-saga/internal/router"
	"github.com/mediflow/go-booking-saga/internal/service"
	"github.com/mediflow/go-booking-saga/pkg/infra"
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("🔧 Initializing saga watchdog...",
		"interval", cfg.WatchdogInterval,
		"stuck_threshold", cfg.StuckThreshold,
	)

	store, err := db.NewStore(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("FATAL: Failed to connect to Postgres", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	go startObservabilityServer(cfg.MetricsPort, logger)

	watchdog := service.NewWatchdogService(store, router.NewLogAlerter(logger), cfg.StuckThreshold, logger)

	// Blocking call until ctx is cancelled.
	watchdog.Run(ctx, cfg.WatchdogInterval)

	logger.Info("✅ Watchdog shut down successfully.")
}

func startObservabilityServer(port string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("WATCHDOG ALIVE"))
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	logger.Info("📊 Observability server online", "url", "http://localhost:"+port+"/metrics")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Observability server failed", "error", err)
	}
}
