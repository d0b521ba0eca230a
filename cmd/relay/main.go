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

	"github.com/mediflow/go-booking-saga/internal/broker"
	"github.com/mediflow/go-booking-saga/internal/config"
	"github.com/mediflow/go-booking-saga/internal/db"
	"github.com/mediflow/go-booking-saga/internal/service"
	"github.com/mediflow/go-booking-saga/pkg/infra"
	"github.com/mediflow/go-booking-saga/pkg/metrics"
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := db.NewStore(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		slog.Error("Fatal error connecting to Postgres", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	go startObservabilityServer(cfg.MetricsPort, logger)

	slog.Info("🚀 Outbox relay started", "pid", os.Getpid(), "batch_size", cfg.BatchSize)

	runMainLoop(ctx, store, cfg)
}

func runMainLoop(ctx context.Context, store *db.Store, cfg *config.Config) {
	backoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0)
	var rabbitmq *broker.Client
	var relay *service.RelayService

	for {
		select {
		case <-ctx.Done():
			slog.Info("👋 Shutting down main loop...")
			if rabbitmq != nil {
				rabbitmq.Close()
			}
			slog.Info("✅ Shutdown complete")
			return
		default:
			// Lifecycle: make sure the broker link is operational.
			if rabbitmq == nil || !rabbitmq.IsHealthy() {
				if rabbitmq != nil {
					rabbitmq.Close()
					metrics.BrokerReconnections.Inc()
				}

				newClient, err := broker.NewClient(cfg.RabbitMQURL, cfg.RetryDelay, slog.Default())
				if err != nil {
					wait := backoff.Next()
					slog.Error("RabbitMQ link failure, retrying", "wait", wait, "error", err)

					select {
					case <-time.After(wait):
						continue
					case <-ctx.Done():
						return
					}
				}

				slog.Info("RabbitMQ link established 🚀")
				rabbitmq = newClient
				backoff.Reset()
				relay = service.NewRelayService(store, rabbitmq, slog.Default())
			}

			if err := relay.ProcessNextBatch(ctx, cfg.BatchSize); err != nil {
				wait := backoff.Next()
				slog.Error("Batch processing error", "retry_in", wait, "error", err)

				select {
				case <-time.After(wait):
					continue
				case <-ctx.Done():
					return
				}
			}

			backoff.Reset()

			select {
			case <-time.After(cfg.PollInterval):
				continue
			case <-ctx.Done():
				return
			}
		}
	}
}

func startObservabilityServer(port string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("RELAY ALIVE"))
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
