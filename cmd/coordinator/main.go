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
	"github.com/mediflow/go-booking-saga/internal/router"
	"github.com/mediflow/go-booking-saga/internal/saga"
	"github.com/mediflow/go-booking-saga/pkg/infra"
	"github.com/mediflow/go-booking-saga/pkg/metrics"
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("🔥 Saga coordinator initializing...")

	store, err := db.NewStore(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("CRITICAL: Postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	payments := saga.NewHTTPPaymentClient(cfg.PaymentServiceURL, cfg.PaymentTimeout, logger)
	alerts := router.NewLogAlerter(logger)

	go startObservabilityServer(cfg.MetricsPort, logger)

	connBackoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0)

	for {
		select {
		case <-ctx.Done():
			logger.Info("🛑 Shutdown signal received")
			return
		default:
			client, err := broker.NewClient(cfg.RabbitMQURL, cfg.RetryDelay, logger)
			if err != nil {
				wait := connBackoff.Next()
				logger.Error("RabbitMQ connection failed, retrying...",
					"wait_duration", wait,
					"error", err,
				)

				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
					continue
				}
			}

			r := router.New(client, client, store, alerts, cfg.MaxRetryAttempts, logger)
			saga.NewCoordinator(store, payments, logger).Register(r)

			consumer, err := broker.NewSagaConsumer(cfg.RabbitMQURL, r, logger)
			if err != nil {
				client.Close()
				wait := connBackoff.Next()
				logger.Error("Consumer setup failed, retrying...", "wait_duration", wait, "error", err)

				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
					continue
				}
			}

			connBackoff.Reset()
			logger.Info("✅ Connected to broker. Listening for saga events...")

			if err := consumer.Listen(ctx); err != nil {
				logger.Error("⚠️ Consumer connection lost", "error", err)
				metrics.BrokerReconnections.Inc()
			}

			consumer.Close()
			client.Close()
		}
	}
}

func startObservabilityServer(port string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("COORDINATOR ALIVE"))
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
