package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsPublished tracks the throughput of the outbox relay.
	// Labels allow filtering by outcome (sent/error) and event type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_published_total",
		Help: "Total number of outbox events pushed to the broker by the relay",
	}, []string{"status", "event_type"})

	// BatchDuration measures how long it takes to process an entire relay batch.
	// Use this to identify performance degradation in Postgres or RabbitMQ.
	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_batch_duration_seconds",
		Help:    "Duration of outbox batch processing in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// BatchSize tracks the number of events actually claimed in each batch.
	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_batch_size",
		Help:    "Number of outbox events processed per batch",
		Buckets: []float64{1, 10, 50, 100, 500, 1000},
	})

	// OutboxBacklog is the primary indicator of publication lag.
	OutboxBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_backlog",
		Help: "Current number of pending/processing events in the outbox table",
	})

	// BrokerReconnections counts how many times a process had to restore its
	// RabbitMQ link. Frequent increments indicate network instability.
	BrokerReconnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broker_reconnections_total",
		Help: "Total number of RabbitMQ reconnection attempts",
	})

	// HealthStatus provides a binary 0/1 signal for the process health.
	// 1 = healthy, 0 = broker link down.
	HealthStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "booking_saga_healthy",
		Help: "Current health status (1 for healthy, 0 for unhealthy)",
	})
)
