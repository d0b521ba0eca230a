package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HandlerDuration tracks end-to-end latency of a saga handler from
	// delivery to database commit.
	HandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "saga_handler_duration_seconds",
		Help:    "Time taken to process an inbound event from reception to commit",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"event_type", "outcome"}) // outcome: ok, transient, business, fatal

	// HandlerOutcomes tracks the classification of every dispatched message.
	HandlerOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_handler_outcomes_total",
		Help: "Total number of inbound events by classification outcome",
	}, []string{"event_type", "outcome"})

	// RetriesScheduled counts messages republished to the delayed retry queue.
	RetriesScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_retries_scheduled_total",
		Help: "Number of messages routed to the retry queue",
	}, []string{"event_type"})

	// DeadLettered counts messages that exhausted retries or failed fatally.
	// If this number grows, manual intervention is required.
	DeadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_dead_lettered_total",
		Help: "Number of messages routed to the dead-letter queue",
	}, []string{"event_type"})

	// SlotConflicts counts reservation attempts that lost the row-lock race.
	SlotConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slot_reservation_conflicts_total",
		Help: "Number of reserve calls rejected because the slot was taken",
	})

	// SagaTransitions tracks saga state machine movement.
	SagaTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_transitions_total",
		Help: "Total saga state transitions applied",
	}, []string{"to_status"})

	// GateRejections counts validation-gate submissions refused because the
	// worker pool was saturated.
	GateRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "validation_gate_rejections_total",
		Help: "Number of validations rejected due to worker pool saturation",
	})

	// StuckSagas is set by the watchdog sweep: sagas compensating past the
	// configured threshold.
	StuckSagas = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "saga_stuck_compensating",
		Help: "Number of sagas stuck in COMPENSATING beyond the threshold",
	})
)
