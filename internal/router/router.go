package router

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/mediflow/go-booking-saga/internal/models"
	"github.com/mediflow/go-booking-saga/pkg/metrics"
)

// Message is a broker delivery stripped down to what routing needs.
type Message struct {
	EventID   string
	EventType string
	Body      []byte
	Attempts  int
}

// Handler processes one inbound event. Handlers are free to just return
// errors; the router owns classification and routing.
type Handler func(ctx context.Context, msg Message) error

// RetryPublisher schedules a delayed redelivery of the original message.
type RetryPublisher interface {
	PublishRetry(ctx context.Context, routingKey, eventID string, body []byte, attempts int) error
}

// DeadLetterPublisher parks a message on the dead-letter topic.
type DeadLetterPublisher interface {
	PublishDeadLetter(ctx context.Context, routingKey, eventID string, body []byte, attempts int) error
}

// ErrorLogStore persists the append-only failure audit trail.
type ErrorLogStore interface {
	InsertErrorLog(ctx context.Context, e *models.EventErrorLog) error
}

// Router wraps every saga handler invocation. Whatever happens, the inbound
// message is acknowledged after classification: unresolved failures move to
// durable side channels (retry queue, DLQ, error log) instead of blocking
// the consumer group.
type Router struct {
	handlers    map[string]Handler
	retry       RetryPublisher
	dlq         DeadLetterPublisher
	errlog      ErrorLogStore
	alerts      Alerter
	maxAttempts int
	logger      *slog.Logger
}

func New(retry RetryPublisher, dlq DeadLetterPublisher, errlog ErrorLogStore, alerts Alerter, maxAttempts int, logger *slog.Logger) *Router {
	return &Router{
		handlers:    make(map[string]Handler),
		retry:       retry,
		dlq:         dlq,
		errlog:      errlog,
		alerts:      alerts,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Handle registers the handler for an event type. Exactly one handler per
// type; a second registration replaces the first.
func (r *Router) Handle(eventType string, h Handler) {
	r.handlers[eventType] = h
}

// Dispatch runs the handler for msg and routes any failure. It never
// returns an error: by the time it returns, the message is safe to ack.
func (r *Router) Dispatch(ctx context.Context, msg Message) {
	start := time.Now()

	l := r.logger.With(
		"event_id", msg.EventID,
		"event_type", msg.EventType,
		"attempts", msg.Attempts,
	)

	h, ok := r.handlers[msg.EventType]
	if !ok {
		l.Warn("No handler registered for event type, skipping")
		return
	}

	err := h(ctx, msg)

	outcome := "ok"
	if err != nil {
		category := Classify(err)
		outcome = string(category)

		switch category {
		case CategoryTransient:
			r.routeTransient(ctx, l, msg, err)
		case CategoryBusiness:
			l.Warn("Business failure, accepting as unresolvable", "error", err)
			r.persistErrorLog(ctx, l, msg, err, models.ErrorCategoryBusiness)
			r.alerts.Alert(ctx, SeverityWarning, "saga handler business failure",
				"event_type", msg.EventType, "error", err.Error())
		case CategoryFatal:
			r.routeFatal(ctx, l, msg, err)
		}
	}

	metrics.HandlerOutcomes.WithLabelValues(msg.EventType, outcome).Inc()
	metrics.HandlerDuration.WithLabelValues(msg.EventType, outcome).Observe(time.Since(start).Seconds())
}

// routeTransient republishes to the delayed retry queue until attempts run
// out, then escalates to the fatal path.
func (r *Router) routeTransient(ctx context.Context, l *slog.Logger, msg Message, cause error) {
	next := msg.Attempts + 1
	if next >= r.maxAttempts {
		l.Error("Retry budget exhausted, escalating to dead-letter", "error", cause)
		r.routeFatal(ctx, l, msg, cause)
		return
	}

	if err := r.retry.PublishRetry(ctx, msg.EventType, msg.EventID, msg.Body, next); err != nil {
		l.Error("Failed to schedule retry, escalating to dead-letter", "error", err)
		r.routeFatal(ctx, l, msg, cause)
		return
	}

	metrics.RetriesScheduled.WithLabelValues(msg.EventType).Inc()
	l.Warn("Transient failure, retry scheduled", "next_attempt", next, "error", cause)
}

// routeFatal dead-letters the message, persists the audit row and raises an
// immediate alert. A failed DLQ publish is itself recorded so the payload is
// never lost silently.
func (r *Router) routeFatal(ctx context.Context, l *slog.Logger, msg Message, cause error) {
	category := models.ErrorCategoryFatal

	if err := r.dlq.PublishDeadLetter(ctx, msg.EventType, msg.EventID, msg.Body, msg.Attempts); err != nil {
		l.Error("CRITICAL: dead-letter publish failed, payload survives only in the error log", "error", err)
		category = models.ErrorCategoryDLQSendFailed
	} else {
		metrics.DeadLettered.WithLabelValues(msg.EventType).Inc()
	}

	r.persistErrorLog(ctx, l, msg, cause, category)
	r.alerts.Alert(ctx, SeverityCritical, "saga handler fatal failure",
		"event_type", msg.EventType, "event_id", msg.EventID, "error", cause.Error())
}

func (r *Router) persistErrorLog(ctx context.Context, l *slog.Logger, msg Message, cause error, category string) {
	entry := &models.EventErrorLog{
		EventType:    msg.EventType,
		Payload:      msg.Body,
		ErrorMessage: cause.Error(),
		StackTrace:   string(debug.Stack()),
		Category:     category,
	}
	if err := r.errlog.InsertErrorLog(ctx, entry); err != nil {
		// Last resort: the log line is now the only record of this failure.
		l.Error("CRITICAL: failed to persist error log", "category", category, "error", err)
	}
}
