package broker

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mediflow/go-booking-saga/internal/models"
)

const (
	// EventsExchange is the main topic exchange. Routing keys are the
	// integration event types.
	EventsExchange = "booking.events"

	// RetryExchange feeds the TTL queue. Expired messages dead-letter back
	// to EventsExchange with their original routing key, which is how the
	// delayed redelivery works without blocking any consumer.
	RetryExchange = "booking.retry"

	// DeadLetterExchange collects messages that exhausted retries or failed
	// fatally.
	DeadLetterExchange = "booking.dlx"

	SagaQueue       = "booking.saga.q"
	RetryQueue      = "booking.retry.q"
	DeadLetterQueue = "booking.dlq"
)

// declareTopology declares the exchanges and queues the saga engine relies
// on. Declarations are idempotent, so every process declares on boot.
func declareTopology(ch *amqp.Channel, retryDelay time.Duration) error {
	for _, exchange := range []string{EventsExchange, RetryExchange, DeadLetterExchange} {
		if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
		}
	}

	// Saga queue: quorum for durability, bound to every event type the
	// coordinator consumes. Prefetch 1 on the consumer preserves
	// per-appointment ordering (events for one appointment are enqueued in
	// outbox insertion order).
	sagaArgs := amqp.Table{"x-queue-type": "quorum"}
	if _, err := ch.QueueDeclare(SagaQueue, true, false, false, false, sagaArgs); err != nil {
		return fmt.Errorf("failed to declare saga queue: %w", err)
	}
	for _, key := range models.SagaEventTypes {
		if err := ch.QueueBind(SagaQueue, key, EventsExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind saga queue to %s: %w", key, err)
		}
	}

	// Retry queue: messages expire after the configured delay and return to
	// the events exchange, which routes them back to the saga queue.
	retryArgs := amqp.Table{
		"x-message-ttl":          retryDelay.Milliseconds(),
		"x-dead-letter-exchange": EventsExchange,
	}
	if _, err := ch.QueueDeclare(RetryQueue, true, false, false, false, retryArgs); err != nil {
		return fmt.Errorf("failed to declare retry queue: %w", err)
	}
	if err := ch.QueueBind(RetryQueue, "#", RetryExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind retry queue: %w", err)
	}

	// Dead-letter queue: everything on the DLX lands here for inspection.
	if _, err := ch.QueueDeclare(DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(DeadLetterQueue, "#", DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind dead-letter queue: %w", err)
	}

	return nil
}
