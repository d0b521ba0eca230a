package broker

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mediflow/go-booking-saga/internal/router"
)

// SagaConsumer feeds the saga queue through the error router. Prefetch 1
// keeps processing strictly ordered, which is what preserves per-appointment
// event ordering.
type SagaConsumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	router  *router.Router
	logger  *slog.Logger
}

func NewSagaConsumer(url string, r *router.Router, logger *slog.Logger) (*SagaConsumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &SagaConsumer{
		conn:    conn,
		channel: ch,
		router:  r,
		logger:  logger,
	}, nil
}

// Listen consumes the saga queue until the context is cancelled. Every
// delivery is acknowledged after the router classified it: failures live on
// in the retry queue, the DLQ or the error log, never in-band.
func (c *SagaConsumer) Listen(ctx context.Context) error {
	msgs, err := c.channel.Consume(SagaQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Saga consumer is online and waiting for events", "queue", SagaQueue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}

			c.router.Dispatch(ctx, toMessage(d))

			if err := d.Ack(false); err != nil {
				c.logger.Error("Failed to ack delivery", "event_id", d.MessageId, "error", err)
			}
		}
	}
}

func toMessage(d amqp.Delivery) router.Message {
	attempts := 0
	if raw, ok := d.Headers[AttemptsHeader]; ok {
		switch v := raw.(type) {
		case int32:
			attempts = int(v)
		case int64:
			attempts = int(v)
		case int:
			attempts = v
		}
	}
	return router.Message{
		EventID:   d.MessageId,
		EventType: d.RoutingKey,
		Body:      d.Body,
		Attempts:  attempts,
	}
}

// Close gracefully terminates the consumer resources.
func (c *SagaConsumer) Close() {
	c.logger.Info("Shutting down saga consumer")
	c.channel.Close()
	c.conn.Close()
}
