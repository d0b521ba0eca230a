package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mediflow/go-booking-saga/pkg/metrics"
)

// AttemptsHeader carries the retry count across redeliveries.
const AttemptsHeader = "x-attempts"

// Client handles the low-level communication with RabbitMQ. Publisher
// confirms are enabled so a publish only succeeds once the broker persisted
// the message.
type Client struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	logger     *slog.Logger
	connClosed chan *amqp.Error
	chanClosed chan *amqp.Error
	closeOnce  sync.Once
	healthy    atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewClient connects, opens a channel, declares the booking topology and
// enables publisher confirms. A monitor goroutine flips the health flag when
// the broker drops the link.
func NewClient(url string, retryDelay time.Duration, l *slog.Logger) (*Client, error) {
	c, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := c.Channel()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if err := declareTopology(ch, retryDelay); err != nil {
		ch.Close()
		c.Close()
		return nil, err
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		c.Close()
		return nil, fmt.Errorf("failed to activate publisher confirms: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		conn:       c,
		channel:    ch,
		logger:     l,
		connClosed: make(chan *amqp.Error, 1),
		chanClosed: make(chan *amqp.Error, 1),
		ctx:        ctx,
		cancel:     cancel,
	}

	client.healthy.Store(true)
	metrics.HealthStatus.Set(1)

	client.conn.NotifyClose(client.connClosed)
	client.channel.NotifyClose(client.chanClosed)

	go func() {
		select {
		case err := <-client.connClosed:
			client.healthy.Store(false)
			metrics.HealthStatus.Set(0)
			l.Warn("RabbitMQ connection closed", "error", err)
		case err := <-client.chanClosed:
			client.healthy.Store(false)
			metrics.HealthStatus.Set(0)
			l.Warn("RabbitMQ channel closed", "error", err)
		case <-client.ctx.Done():
			return
		}
	}()

	l.Info("Connected to RabbitMQ, topology declared", "url", url)
	return client, nil
}

// Publish sends a message to an exchange and blocks until the broker
// confirms persistence (ACK) or the context/timeout expires. The message id
// is the event's idempotency key and the routing key doubles as the topic.
func (c *Client) publish(ctx context.Context, exchange, routingKey, messageID, aggregateID string, body []byte, attempts int) error {
	if !c.IsHealthy() {
		return fmt.Errorf("broker connection is closed")
	}

	l := c.logger.With(
		"event_id", messageID,
		"routing_key", routingKey,
	)

	deferred, err := c.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			Headers: amqp.Table{
				AttemptsHeader:   int32(attempts),
				"x-aggregate-id": aggregateID,
			},
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Body:         body,
		},
	)
	if err != nil {
		l.Error("failed to publish message to exchange", "error", err)
		return fmt.Errorf("publish call failed: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-deferred.Done():
		if !deferred.Acked() {
			return fmt.Errorf("RabbitMQ NACK received: message not persisted")
		}
		return nil
	case <-time.After(10 * time.Second):
		return fmt.Errorf("publisher confirm timeout")
	}
}

// PublishEvent publishes an integration event to the main topic exchange.
func (c *Client) PublishEvent(ctx context.Context, routingKey, eventID, aggregateID string, body []byte) error {
	return c.publish(ctx, EventsExchange, routingKey, eventID, aggregateID, body, 0)
}

// PublishRetry schedules a delayed redelivery: the retry queue holds the
// message for its TTL, then dead-letters it back to the events exchange with
// the original routing key. The consuming thread never sleeps.
func (c *Client) PublishRetry(ctx context.Context, routingKey, eventID string, body []byte, attempts int) error {
	return c.publish(ctx, RetryExchange, routingKey, eventID, "", body, attempts)
}

// PublishDeadLetter parks an unprocessable message on the DLQ for manual
// inspection.
func (c *Client) PublishDeadLetter(ctx context.Context, routingKey, eventID string, body []byte, attempts int) error {
	return c.publish(ctx, DeadLetterExchange, routingKey, eventID, "", body, attempts)
}

// Close gracefully shuts down the RabbitMQ resources.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.logger.Info("Terminating RabbitMQ client")
		c.cancel()
		if c.channel != nil {
			c.channel.Close()
		}
		if c.conn != nil {
			c.conn.Close()
		}
	})
	return nil
}

// IsHealthy returns true if the connection and channel are active.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}
