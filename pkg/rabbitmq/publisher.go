package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ExchangeName is the durable topic exchange every event is published to.
const ExchangeName = "events"

// ErrNacked is returned when the broker refuses a published message.
var ErrNacked = errors.New("message nacked by broker")

// Message is an outgoing event.
type Message struct {
	RoutingKey    string
	MessageID     string
	CorrelationID string
	Type          string
	Body          []byte
}

// Publisher publishes messages to the events exchange. The channel runs in
// confirm mode, so Publish returns only once the broker has taken ownership
// of the message.
type Publisher struct {
	mu      sync.Mutex
	channel *amqp.Channel
	timeout time.Duration
	logger  *zap.Logger
}

// NewPublisher creates a new publisher and declares the topic exchange.
func NewPublisher(conn *Connection, timeout time.Duration, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	if err := declareExchange(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Publisher{channel: ch, timeout: timeout, logger: logger}, nil
}

// Publish sends a message to the exchange and waits for the broker confirm.
func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.logger.Debug("Publishing message",
		zap.String("routing_key", msg.RoutingKey),
		zap.String("message_id", msg.MessageID),
		zap.String("correlation_id", msg.CorrelationID))

	// amqp channels are not safe for concurrent publishes.
	p.mu.Lock()
	confirm, err := p.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		ExchangeName,
		msg.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			MessageId:     msg.MessageID,
			CorrelationId: msg.CorrelationID,
			Type:          msg.Type,
			Body:          msg.Body,
			DeliveryMode:  amqp.Persistent,
			Timestamp:     time.Now(),
		},
	)
	p.mu.Unlock()
	if err != nil {
		return err
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("waiting for publish confirm: %w", err)
	}
	if !acked {
		return ErrNacked
	}
	return nil
}

// Close closes the publisher channel.
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
