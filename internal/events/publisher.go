// Package events publishes domain events to the message broker.
package events

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jtich40/event-driven-integration-demo/pkg/models"
	"github.com/jtich40/event-driven-integration-demo/pkg/rabbitmq"
)

// RoutingKeyUserCreated is the topic UserCreated events are published under.
const RoutingKeyUserCreated = "user.created"

// ErrPublish wraps every failure to hand an event to the broker.
var ErrPublish = errors.New("publish event")

// Sender hands a serialized message to the broker. *rabbitmq.Publisher
// implements it.
type Sender interface {
	Publish(ctx context.Context, msg rabbitmq.Message) error
}

// Publisher serializes events and sends them.
type Publisher struct {
	sender Sender
	logger *zap.Logger
}

// NewPublisher creates a Publisher on top of sender.
func NewPublisher(sender Sender, logger *zap.Logger) *Publisher {
	return &Publisher{sender: sender, logger: logger}
}

// PublishUserCreated sends event. The event id must already be set.
func (p *Publisher) PublishUserCreated(ctx context.Context, event models.UserCreatedEvent, correlationID string) error {
	if event.EventID == "" {
		return fmt.Errorf("%w: event has no id", ErrPublish)
	}

	body, err := models.EncodeEvent(event)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrPublish, event.EventID, err)
	}

	msg := rabbitmq.Message{
		RoutingKey:    RoutingKeyUserCreated,
		MessageID:     event.EventID,
		CorrelationID: correlationID,
		Type:          event.EventType,
		Body:          body,
	}
	if err := p.sender.Publish(ctx, msg); err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("event_id", event.EventID),
			zap.String("correlation_id", correlationID),
			zap.Error(err))
		return fmt.Errorf("%w: %s: %w", ErrPublish, event.EventID, err)
	}

	p.logger.Info("Event published",
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.String("user_id", event.User.ID),
		zap.String("correlation_id", correlationID))
	return nil
}
