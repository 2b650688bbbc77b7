package erp

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/jtich40/event-driven-integration-demo/pkg/models"
	"github.com/jtich40/event-driven-integration-demo/pkg/rabbitmq"
)

// EventProcessor handles a single decoded event. *Processor implements it.
type EventProcessor interface {
	Process(ctx context.Context, event models.UserCreatedEvent) error
}

// ConsumerConfig selects the failure policies.
type ConsumerConfig struct {
	// MalformedPolicy applies to payloads that do not decode into an event.
	MalformedPolicy Policy
	// InvalidPolicy applies to events without a usable user.
	InvalidPolicy Policy
}

// DefaultConsumerConfig dead-letters malformed payloads and drops events
// without a user.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		MalformedPolicy: PolicyDeadLetter,
		InvalidPolicy:   PolicyDrop,
	}
}

// Consumer handles batches of UserCreated deliveries.
type Consumer struct {
	processor EventProcessor
	cfg       ConsumerConfig
	logger    *zap.Logger
}

// NewConsumer creates a new ERP consumer.
func NewConsumer(processor EventProcessor, cfg ConsumerConfig, logger *zap.Logger) *Consumer {
	return &Consumer{processor: processor, cfg: cfg, logger: logger}
}

// HandleBatch processes deliveries one at a time, in order. It implements
// rabbitmq.BatchHandler: on a stopping failure it returns a
// *rabbitmq.BatchError pointing at the message that stopped the batch.
func (c *Consumer) HandleBatch(ctx context.Context, batch []amqp.Delivery) error {
	for i, d := range batch {
		logger := c.logger.With(
			zap.String("message_id", d.MessageId),
			zap.String("correlation_id", d.CorrelationId))

		event, err := models.DecodeEvent(d.Body)
		switch {
		case errors.Is(err, models.ErrMalformedEvent):
			logger.Error("Malformed event", zap.String("policy", string(c.cfg.MalformedPolicy)), zap.Error(err))
			if stop := c.apply(c.cfg.MalformedPolicy, i, err); stop != nil {
				return stop
			}
			continue
		case errors.Is(err, models.ErrInvalidEvent):
			logger.Warn("Invalid event", zap.String("policy", string(c.cfg.InvalidPolicy)), zap.Error(err))
			if stop := c.apply(c.cfg.InvalidPolicy, i, err); stop != nil {
				return stop
			}
			continue
		case err != nil:
			return &rabbitmq.BatchError{Index: i, Requeue: true, Err: err}
		}

		logger = logger.With(zap.String("event_id", event.EventID))
		logger.Info("Processing event", zap.String("user_id", event.User.ID), zap.Int("position", i))

		err = c.processor.Process(ctx, event)
		if errors.Is(err, ErrDuplicateEvent) {
			logger.Info("Duplicate event ignored")
			continue
		}
		if err != nil {
			logger.Error("Processing failed, stopping batch", zap.Error(err))
			return &rabbitmq.BatchError{Index: i, Requeue: true, Err: err}
		}
	}
	return nil
}

// apply returns the error that stops the batch, or nil to carry on.
func (c *Consumer) apply(policy Policy, index int, err error) error {
	switch policy {
	case PolicyDrop:
		return nil
	case PolicyRetry:
		return &rabbitmq.BatchError{Index: index, Requeue: true, Err: err}
	default:
		return &rabbitmq.BatchError{Index: index, Requeue: false, Err: err}
	}
}
