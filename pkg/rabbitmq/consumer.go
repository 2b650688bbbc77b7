package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ConsumerConfig holds configuration for setting up a consumer.
type ConsumerConfig struct {
	QueueName    string
	DLQName      string
	RoutingKeys  []string
	ConsumerName string

	// BatchSize caps how many deliveries are handed to the handler at once.
	// It is also the channel prefetch count.
	BatchSize int
	// BatchLinger is how long to wait for more deliveries once the first
	// one of a batch has arrived.
	BatchLinger time.Duration
}

// BatchHandler processes deliveries in order.
//
// Returning nil acks the whole batch. Returning a *BatchError acks every
// delivery before Index, settles the delivery at Index according to Requeue,
// and requeues the rest. Any other error requeues the whole batch.
type BatchHandler func(ctx context.Context, batch []amqp.Delivery) error

// BatchError reports which delivery of a batch stopped processing.
type BatchError struct {
	Index   int
	Requeue bool
	Err     error
}

func (e *BatchError) Error() string {
	action := "dead-letter"
	if e.Requeue {
		action = "requeue"
	}
	return fmt.Sprintf("batch stopped at message %d (%s): %v", e.Index, action, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Declare creates the exchange, the dead-letter queue and the main queue,
// and binds the main queue to its routing keys.
func Declare(ch *amqp.Channel, cfg ConsumerConfig) error {
	if err := declareExchange(ch); err != nil {
		return err
	}

	// Declare DLQ
	if _, err := ch.QueueDeclare(
		cfg.DLQName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return err
	}

	// Rejected messages are routed to the DLQ through the default exchange.
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.DLQName,
	}
	if _, err := ch.QueueDeclare(
		cfg.QueueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		args,
	); err != nil {
		return err
	}

	for _, key := range cfg.RoutingKeys {
		if err := ch.QueueBind(cfg.QueueName, key, ExchangeName, false, nil); err != nil {
			return err
		}
	}
	return nil
}

// SetupBatchConsumer declares the topology and starts consuming in batches.
// The returned channel is closed once the consume loop has stopped, which
// happens when ctx is cancelled or the delivery channel closes. The batch in
// flight at cancellation is finished and settled first.
func SetupBatchConsumer(ctx context.Context, conn *Connection, cfg ConsumerConfig, handler BatchHandler, logger *zap.Logger) (<-chan struct{}, error) {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := Declare(ch, cfg); err != nil {
		_ = ch.Close()
		return nil, err
	}

	if err := ch.Qos(cfg.BatchSize, 0, false); err != nil {
		_ = ch.Close()
		return nil, err
	}

	msgs, err := ch.Consume(
		cfg.QueueName,
		cfg.ConsumerName,
		false, // auto-ack = false (manual ack)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}

	logger = logger.With(zap.String("consumer", cfg.ConsumerName))
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer ch.Close()

		go func() {
			<-ctx.Done()
			// Stops new deliveries; msgs is closed once the server confirms.
			_ = ch.Cancel(cfg.ConsumerName, false)
		}()

		runBatches(context.WithoutCancel(ctx), msgs, cfg, handler, logger)
		logger.Info("Consumer stopped")
	}()

	logger.Info("Consumer started",
		zap.String("queue", cfg.QueueName),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Duration("batch_linger", cfg.BatchLinger))
	return done, nil
}

// runBatches drives the handler until msgs is closed. Handlers get a context
// that is not cancelled on shutdown so the last batch can finish.
func runBatches(ctx context.Context, msgs <-chan amqp.Delivery, cfg ConsumerConfig, handler BatchHandler, logger *zap.Logger) {
	for {
		batch, ok := collectBatch(msgs, cfg.BatchSize, cfg.BatchLinger)
		if len(batch) > 0 {
			logger.Debug("Received batch", zap.Int("size", len(batch)))
			settle(batch, handler(ctx, batch), logger)
		}
		if !ok {
			return
		}
	}
}

// collectBatch blocks for the first delivery, then gathers more until size
// deliveries are buffered or linger has elapsed. ok is false once msgs is
// closed; any deliveries read before that are still returned.
func collectBatch(msgs <-chan amqp.Delivery, size int, linger time.Duration) (batch []amqp.Delivery, ok bool) {
	first, ok := <-msgs
	if !ok {
		return nil, false
	}
	batch = append(batch, first)

	timer := time.NewTimer(linger)
	defer timer.Stop()

	for len(batch) < size {
		select {
		case d, ok := <-msgs:
			if !ok {
				return batch, false
			}
			batch = append(batch, d)
		case <-timer.C:
			return batch, true
		}
	}
	return batch, true
}

// settle acks or nacks every delivery of a batch according to err.
func settle(batch []amqp.Delivery, err error, logger *zap.Logger) {
	if err == nil {
		for _, d := range batch {
			ack(d, logger)
		}
		return
	}

	var be *BatchError
	if !errors.As(err, &be) || be.Index < 0 || be.Index >= len(batch) {
		logger.Error("Batch failed, requeueing all messages", zap.Int("size", len(batch)), zap.Error(err))
		for _, d := range batch {
			nack(d, true, logger)
		}
		return
	}

	failed := batch[be.Index]
	logger.Error("Batch stopped on message",
		zap.Int("index", be.Index),
		zap.String("message_id", failed.MessageId),
		zap.String("correlation_id", failed.CorrelationId),
		zap.Bool("requeue", be.Requeue),
		zap.Bool("redelivered", failed.Redelivered),
		zap.Error(be.Err))

	for _, d := range batch[:be.Index] {
		ack(d, logger)
	}
	nack(failed, be.Requeue, logger)
	for _, d := range batch[be.Index+1:] {
		nack(d, true, logger)
	}
}

func ack(d amqp.Delivery, logger *zap.Logger) {
	if err := d.Ack(false); err != nil {
		logger.Error("Failed to ack message", zap.String("message_id", d.MessageId), zap.Error(err))
	}
}

func nack(d amqp.Delivery, requeue bool, logger *zap.Logger) {
	if err := d.Nack(false, requeue); err != nil {
		logger.Error("Failed to nack message", zap.String("message_id", d.MessageId), zap.Error(err))
	}
}
