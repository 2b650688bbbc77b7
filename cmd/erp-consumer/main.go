package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/jtich40/event-driven-integration-demo/internal/app"
	"github.com/jtich40/event-driven-integration-demo/internal/erp"
	"github.com/jtich40/event-driven-integration-demo/internal/events"
	"github.com/jtich40/event-driven-integration-demo/pkg/config"
	"github.com/jtich40/event-driven-integration-demo/pkg/database"
	"github.com/jtich40/event-driven-integration-demo/pkg/health"
	"github.com/jtich40/event-driven-integration-demo/pkg/logging"
	"github.com/jtich40/event-driven-integration-demo/pkg/rabbitmq"
)

const (
	queueName    = "erp.user.events"
	dlqName      = "dlq.erp.user.events"
	consumerName = "erp-consumer"
)

func main() {
	cfg, err := config.LoadForService("ERP")
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger = logger.With(zap.String("service", "erp"))
	if err := run(cfg, logger); err != nil {
		logger.Fatal("ERP consumer failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	malformed, err := erp.ParsePolicy(cfg.MalformedPolicy)
	if err != nil {
		return fmt.Errorf("ERP_MALFORMED_POLICY: %w", err)
	}
	invalid, err := erp.ParsePolicy(cfg.InvalidPolicy)
	if err != nil {
		return fmt.Errorf("ERP_INVALID_POLICY: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting erp-consumer")

	storage, err := app.OpenStorage(ctx, cfg, "erp", database.DefaultConnectOptions(), logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer storage.Close()

	rmqConn, err := rabbitmq.Connect(ctx, cfg.RabbitMQURL, logger)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	defer rmqConn.Close()

	processor := erp.NewProcessor(storage.Processed, erp.ProcessorConfig{
		Latency:   cfg.ERPLatency,
		WriteOnce: cfg.AuditWriteOnce,
	}, logger)
	consumer := erp.NewConsumer(processor, erp.ConsumerConfig{
		MalformedPolicy: malformed,
		InvalidPolicy:   invalid,
	}, logger)

	done, err := rabbitmq.SetupBatchConsumer(ctx, rmqConn, rabbitmq.ConsumerConfig{
		QueueName:    queueName,
		DLQName:      dlqName,
		RoutingKeys:  []string{events.RoutingKeyUserCreated},
		ConsumerName: consumerName,
		BatchSize:    cfg.BatchSize,
		BatchLinger:  cfg.BatchLinger,
	}, consumer.HandleBatch, logger)
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}

	healthSrv := health.NewServer(map[string]health.Check{
		"store": storage.Ping,
		"rabbitmq": func(ctx context.Context) error {
			if rmqConn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		},
	}, logger)
	healthErr := make(chan error, 1)
	go func() { healthErr <- healthSrv.Run(ctx, cfg.HealthAddr) }()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down, finishing in-flight batch")
	case <-done:
		// The broker closed the delivery channel.
		stop()
		<-healthErr
		return errors.New("delivery channel closed")
	case err := <-healthErr:
		stop()
		<-done
		return fmt.Errorf("health server: %w", err)
	}

	<-done
	if err := <-healthErr; err != nil {
		logger.Warn("Health server stopped with error", zap.Error(err))
	}
	logger.Info("ERP consumer exited gracefully")
	return nil
}
