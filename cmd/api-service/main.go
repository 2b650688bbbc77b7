package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jtich40/event-driven-integration-demo/internal/api"
	"github.com/jtich40/event-driven-integration-demo/internal/app"
	"github.com/jtich40/event-driven-integration-demo/internal/events"
	"github.com/jtich40/event-driven-integration-demo/pkg/config"
	"github.com/jtich40/event-driven-integration-demo/pkg/database"
	"github.com/jtich40/event-driven-integration-demo/pkg/logging"
	"github.com/jtich40/event-driven-integration-demo/pkg/rabbitmq"
)

func main() {
	cfg, err := config.LoadForService("API")
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

	logger = logger.With(zap.String("service", "api"))
	if err := run(cfg, logger); err != nil {
		logger.Fatal("API service failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting api-service")

	storage, err := app.OpenStorage(ctx, cfg, "api", database.DefaultConnectOptions(), logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer storage.Close()

	rmqConn, err := rabbitmq.Connect(ctx, cfg.RabbitMQURL, logger)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	defer rmqConn.Close()

	sender, err := rabbitmq.NewPublisher(rmqConn, cfg.PublishTimeout, logger)
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}
	defer sender.Close()

	handler := api.NewUserHandler(storage.Users, events.NewPublisher(sender, logger), logger)
	router := api.NewRouter(handler, logger)

	// HTTP server with graceful shutdown
	srv := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", zap.String("port", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	logger.Info("Server exited gracefully")
	return nil
}
