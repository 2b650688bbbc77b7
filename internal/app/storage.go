// Package app wires the shared infrastructure the binaries start from.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/jtich40/event-driven-integration-demo/pkg/config"
	"github.com/jtich40/event-driven-integration-demo/pkg/database"
	"github.com/jtich40/event-driven-integration-demo/pkg/models"
	"github.com/jtich40/event-driven-integration-demo/pkg/store"
)

// Storage holds the record store tables for one process.
type Storage struct {
	Users     store.Table[models.User]
	Processed store.Table[models.ProcessedEventRecord]

	db *sql.DB
}

// sqlDriver maps STORE_DRIVER to a database/sql driver name. The memory
// store has none.
func sqlDriver(storeDriver string) (string, error) {
	switch storeDriver {
	case "postgres":
		return database.DriverPostgres, nil
	case "sqlite":
		return database.DriverSQLite, nil
	case "memory":
		return "", nil
	default:
		return "", fmt.Errorf("unsupported store driver %q", storeDriver)
	}
}

// OpenStorage connects to the configured store and creates the tables
// service needs.
func OpenStorage(ctx context.Context, cfg *config.Config, service string, opts database.ConnectOptions, logger *zap.Logger) (*Storage, error) {
	driver, err := sqlDriver(cfg.StoreDriver)
	if err != nil {
		return nil, err
	}

	if driver == "" {
		logger.Warn("Using in-memory store, data is lost on exit", zap.String("service", service))
		return &Storage{
			Users:     store.NewMemoryTable[models.User](),
			Processed: store.NewMemoryTable[models.ProcessedEventRecord](),
		}, nil
	}

	db, err := database.Connect(ctx, driver, cfg.DatabaseURL, opts, logger)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(ctx, db, driver, service, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Storage{
		Users:     store.NewSQLTable[models.User](db, store.UsersTable),
		Processed: store.NewSQLTable[models.ProcessedEventRecord](db, store.ProcessedUsersTable),
		db:        db,
	}, nil
}

// Ping checks the database is reachable. The memory store always is.
func (s *Storage) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// Close releases the database connection, if any.
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
