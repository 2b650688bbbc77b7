// Package database opens the SQL databases behind the record store and
// creates their tables.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Driver names accepted by Connect.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// ConnectOptions controls the connect retry loop.
type ConnectOptions struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultConnectOptions waits up to a minute for the database to come up.
func DefaultConnectOptions() ConnectOptions {
	return ConnectOptions{Attempts: 30, Backoff: 2 * time.Second}
}

// Connect opens a database and pings it, retrying until it answers or the
// attempts run out.
func Connect(ctx context.Context, driver, dsn string, opts ConnectOptions, logger *zap.Logger) (*sql.DB, error) {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}

	var db *sql.DB
	var err error

	for i := 0; i < opts.Attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(opts.Backoff):
			}
		}

		db, err = sql.Open(driver, dsn)
		if err != nil {
			logger.Warn("Failed to open database, retrying",
				zap.String("driver", driver), zap.Int("attempt", i+1), zap.Error(err))
			continue
		}

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			if driver == DriverSQLite {
				// A single connection keeps ":memory:" databases shared and
				// serializes writers.
				db.SetMaxOpenConns(1)
			}
			logger.Info("Connected to database", zap.String("driver", driver))
			return db, nil
		}

		_ = db.Close()
		logger.Warn("Failed to ping database, retrying",
			zap.String("driver", driver), zap.Int("attempt", i+1), zap.Error(err))
	}

	return nil, fmt.Errorf("could not connect to %s after %d attempts: %w", driver, opts.Attempts, err)
}
