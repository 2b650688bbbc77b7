package database

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/jtich40/event-driven-integration-demo/pkg/store"
)

// RunMigrations creates the document tables the given service uses.
func RunMigrations(ctx context.Context, db *sql.DB, driver, service string, logger *zap.Logger) error {
	for _, m := range getServiceMigrations(driver, service) {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration for %s failed: %w", service, err)
		}
	}
	logger.Info("Migrations completed", zap.String("service", service), zap.String("driver", driver))
	return nil
}

func documentTable(driver, name string) string {
	docType, tsType := "JSONB", "TIMESTAMPTZ"
	if driver == DriverSQLite {
		docType, tsType = "TEXT", "TIMESTAMP"
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			doc %s NOT NULL,
			updated_at %s NOT NULL
		)`, name, docType, tsType)
}

func getServiceMigrations(driver, service string) []string {
	switch service {
	case "api":
		return []string{documentTable(driver, store.UsersTable)}
	case "erp":
		return []string{documentTable(driver, store.ProcessedUsersTable)}
	default:
		// Tools such as the CLI read both tables.
		return []string{
			documentTable(driver, store.UsersTable),
			documentTable(driver, store.ProcessedUsersTable),
		}
	}
}
