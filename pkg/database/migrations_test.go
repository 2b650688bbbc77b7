package database

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"
)

func TestGetServiceMigrations_API(t *testing.T) {
	migrations := getServiceMigrations(DriverPostgres, "api")
	if len(migrations) != 1 {
		t.Fatalf("expected 1 migration for api, got %d", len(migrations))
	}
	if !strings.Contains(migrations[0], "users") || strings.Contains(migrations[0], "erp_processed_users") {
		t.Errorf("unexpected api migration: %s", migrations[0])
	}
}

func TestGetServiceMigrations_ERP(t *testing.T) {
	migrations := getServiceMigrations(DriverPostgres, "erp")
	if len(migrations) != 1 {
		t.Fatalf("expected 1 migration for erp, got %d", len(migrations))
	}
	if !strings.Contains(migrations[0], "erp_processed_users") {
		t.Errorf("unexpected erp migration: %s", migrations[0])
	}
}

func TestGetServiceMigrations_Default(t *testing.T) {
	migrations := getServiceMigrations(DriverPostgres, "cli")
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations for cli (default), got %d", len(migrations))
	}
}

func TestDocumentTable_DialectTypes(t *testing.T) {
	pg := documentTable(DriverPostgres, "users")
	if !strings.Contains(pg, "JSONB") || !strings.Contains(pg, "TIMESTAMPTZ") {
		t.Errorf("postgres table should use JSONB/TIMESTAMPTZ: %s", pg)
	}

	lite := documentTable(DriverSQLite, "users")
	if strings.Contains(lite, "JSONB") || !strings.Contains(lite, "TEXT") {
		t.Errorf("sqlite table should use TEXT: %s", lite)
	}
}

func TestDocumentTable_UnboundedKey(t *testing.T) {
	// Event ids have no length limit, so the key column must not have one either.
	for _, driver := range []string{DriverPostgres, DriverSQLite} {
		ddl := documentTable(driver, "erp_processed_users")
		if !strings.Contains(ddl, "id TEXT PRIMARY KEY") {
			t.Errorf("%s: expected an unbounded TEXT key column: %s", driver, ddl)
		}
		if strings.Contains(ddl, "VARCHAR") {
			t.Errorf("%s: key column must not be length limited: %s", driver, ddl)
		}
	}
}

func TestRunMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS erp_processed_users").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := RunMigrations(context.Background(), db, DriverPostgres, "erp", zap.NewNop()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestRunMigrations_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").
		WillReturnError(errors.New("permission denied"))

	if err := RunMigrations(context.Background(), db, DriverPostgres, "api", zap.NewNop()); err == nil {
		t.Fatal("expected error, got nil")
	}
}
