package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// TableEnsurer creates a table when it does not exist.
type TableEnsurer interface {
	EnsureTable(ctx context.Context) error
}

// migrationSource returns the migrations directory and the database URL understood by
// golang-migrate for driver.
func migrationSource(driver, connectionString string) (string, string, error) {
	switch driver {
	case "postgres":
		return "file://migrations/postgresql", connectionString, nil
	case "mysql":
		if !strings.HasPrefix(connectionString, "mysql://") {
			connectionString = "mysql://" + connectionString
		}
		return "file://migrations/mysql", connectionString, nil
	default:
		return "", "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// RunMigrations applies all pending SQL migrations for driver. Returns nil if there is
// nothing to apply.
func RunMigrations(logger *slog.Logger, driver, connectionString string) error {
	logger.Info("running database migrations", slog.String("driver", driver))

	migrationsPath, databaseURL, err := migrationSource(driver, connectionString)
	if err != nil {
		return err
	}

	m, err := migrate.New(migrationsPath, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer closeMigrate(m, logger)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("migrations completed successfully")
	return nil
}

// RunEventLogMigration creates the ClickHouse event log table.
func RunEventLogMigration(ctx context.Context, eventLog TableEnsurer, logger *slog.Logger) error {
	logger.Info("creating event log table")

	if err := eventLog.EnsureTable(ctx); err != nil {
		return fmt.Errorf("failed to create event log table: %w", err)
	}

	logger.Info("event log table is ready")
	return nil
}
