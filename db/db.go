// Package db provides PostgreSQL connectivity and schema migrations.
// The application talks to the database through a pgxpool; migrations run through
// golang-migrate, whose postgres driver sits on database/sql and lib/pq.
//
// The SQL files under migrations/ are embedded in the binary, so `chatbot-api migrate`
// works from any directory and the container image needs no extra files.
package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // registers the postgres:// migrate driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq" // database/sql driver used by migrate's postgres driver

	"github.com/transportuni/chatbot-api/apperror"
	"github.com/transportuni/chatbot-api/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewPool creates a pgxpool for the configured database and pings it.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, apperror.NewDatabaseError("error parsing database DSN", err)
	}

	if cfg.MaxSize > 0 {
		poolConfig.MaxConns = int32(cfg.MaxSize)
	}
	poolConfig.MaxConnIdleTime = 10 * time.Minute
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	createCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(createCtx, poolConfig)
	if err != nil {
		return nil, apperror.NewDatabaseError("error creating pgxpool", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, apperror.NewDatabaseError("error connecting to the database", err)
	}

	return pool, nil
}

// newMigrator builds a migrate instance over the embedded SQL files.
func newMigrator(dsn string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, apperror.NewMigrationError("failed to open embedded migrations", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return nil, apperror.NewMigrationError("failed to create migrator", err)
	}
	return m, nil
}

func closeMigrator(m *migrate.Migrate, logger *slog.Logger) {
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		logger.Warn("error closing migration source", "error", srcErr)
	}
	if dbErr != nil {
		logger.Warn("error closing migration database", "error", dbErr)
	}
}

// RunMigrations applies every pending up migration and returns the resulting
// schema version. Having nothing to apply is not an error.
func RunMigrations(cfg *config.DatabaseConfig, logger *slog.Logger) (uint, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := newMigrator(cfg.DSN())
	if err != nil {
		return 0, err
	}
	defer closeMigrator(m, logger)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, apperror.NewMigrationError("failed to run migrations", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, apperror.NewMigrationError("failed to read schema version", err)
	}
	if dirty {
		return version, apperror.NewMigrationError(fmt.Sprintf("schema version %d is dirty", version), nil)
	}
	logger.Info("database schema is up to date", "version", version)
	return version, nil
}

// RollbackMigrations reverts the given number of migrations.
func RollbackMigrations(cfg *config.DatabaseConfig, steps int, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if steps <= 0 {
		return apperror.NewValidationError("rollback steps must be positive", nil)
	}
	m, err := newMigrator(cfg.DSN())
	if err != nil {
		return err
	}
	defer closeMigrator(m, logger)

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return apperror.NewMigrationError("failed to roll back migrations", err)
	}
	return nil
}
