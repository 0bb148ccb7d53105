// Package dbtest starts a throwaway PostgreSQL container with the schema applied,
// for store integration tests.
package dbtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/transportuni/chatbot-api/config"
	"github.com/transportuni/chatbot-api/db"
)

// NewPool returns a pool on a migrated database. The test is skipped when
// SKIP_INTEGRATION=true or no container runtime is reachable.
func NewPool(t *testing.T) (*pgxpool.Pool, *config.DatabaseConfig) {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}

	ctx := context.Background()
	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("chatbot_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminating container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	cfg := &config.DatabaseConfig{Driver: config.StoreDriverPostgres, URL: connStr, MaxSize: 5}
	if _, err := db.RunMigrations(cfg, nil); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		t.Fatalf("creating pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool, cfg
}

// Reset empties every table, keeping the schema.
func Reset(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	if _, err := pool.Exec(context.Background(), `TRUNCATE chat_history, users CASCADE`); err != nil {
		t.Fatalf("truncating tables: %v", err)
	}
}
