// Package pgtest starts throwaway PostgreSQL containers for integration
// tests. Tests are skipped when no container runtime is available.
package pgtest

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dmitrymomot/billing/pkg/pg"
)

// Migration is one goose migration set to apply.
type Migration struct {
	FS    fs.FS
	Dir   string
	Table string
}

// Pool starts a container, applies migrations and returns a pool that is
// closed, with the container terminated, when t finishes.
func Pool(t *testing.T, migrations ...Migration) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	_ = provider.Close()

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("billing_test"),
		postgres.WithUsername("billing"),
		postgres.WithPassword("billing"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := pg.Config{
		ConnectionString: dsn,
		MaxOpenConns:     8,
		MaxIdleConns:     1,
		RetryAttempts:    5,
		RetryInterval:    200 * time.Millisecond,
	}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, m := range migrations {
		cfg.MigrationsTable = m.Table
		require.NoError(t, pg.Migrate(ctx, pool, cfg, m.FS, m.Dir, log))
	}
	return pool
}
