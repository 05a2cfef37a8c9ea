// Package pgtest opens the migrated Postgres database used by integration
// tests. Tests skip when POSTGRES_TEST_DSN is unset.
package pgtest

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/iippk/PersonalWorks/internal/postgres"
)

const EnvDSN = "POSTGRES_TEST_DSN"

func Open(t testing.TB) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	dsn := strings.TrimSpace(os.Getenv(EnvDSN))
	if dsn == "" {
		t.Skip(EnvDSN + " not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := postgres.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.Migrate(ctx, pool))
	return pool
}

// Token returns a 32 character value unique across test runs, sized for
// order numbers.
func Token() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
