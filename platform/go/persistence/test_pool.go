package persistence

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// mustTestPool provides a connection pool against a transient Postgres with
// the core schema applied. TEST_DATABASE_URL short-circuits the Testcontainers
// path for CI environments with a managed database.
func mustTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping persistence integration test in short mode")
	}

	ctx := context.Background()

	connStr, ok := os.LookupEnv("TEST_DATABASE_URL")
	if !ok {
		container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("leadpilot_test"),
			tcpostgres.WithUsername("postgres"),
			tcpostgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			t.Skipf("start postgres container: %v", err)
		}
		t.Cleanup(func() {
			_ = testcontainers.TerminateContainer(container)
		})

		connStr, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			t.Fatalf("container connection string: %v", err)
		}
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create test pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := ApplyCoreSchema(ctx, pool); err != nil {
		t.Fatalf("apply core schema: %v", err)
	}

	return pool
}

// testPredicate is a hand-built predicate for store tests; production
// predicates come from the rule compiler.
type testPredicate struct {
	where string
	args  []interface{}
}

func (p testPredicate) Clause() (string, []interface{}) {
	return p.where, p.args
}
