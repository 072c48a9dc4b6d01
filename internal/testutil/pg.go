// Package testutil holds helpers for tests that need real infrastructure.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	postgresrepo "github.com/bashostudio/basho-go/internal/repository/postgres"
)

// NewStore connects to the database named by TEST_DATABASE_URL, applies the
// schema and truncates every table, so each test starts from a clean slate.
// Tests that call it are skipped when the variable is unset.
func NewStore(t *testing.T) (*postgresrepo.Store, *pgxpool.Pool) {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	ddl, err := os.ReadFile(migrationPath())
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	for _, stmt := range strings.Split(string(ddl), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}

	if _, err := pool.Exec(ctx,
		`TRUNCATE cart_items, carts, product_order_items, product_orders,
		 payment_events, reservations, payment_orders,
		 experience_slots, experiences, workshop_slots, workshops,
		 products, capacity_units
		 RESTART IDENTITY CASCADE`,
	); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}

	return postgresrepo.NewStore(pool), pool
}

func migrationPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations", "0001_init.sql")
}
