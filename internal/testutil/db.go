// Package testutil provides shared helpers for integration tests.
// Helpers skip the calling test when TEST_DATABASE_URL is not set, so unit
// tests run without a database.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" for database/sql
)

// DSNEnv names the variable integration tests read their database from.
const DSNEnv = "TEST_DATABASE_URL"

// NewPool opens a pool against TEST_DATABASE_URL and closes it when the test ends.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := RequireDSN(t)

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("testutil.NewPool: open pool: %v", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		t.Fatalf("testutil.NewPool: ping: %v", err)
	}

	t.Cleanup(pool.Close)
	return pool
}

// NewSQLDB opens a database/sql handle for goose against TEST_DATABASE_URL.
func NewSQLDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := RequireDSN(t)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("testutil.NewSQLDB: open: %v", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		t.Fatalf("testutil.NewSQLDB: ping: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}

// MustOpenSQLDB is NewSQLDB for TestMain, where no *testing.T exists.
// Callers close the returned handle.
func MustOpenSQLDB(dsn string) *sql.DB {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		panic("testutil.MustOpenSQLDB: open: " + err.Error())
	}
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		panic("testutil.MustOpenSQLDB: ping: " + err.Error())
	}
	return db
}

// RequireDSN returns TEST_DATABASE_URL or skips the test.
func RequireDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv(DSNEnv)
	if dsn == "" {
		t.Skip(DSNEnv + " not set; skipping integration test")
	}
	return dsn
}
