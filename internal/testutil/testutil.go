// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackzampolin/promptctx/internal/store"
	"github.com/jackzampolin/promptctx/internal/store/memstore"
	"github.com/jackzampolin/promptctx/internal/store/sqlstore"
)

// PostgresDSNEnv names the variable that enables postgres-backed tests.
const PostgresDSNEnv = "PROMPTCTX_TEST_POSTGRES_DSN"

// Logger returns a logger that discards output unless -v is set.
func Logger(tb testing.TB) *slog.Logger {
	tb.Helper()
	if testing.Verbose() {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MemStore returns an empty in-memory backend.
func MemStore(tb testing.TB) *memstore.Store {
	tb.Helper()
	return memstore.New()
}

// SQLite returns a migrated sqlite backend in a temp directory.
func SQLite(tb testing.TB, allowRaw bool) *sqlstore.Store {
	tb.Helper()
	return openSQL(tb, sqlstore.Options{
		Driver:          sqlstore.DriverSQLite,
		DSN:             filepath.Join(tb.TempDir(), "promptctx.db"),
		AllowRawQueries: allowRaw,
		Logger:          Logger(tb),
	})
}

// Postgres returns a migrated postgres backend, skipping the test when
// PROMPTCTX_TEST_POSTGRES_DSN is unset. Engine tables are emptied first.
func Postgres(tb testing.TB, allowRaw bool) *sqlstore.Store {
	tb.Helper()
	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		tb.Skipf("set %s to run postgres integration tests", PostgresDSNEnv)
	}
	s := openSQL(tb, sqlstore.Options{
		Driver:          sqlstore.DriverPostgres,
		DSN:             dsn,
		AllowRawQueries: allowRaw,
		ConnectAttempts: 3,
		ConnectDelay:    500 * time.Millisecond,
		Logger:          Logger(tb),
	})
	for _, c := range store.Collections() {
		if err := s.DB().Exec("DELETE FROM " + c).Error; err != nil {
			tb.Fatalf("failed to truncate %s: %v", c, err)
		}
	}
	return s
}

func openSQL(tb testing.TB, opts sqlstore.Options) *sqlstore.Store {
	tb.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := sqlstore.Open(ctx, opts)
	if err != nil {
		tb.Fatalf("failed to open %s store: %v", opts.Driver, err)
	}
	tb.Cleanup(func() { s.Close() })
	if err := s.Migrate(ctx); err != nil {
		tb.Fatalf("failed to migrate %s store: %v", opts.Driver, err)
	}
	return s
}

// Backends returns every backend a behavioral test should run against.
// The sqlite entry allows raw queries; memstore never does.
func Backends(tb testing.TB) map[string]store.Backend {
	tb.Helper()
	return map[string]store.Backend{
		"memstore": MemStore(tb),
		"sqlite":   SQLite(tb, true),
	}
}

// Seed inserts records into a collection, failing the test on error.
func Seed(tb testing.TB, b store.Backend, collection string, recs ...store.Record) {
	tb.Helper()
	for _, r := range recs {
		if _, err := b.Insert(context.Background(), collection, r); err != nil {
			tb.Fatalf("seed %s: %v", collection, err)
		}
	}
}

// WriteFile writes content under dir, creating parents, and returns the path.
func WriteFile(tb testing.TB, dir, name, content string) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	return path
}
