// Package testutil opens throwaway stores and loggers for tests.
package testutil

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"github.com/johndosdos/wschat/internal/database"
)

func ProjectRoot() string {
	_, file, _, _ := runtime.Caller(0)
	root := filepath.Join(filepath.Dir(file), "../../")
	return root
}

// Logger returns a debug logger for tests.
func Logger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

// NewStore opens a fresh SQLite store in a temp dir, closed at test cleanup.
func NewStore(t testing.TB) *database.Store {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := database.Open(ctx, database.Options{
		Dialect: database.DialectSQLite,
		URL:     filepath.Join(t.TempDir(), "chat_history.db"),
		Logger:  Logger(),
	})
	if err != nil {
		t.Fatalf("database.Open() error = %+v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("store.Close() error = %+v", err)
		}
	})
	return store
}

// NewPostgresStore opens the database named by TEST_DB_URL, loading the
// project .env first. The messages table is emptied before and after the
// test. Tests are skipped when no URL is configured.
func NewPostgresStore(t testing.TB) *database.Store {
	t.Helper()

	if err := godotenv.Load(filepath.Join(ProjectRoot(), ".env")); err != nil {
		t.Logf("failed to load .env file: %+v", err)
	}

	testURL := os.Getenv("TEST_DB_URL")
	if testURL == "" {
		t.Skip("TEST_DB_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := database.Open(ctx, database.Options{
		Dialect: database.DialectPostgres,
		URL:     testURL,
		Logger:  Logger(),
	})
	if err != nil {
		t.Fatalf("database.Open() error = %+v", err)
	}

	dbPool, err := pgxpool.New(ctx, testURL)
	if err != nil {
		t.Fatalf("could not connect to the postgresql database: %v", err)
	}

	truncate := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := dbPool.Exec(ctx, "TRUNCATE messages RESTART IDENTITY"); err != nil {
			t.Fatalf("truncate messages error = %+v", err)
		}
	}
	truncate()
	t.Cleanup(func() {
		truncate()
		dbPool.Close()
		if err := store.Close(); err != nil {
			t.Errorf("store.Close() error = %+v", err)
		}
	})
	return store
}
