// Package database is the append-only message log. It creates its schema on
// open and serves the two read queries clients need: recent history and
// keyword search.
package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/johndosdos/wschat/internal/model"
)

// DefaultLimit bounds history and search results when callers pass no limit.
const DefaultLimit = 10

//go:embed schema
var schemaFS embed.FS

// Options describe how to open a Store.
type Options struct {
	Dialect Dialect
	// URL is a file path or "file:" DSN for SQLite, a connection string for Postgres.
	URL          string
	DefaultLimit int
	Logger       *slog.Logger
}

// Store is the message log shared by every session. It is safe for
// concurrent use.
type Store struct {
	db           *sql.DB
	pool         *pgxpool.Pool
	queries      *Queries
	dialect      Dialect
	defaultLimit int
	log          *slog.Logger
}

// Open connects to the database described by opts and creates the messages
// table if it does not exist yet.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultLimit
	}

	s := &Store{
		dialect:      opts.Dialect,
		defaultLimit: opts.DefaultLimit,
		log:          opts.Logger,
	}

	var err error
	switch opts.Dialect {
	case DialectSQLite:
		s.db, err = openSQLite(ctx, opts.URL)
	case DialectPostgres:
		s.pool, err = pgxpool.New(ctx, opts.URL)
		if err == nil {
			err = s.pool.Ping(ctx)
		}
		if err != nil {
			if s.pool != nil {
				s.pool.Close()
			}
			return nil, fmt.Errorf("could not connect to the postgresql database: %w", err)
		}
		s.db = stdlib.OpenDBFromPool(s.pool)
	default:
		return nil, fmt.Errorf("unsupported database dialect %q", opts.Dialect)
	}
	if err != nil {
		return nil, err
	}

	if err := s.migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	s.queries = New(s.db, opts.Dialect)
	return s, nil
}

func openSQLite(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", sqliteDSN(url))
	if err != nil {
		return nil, fmt.Errorf("could not open sqlite database %q: %w", url, err)
	}

	// One connection serializes every query in this process, so history and
	// search wait behind inserts. WAL only helps other processes reading the
	// file.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not connect to sqlite database %q: %w", url, err)
	}
	return db, nil
}

// sqliteDSN adds the pragmas every new connection must run. They live in the
// DSN so a replacement connection gets them too.
func sqliteDSN(url string) string {
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (s *Store) migrate(ctx context.Context) error {
	dir, err := fs.Sub(schemaFS, "schema/"+string(s.dialect))
	if err != nil {
		return fmt.Errorf("schema for %s: %w", s.dialect, err)
	}

	gooseDialect := goose.DialectSQLite3
	if s.dialect == DialectPostgres {
		gooseDialect = goose.DialectPostgres
	}

	provider, err := goose.NewProvider(gooseDialect, s.db, dir)
	if err != nil {
		return fmt.Errorf("goose.NewProvider() error = %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose.Up() error = %w", err)
	}
	for _, res := range results {
		s.log.InfoContext(ctx, "applied schema",
			"source", res.Source.Path,
			"duration", res.Duration)
	}
	return nil
}

// Append stores one message and returns its id.
func (s *Store) Append(ctx context.Context, rec model.MessageRecord) (int64, error) {
	id, err := s.queries.CreateMessage(ctx, rec)
	if err != nil {
		return 0, fmt.Errorf("failed to store message from %s: %w", rec.FromUser, err)
	}
	return id, nil
}

// RecentHistory returns the newest messages, newest first. A non-positive
// limit falls back to the store default.
func (s *Store) RecentHistory(ctx context.Context, limit int) ([]model.MessageRecord, error) {
	records, err := s.queries.ListMessages(ctx, s.limit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to load messages from database: %w", err)
	}
	return records, nil
}

// Search returns messages whose content contains keyword, newest first. No
// match yields an empty slice.
func (s *Store) Search(ctx context.Context, keyword string, limit int) ([]model.MessageRecord, error) {
	records, err := s.queries.SearchMessages(ctx, keyword, s.limit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to search messages for %q: %w", keyword, err)
	}
	return records, nil
}

func (s *Store) limit(n int) int {
	if n <= 0 {
		return s.defaultLimit
	}
	return n
}

// Close releases the database handle.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}
