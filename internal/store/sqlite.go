package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/yar/internal/domain"
	"github.com/ashureev/yar/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	defaultBusyTimeout = 5 * time.Second
	txMaxRetries       = 3
	txBaseDelay        = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
// The database file may be shared by several processes at once.
type SQLiteStore struct {
	db *sql.DB
}

// Options tunes the SQLite connection.
type Options struct {
	// BusyTimeout is how long a connection waits on a locked database before SQLITE_BUSY.
	BusyTimeout time.Duration
}

// NewSQLite creates a new SQLite-backed repository and applies pending migrations.
func NewSQLite(ctx context.Context, dbPath string, opts Options) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}

	db, err := sql.Open("sqlite", buildDSN(dbPath, busy))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return store, nil
}

// buildDSN enables WAL so readers never block the writer, sets the busy timeout,
// turns on foreign keys per connection and makes write transactions take the
// RESERVED lock up front (BEGIN IMMEDIATE) to avoid lock-upgrade deadlocks.
func buildDSN(dbPath string, busy time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_txlock", "immediate")
	return "file:" + dbPath + "?" + q.Encode()
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// withTx runs fn in a write transaction, retrying with exponential backoff when
// another connection holds the lock past the busy timeout. Classified domain
// errors returned by fn pass through; anything else becomes a DatabaseError.
func (s *SQLiteStore) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	var err error
	for i := 0; i < txMaxRetries; i++ {
		err = s.runTx(ctx, fn)
		if err == nil {
			return nil
		}

		var de *domain.Error
		if errors.As(err, &de) {
			return err
		}

		if !shared.IsSQLiteConflictError(err) || i == txMaxRetries-1 {
			break
		}

		delay := txBaseDelay * time.Duration(1<<i) // 50ms, 100ms
		slog.Debug("Store transaction hit a locked database, retrying",
			"op", op,
			"attempt", i+1,
			"delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.DatabaseError(op, ctx.Err())
		case <-timer.C:
		}
	}
	return domain.DatabaseError(op, err)
}

func (s *SQLiteStore) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("Failed to roll back transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	return string(data), nil
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "query", what, "error", err)
	}
}
