package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
)

type migration struct {
	version    int
	statements []string
}

// migrations is applied in order. Each version runs in its own transaction
// together with the schema_meta update, so a crash never leaves a half-applied step.
var migrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS sessions (
				session_id TEXT PRIMARY KEY,
				session_name TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'active',
				capabilities TEXT NOT NULL DEFAULT '[]',
				working_directory TEXT NOT NULL DEFAULT '',
				registered_at INTEGER NOT NULL,
				last_heartbeat INTEGER NOT NULL,
				metadata TEXT NOT NULL DEFAULT '{}'
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_last_heartbeat ON sessions(last_heartbeat)`,
			`CREATE TABLE IF NOT EXISTS channels (
				channel_id TEXT PRIMARY KEY,
				channel_name TEXT NOT NULL UNIQUE,
				description TEXT NOT NULL DEFAULT '',
				created_by TEXT NOT NULL,
				created_at INTEGER NOT NULL
			)`,
		},
	},
	{
		version: 2,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS channel_subscriptions (
				channel_id TEXT NOT NULL,
				session_id TEXT NOT NULL,
				nickname TEXT NOT NULL,
				subscribed_at INTEGER NOT NULL,
				PRIMARY KEY (channel_id, session_id),
				FOREIGN KEY (channel_id) REFERENCES channels(channel_id) ON DELETE CASCADE,
				FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_sub_channel_nick ON channel_subscriptions(channel_id, nickname)`,
			`CREATE INDEX IF NOT EXISTS idx_sub_session ON channel_subscriptions(session_id)`,
			`CREATE TABLE IF NOT EXISTS channel_messages (
				message_id TEXT PRIMARY KEY,
				channel_id TEXT NOT NULL,
				sender_id TEXT NOT NULL,
				nickname TEXT NOT NULL,
				body TEXT NOT NULL,
				mentions TEXT NOT NULL DEFAULT '[]',
				created_at INTEGER NOT NULL,
				FOREIGN KEY (channel_id) REFERENCES channels(channel_id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chanmsg_channel_created ON channel_messages(channel_id, created_at)`,
		},
	},
	{
		// Per-channel insertion sequence: the tiebreak of record for equal timestamps.
		version: 3,
		statements: []string{
			`ALTER TABLE channel_messages ADD COLUMN seq INTEGER NOT NULL DEFAULT 0`,
			`UPDATE channel_messages SET seq = rowid`,
			`DROP INDEX IF EXISTS idx_chanmsg_channel_created`,
			`CREATE INDEX IF NOT EXISTS idx_chanmsg_channel_order ON channel_messages(channel_id, created_at, seq)`,
			`CREATE INDEX IF NOT EXISTS idx_chanmsg_created ON channel_messages(created_at)`,
		},
	},
}

// LatestSchemaVersion is the version a fully migrated database reports.
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].version
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_meta: %w", err)
	}

	for _, m := range migrations {
		applied := false
		err := s.withTx(ctx, fmt.Sprintf("migrate v%d", m.version), func(tx *sql.Tx) error {
			// Re-read inside the transaction: another process may have migrated meanwhile.
			current, err := schemaVersion(ctx, tx)
			if err != nil {
				return err
			}
			if current >= m.version {
				return nil
			}
			for _, stmt := range m.statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration v%d failed: %w\n%s", m.version, err, stmt)
				}
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schema_meta (key, value) VALUES ('version', ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
				strconv.Itoa(m.version)); err != nil {
				return fmt.Errorf("record schema version: %w", err)
			}
			applied = true
			return nil
		})
		if err != nil {
			return err
		}
		if applied {
			slog.Info("Applied schema migration", "version", m.version)
		}
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func schemaVersion(ctx context.Context, q queryRower) (int, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM schema_meta WHERE key = 'version'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", value, err)
	}
	return v, nil
}

// SchemaVersion returns the applied migration version.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	return schemaVersion(ctx, s.db)
}
