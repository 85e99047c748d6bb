package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/ashureev/yar/internal/domain"
)

const sessionColumns = `session_id, session_name, status, capabilities,
	working_directory, registered_at, last_heartbeat, metadata`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var sess domain.Session
	var status, capabilities, metadata string
	var registeredAt, lastHeartbeat int64

	if err := row.Scan(
		&sess.ID, &sess.Name, &status, &capabilities,
		&sess.WorkingDirectory, &registeredAt, &lastHeartbeat, &metadata,
	); err != nil {
		return nil, err
	}

	sess.Status = domain.SessionStatus(status)
	sess.RegisteredAt = fromMillis(registeredAt)
	sess.LastHeartbeat = fromMillis(lastHeartbeat)

	if err := json.Unmarshal([]byte(capabilities), &sess.Capabilities); err != nil {
		return nil, fmt.Errorf("decode capabilities: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &sess.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if sess.Capabilities == nil {
		sess.Capabilities = []string{}
	}
	if sess.Metadata == nil {
		sess.Metadata = map[string]any{}
	}
	return &sess, nil
}

// CreateSession inserts a new session row.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *domain.Session) error {
	capabilities := sess.Capabilities
	if capabilities == nil {
		capabilities = []string{}
	}
	metadata := sess.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	capsJSON, err := encodeJSON(capabilities)
	if err != nil {
		return domain.NewError(domain.KindValidation, err.Error())
	}
	metaJSON, err := encodeJSON(metadata)
	if err != nil {
		return domain.NewError(domain.KindValidation, err.Error())
	}

	return s.withTx(ctx, "create session", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.ID, sess.Name, string(sess.Status), capsJSON,
			sess.WorkingDirectory, toMillis(sess.RegisteredAt), toMillis(sess.LastHeartbeat), metaJSON,
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sessionNotFound(sessionID)
	}
	if err != nil {
		return nil, domain.DatabaseError("scan session row", err)
	}
	return sess, nil
}

// TouchSession refreshes the heartbeat and applies optional status and metadata updates.
func (s *SQLiteStore) TouchSession(ctx context.Context, sessionID string, now time.Time, status *domain.SessionStatus, metadata map[string]any) (*domain.Session, error) {
	var updated *domain.Session
	err := s.withTx(ctx, "heartbeat session", func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
		sess, err := scanSession(row)
		if errors.Is(err, sql.ErrNoRows) {
			return sessionNotFound(sessionID)
		}
		if err != nil {
			return fmt.Errorf("scan session row: %w", err)
		}

		// last_heartbeat never moves backwards, even if this process's clock lags.
		if now.After(sess.LastHeartbeat) {
			sess.LastHeartbeat = now
		}
		if status != nil {
			sess.Status = *status
		}
		if metadata != nil {
			maps.Copy(sess.Metadata, metadata)
		}

		metaJSON, err := encodeJSON(sess.Metadata)
		if err != nil {
			return domain.NewError(domain.KindValidation, err.Error())
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET last_heartbeat = ?, status = ?, metadata = ? WHERE session_id = ?`,
			toMillis(sess.LastHeartbeat), string(sess.Status), metaJSON, sessionID,
		); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		updated = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteSession removes a session with its memberships, then drops channels left empty.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	return s.withTx(ctx, "delete session", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM channel_subscriptions WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("delete session subscriptions: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
		if err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return sessionNotFound(sessionID)
		}

		return deleteEmptyChannels(ctx, tx)
	})
}

// DeleteExpiredSessions removes sessions whose last heartbeat is before cutoff.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	threshold := toMillis(cutoff)

	// Cheap read first so an idle sweep never takes the write lock.
	var pending int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE last_heartbeat < ?`, threshold,
	).Scan(&pending); err != nil {
		return 0, domain.DatabaseError("count expired sessions", err)
	}
	if pending == 0 {
		return 0, nil
	}

	var removed int64
	err := s.withTx(ctx, "delete expired sessions", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM channel_subscriptions WHERE session_id IN (
				SELECT session_id FROM sessions WHERE last_heartbeat < ?
			)`, threshold); err != nil {
			return fmt.Errorf("delete expired subscriptions: %w", err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE last_heartbeat < ?`, threshold)
		if err != nil {
			return fmt.Errorf("delete expired sessions: %w", err)
		}
		removed, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}

		return deleteEmptyChannels(ctx, tx)
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// deleteEmptyChannels keeps "a channel exists iff it has members" true after
// memberships are removed by session deletion. Messages cascade with the channel.
func deleteEmptyChannels(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM channels WHERE NOT EXISTS (
			SELECT 1 FROM channel_subscriptions cs WHERE cs.channel_id = channels.channel_id
		)`); err != nil {
		return fmt.Errorf("delete empty channels: %w", err)
	}
	return nil
}

func sessionNotFound(sessionID string) *domain.Error {
	return domain.Errorf(domain.KindSessionNotFound,
		"Session '%s' not found. Re-register to obtain a new session.", sessionID)
}
