package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ashureev/yar/internal/domain"
	"github.com/ashureev/yar/internal/shared"
	"github.com/google/uuid"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// JoinChannel creates the channel if needed and adds or renames the membership.
// The whole join runs in one IMMEDIATE transaction; the unique index on
// (channel_id, nickname) is the final arbiter when two joins race.
func (s *SQLiteStore) JoinChannel(ctx context.Context, p JoinParams) (*domain.Channel, []domain.Member, error) {
	var channel *domain.Channel
	var members []domain.Member

	err := s.withTx(ctx, "join channel", func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM sessions WHERE session_id = ?`, p.SessionID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return sessionNotFound(p.SessionID)
		}
		if err != nil {
			return fmt.Errorf("check session: %w", err)
		}

		ch, err := getOrCreateChannel(ctx, tx, p)
		if err != nil {
			return err
		}

		if err := claimNickname(ctx, tx, ch, p); err != nil {
			return err
		}

		var current string
		err = tx.QueryRowContext(ctx,
			`SELECT nickname FROM channel_subscriptions WHERE channel_id = ? AND session_id = ?`,
			ch.ID, p.SessionID).Scan(&current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx,
				`INSERT INTO channel_subscriptions (channel_id, session_id, nickname, subscribed_at)
				VALUES (?, ?, ?, ?)`,
				ch.ID, p.SessionID, p.Nickname, toMillis(p.Now))
		case err != nil:
			return fmt.Errorf("lookup subscription: %w", err)
		case current == p.Nickname:
			// Re-join under the same nickname is a no-op.
		default:
			_, err = tx.ExecContext(ctx,
				`UPDATE channel_subscriptions SET nickname = ? WHERE channel_id = ? AND session_id = ?`,
				p.Nickname, ch.ID, p.SessionID)
		}
		if err != nil {
			if shared.IsUniqueConstraintError(err, "nickname") {
				return nicknameTaken(p.Nickname, p.ChannelName)
			}
			return fmt.Errorf("write subscription: %w", err)
		}

		members, err = listMembers(ctx, tx, ch.ID)
		if err != nil {
			return err
		}
		channel = ch
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return channel, members, nil
}

func getOrCreateChannel(ctx context.Context, tx *sql.Tx, p JoinParams) (*domain.Channel, error) {
	ch, err := scanChannel(tx.QueryRowContext(ctx,
		`SELECT channel_id, channel_name, description, created_by, created_at
		FROM channels WHERE channel_name = ?`, p.ChannelName))
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup channel: %w", err)
	}

	ch = &domain.Channel{
		ID:        uuid.NewString(),
		Name:      p.ChannelName,
		CreatedBy: p.SessionID,
		CreatedAt: fromMillis(toMillis(p.Now)),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO channels (channel_id, channel_name, description, created_by, created_at)
		VALUES (?, ?, '', ?, ?)`,
		ch.ID, ch.Name, ch.CreatedBy, toMillis(p.Now)); err != nil {
		if shared.IsUniqueConstraintError(err, "channel_name") {
			return nil, domain.Errorf(domain.KindChannelExists, "Channel '%s' was created concurrently, retry the join", p.ChannelName)
		}
		return nil, fmt.Errorf("insert channel: %w", err)
	}
	return ch, nil
}

// claimNickname fails with NicknameTaken if another live session holds the nickname.
// A holder whose heartbeat is older than StaleBefore is evicted instead.
func claimNickname(ctx context.Context, tx *sql.Tx, ch *domain.Channel, p JoinParams) error {
	var holder string
	var lastHeartbeat sql.NullInt64
	err := tx.QueryRowContext(ctx,
		`SELECT cs.session_id, s.last_heartbeat
		FROM channel_subscriptions cs
		LEFT JOIN sessions s ON s.session_id = cs.session_id
		WHERE cs.channel_id = ? AND cs.nickname = ? AND cs.session_id != ?`,
		ch.ID, p.Nickname, p.SessionID).Scan(&holder, &lastHeartbeat)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("check nickname: %w", err)
	}

	stale := !lastHeartbeat.Valid ||
		(!p.StaleBefore.IsZero() && lastHeartbeat.Int64 < toMillis(p.StaleBefore))
	if !stale {
		return nicknameTaken(p.Nickname, p.ChannelName)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM channel_subscriptions WHERE channel_id = ? AND session_id = ?`,
		ch.ID, holder); err != nil {
		return fmt.Errorf("evict stale subscription: %w", err)
	}
	return nil
}

// LeaveChannel removes the membership and deletes the channel once it is empty.
func (s *SQLiteStore) LeaveChannel(ctx context.Context, channelName, sessionID string) error {
	return s.withTx(ctx, "leave channel", func(tx *sql.Tx) error {
		var channelID string
		err := tx.QueryRowContext(ctx,
			`SELECT channel_id FROM channels WHERE channel_name = ?`, channelName).Scan(&channelID)
		if errors.Is(err, sql.ErrNoRows) {
			return channelNotFound(channelName)
		}
		if err != nil {
			return fmt.Errorf("lookup channel: %w", err)
		}

		result, err := tx.ExecContext(ctx,
			`DELETE FROM channel_subscriptions WHERE channel_id = ? AND session_id = ?`,
			channelID, sessionID)
		if err != nil {
			return fmt.Errorf("delete subscription: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return domain.Errorf(domain.KindNotInChannel, "Not in channel '%s'", channelName)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM channels WHERE channel_id = ? AND NOT EXISTS (
				SELECT 1 FROM channel_subscriptions WHERE channel_id = ?
			)`, channelID, channelID); err != nil {
			return fmt.Errorf("delete empty channel: %w", err)
		}
		return nil
	})
}

// ListMembers returns members ordered by join time.
func (s *SQLiteStore) ListMembers(ctx context.Context, channelID string) ([]domain.Member, error) {
	members, err := listMembers(ctx, s.db, channelID)
	if err != nil {
		return nil, domain.DatabaseError("list members", err)
	}
	return members, nil
}

func listMembers(ctx context.Context, q queryer, channelID string) ([]domain.Member, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT cs.nickname, cs.session_id, COALESCE(s.status, ?) AS status
		FROM channel_subscriptions cs
		LEFT JOIN sessions s ON s.session_id = cs.session_id
		WHERE cs.channel_id = ?
		ORDER BY cs.subscribed_at ASC, cs.rowid ASC`,
		domain.MemberStatusOffline, channelID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer closeRows(rows, "members")

	members := []domain.Member{}
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.Nickname, &m.SessionID, &m.Status); err != nil {
			return nil, fmt.Errorf("scan member row: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

// ListChannels returns every channel, newest first, with its members.
func (s *SQLiteStore) ListChannels(ctx context.Context) ([]domain.ChannelListing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_id, channel_name FROM channels ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, domain.DatabaseError("query channels", err)
	}

	type ref struct{ id, name string }
	var refs []ref
	for rows.Next() {
		var r ref
		if err := rows.Scan(&r.id, &r.name); err != nil {
			closeRows(rows, "channels")
			return nil, domain.DatabaseError("scan channel row", err)
		}
		refs = append(refs, r)
	}
	err = rows.Err()
	closeRows(rows, "channels")
	if err != nil {
		return nil, domain.DatabaseError("iterate channels", err)
	}

	listings := make([]domain.ChannelListing, 0, len(refs))
	for _, r := range refs {
		members, err := listMembers(ctx, s.db, r.id)
		if err != nil {
			return nil, domain.DatabaseError("list members", err)
		}
		listings = append(listings, domain.ChannelListing{Channel: r.name, Members: members})
	}
	return listings, nil
}

// GetChannel retrieves a channel by name.
func (s *SQLiteStore) GetChannel(ctx context.Context, channelName string) (*domain.Channel, error) {
	ch, err := scanChannel(s.db.QueryRowContext(ctx,
		`SELECT channel_id, channel_name, description, created_by, created_at
		FROM channels WHERE channel_name = ?`, channelName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, channelNotFound(channelName)
	}
	if err != nil {
		return nil, domain.DatabaseError("scan channel row", err)
	}
	return ch, nil
}

// Nickname returns the session's nickname in the channel.
func (s *SQLiteStore) Nickname(ctx context.Context, channelID, sessionID string) (string, bool, error) {
	var nickname string
	err := s.db.QueryRowContext(ctx,
		`SELECT nickname FROM channel_subscriptions WHERE channel_id = ? AND session_id = ?`,
		channelID, sessionID).Scan(&nickname)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, domain.DatabaseError("lookup nickname", err)
	}
	return nickname, true, nil
}

// MemberNicknames returns the nicknames currently present in the channel.
func (s *SQLiteStore) MemberNicknames(ctx context.Context, channelID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT nickname FROM channel_subscriptions WHERE channel_id = ?`, channelID)
	if err != nil {
		return nil, domain.DatabaseError("query nicknames", err)
	}
	defer closeRows(rows, "nicknames")

	var nicknames []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, domain.DatabaseError("scan nickname", err)
		}
		nicknames = append(nicknames, n)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.DatabaseError("iterate nicknames", err)
	}
	return nicknames, nil
}

func scanChannel(row rowScanner) (*domain.Channel, error) {
	var ch domain.Channel
	var createdAt int64
	if err := row.Scan(&ch.ID, &ch.Name, &ch.Description, &ch.CreatedBy, &createdAt); err != nil {
		return nil, err
	}
	ch.CreatedAt = fromMillis(createdAt)
	return &ch, nil
}

func channelNotFound(channelName string) *domain.Error {
	return domain.Errorf(domain.KindChannelNotFound, "Channel '%s' not found", channelName)
}

func nicknameTaken(nickname, channelName string) *domain.Error {
	return domain.Errorf(domain.KindNicknameTaken,
		"Nickname '%s' is already taken in channel '%s'", nickname, channelName)
}
