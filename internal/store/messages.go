package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/yar/internal/domain"
	"github.com/ashureev/yar/internal/shared"
)

// InsertMessage appends a message and assigns the next per-channel sequence number.
// created_at is clamped to the channel's latest message inside the write
// transaction so (created_at, seq) order always matches commit order.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *domain.Message) error {
	mentions := msg.Mentions
	if mentions == nil {
		mentions = []string{}
	}
	mentionsJSON, err := encodeJSON(mentions)
	if err != nil {
		return domain.NewError(domain.KindValidation, err.Error())
	}

	return s.withTx(ctx, "insert message", func(tx *sql.Tx) error {
		var seq, latest int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) + 1, COALESCE(MAX(created_at), 0) FROM channel_messages WHERE channel_id = ?`,
			msg.ChannelID).Scan(&seq, &latest); err != nil {
			return fmt.Errorf("next message position: %w", err)
		}
		createdAt := toMillis(msg.CreatedAt)
		if latest > createdAt {
			createdAt = latest
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO channel_messages (message_id, channel_id, sender_id, nickname, body, mentions, created_at, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.ChannelID, msg.SenderID, msg.Nickname, msg.Body, mentionsJSON, createdAt, seq)
		if err != nil {
			if shared.IsForeignKeyError(err) {
				return domain.Errorf(domain.KindChannelNotFound, "Channel '%s' no longer exists", msg.ChannelID)
			}
			return fmt.Errorf("insert message: %w", err)
		}
		msg.Seq = seq
		msg.CreatedAt = fromMillis(createdAt)
		msg.Mentions = mentions
		return nil
	})
}

// MessageCursor returns the position of a message.
func (s *SQLiteStore) MessageCursor(ctx context.Context, messageID string) (Cursor, bool, error) {
	var c Cursor
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, seq FROM channel_messages WHERE message_id = ?`, messageID,
	).Scan(&c.CreatedAtMs, &c.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return Cursor{}, false, nil
	}
	if err != nil {
		return Cursor{}, false, domain.DatabaseError("lookup message cursor", err)
	}
	return c, true, nil
}

// ListMessages returns messages strictly after q.After in (created_at, seq) order.
func (s *SQLiteStore) ListMessages(ctx context.Context, q MessageQuery) ([]domain.Message, error) {
	conditions := []string{
		"channel_id = ?",
		"(created_at > ? OR (created_at = ? AND seq > ?))",
	}
	args := []any{q.ChannelID, q.After.CreatedAtMs, q.After.CreatedAtMs, q.After.Seq}

	if q.ExcludeSender != "" {
		conditions = append(conditions, "sender_id != ?")
		args = append(args, q.ExcludeSender)
	}
	if q.MentionOf != "" {
		conditions = append(conditions,
			"EXISTS (SELECT 1 FROM json_each(channel_messages.mentions) WHERE json_each.value = ?)")
		args = append(args, q.MentionOf)
	}

	query := `SELECT message_id, channel_id, sender_id, nickname, body, mentions, created_at, seq
		FROM channel_messages
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY created_at ASC, seq ASC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.DatabaseError("query messages", err)
	}
	defer closeRows(rows, "messages")

	messages := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		var mentions string
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.SenderID, &m.Nickname, &m.Body, &mentions, &createdAt, &m.Seq); err != nil {
			return nil, domain.DatabaseError("scan message row", err)
		}
		if err := json.Unmarshal([]byte(mentions), &m.Mentions); err != nil {
			return nil, domain.DatabaseError("decode mentions", err)
		}
		if m.Mentions == nil {
			m.Mentions = []string{}
		}
		m.CreatedAt = fromMillis(createdAt)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.DatabaseError("iterate messages", err)
	}
	return messages, nil
}

// DeleteMessagesBefore removes messages created before cutoff in a single statement.
func (s *SQLiteStore) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := s.withTx(ctx, "delete expired messages", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM channel_messages WHERE created_at < ?`, toMillis(cutoff))
		if err != nil {
			return fmt.Errorf("delete expired messages: %w", err)
		}
		removed, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
