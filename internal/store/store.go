// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/yar/internal/domain"
)

// SessionRepository persists sessions.
type SessionRepository interface {
	// CreateSession inserts a new session row.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSession retrieves a session by ID. Returns ErrSessionNotFound if absent.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// TouchSession refreshes last_heartbeat to now, optionally replacing the status
	// and shallow-merging metadata. Returns ErrSessionNotFound if absent.
	TouchSession(ctx context.Context, sessionID string, now time.Time, status *domain.SessionStatus, metadata map[string]any) (*domain.Session, error)

	// DeleteSession removes a session and its memberships in one transaction.
	// Returns ErrSessionNotFound if absent.
	DeleteSession(ctx context.Context, sessionID string) error

	// DeleteExpiredSessions removes sessions whose last heartbeat is before cutoff,
	// together with their memberships, and returns how many sessions were removed.
	DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error)
}

// JoinParams describes a join-or-create request.
type JoinParams struct {
	ChannelName string
	SessionID   string
	Nickname    string
	Now         time.Time
	// StaleBefore marks memberships whose session heartbeat is older than this
	// as reclaimable when their nickname is requested by another session.
	// Zero disables reclamation.
	StaleBefore time.Time
}

// ChannelRepository persists channels and memberships.
type ChannelRepository interface {
	// JoinChannel creates the channel if needed and adds or renames the membership.
	// Returns ErrNicknameTaken when another live session holds the nickname.
	JoinChannel(ctx context.Context, p JoinParams) (*domain.Channel, []domain.Member, error)

	// LeaveChannel removes the membership and deletes the channel once it is empty.
	LeaveChannel(ctx context.Context, channelName, sessionID string) error

	// ListMembers returns members ordered by join time.
	ListMembers(ctx context.Context, channelID string) ([]domain.Member, error)

	// ListChannels returns every channel, newest first, with its members.
	ListChannels(ctx context.Context) ([]domain.ChannelListing, error)

	// GetChannel retrieves a channel by name. Returns ErrChannelNotFound if absent.
	GetChannel(ctx context.Context, channelName string) (*domain.Channel, error)

	// Nickname returns the session's nickname in the channel, and false if it is not a member.
	Nickname(ctx context.Context, channelID, sessionID string) (string, bool, error)

	// MemberNicknames returns the nicknames currently present in the channel.
	MemberNicknames(ctx context.Context, channelID string) ([]string, error)
}

// Cursor is a position in a channel's message order.
type Cursor struct {
	CreatedAtMs int64
	Seq         int64
}

// MessageQuery selects a page of messages strictly after a cursor.
type MessageQuery struct {
	ChannelID     string
	After         Cursor
	ExcludeSender string
	// MentionOf restricts results to messages mentioning this nickname when non-empty.
	MentionOf string
	Limit     int
}

// MessageRepository persists channel messages.
type MessageRepository interface {
	// InsertMessage appends a message and assigns its per-channel sequence number.
	// Returns ErrChannelNotFound if the channel disappeared.
	InsertMessage(ctx context.Context, msg *domain.Message) error

	// MessageCursor returns the position of a message, and false if it no longer exists.
	MessageCursor(ctx context.Context, messageID string) (Cursor, bool, error)

	// ListMessages returns messages matching q in ascending order.
	ListMessages(ctx context.Context, q MessageQuery) ([]domain.Message, error)

	// DeleteMessagesBefore removes messages created before cutoff.
	DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Repository defines the full persistence surface of the coordination engine.
type Repository interface {
	SessionRepository
	ChannelRepository
	MessageRepository

	// SchemaVersion returns the applied migration version.
	SchemaVersion(ctx context.Context) (int, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
