// Package message implements the channel message log: posting with
// mention extraction and rate limiting, cursor-based fetch, retention
// pruning and long-poll listening.
package message

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/ashureev/yar/internal/domain"
	"github.com/ashureev/yar/internal/mention"
	"github.com/ashureev/yar/internal/ratelimit"
	"github.com/ashureev/yar/internal/store"
	"github.com/google/uuid"
)

// Channels is the subset of the channel directory the log depends on.
type Channels interface {
	ResolveID(ctx context.Context, channelName string) (string, error)
	NicknameOf(ctx context.Context, channelID, sessionID string) (string, bool, error)
	MemberNicknames(ctx context.Context, channelID string) ([]string, error)
}

// Config holds message log tunables.
type Config struct {
	MaxMessageSize int
	BatchSize      int
	Retention      time.Duration
	// CursorFallback is how far back a fetch reaches when its cursor message was pruned.
	CursorFallback time.Duration
	PollInterval   time.Duration
}

// DefaultConfig returns the standard tunables.
func DefaultConfig() Config {
	return Config{
		MaxMessageSize: 65536,
		BatchSize:      50,
		Retention:      24 * time.Hour,
		CursorFallback: 60 * time.Second,
		PollInterval:   time.Second,
	}
}

// Log posts and reads channel messages.
type Log struct {
	repo     store.MessageRepository
	channels Channels
	limiter  *ratelimit.Limiter
	cfg      Config
	now      func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithClock replaces time.Now for timestamps and cursor fallback.
// Long-poll sleeping always uses real time.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// NewLog creates a message log. A nil limiter disables rate limiting.
func NewLog(repo store.MessageRepository, channels Channels, limiter *ratelimit.Limiter, cfg Config, opts ...Option) *Log {
	l := &Log{
		repo:     repo,
		channels: channels,
		limiter:  limiter,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post appends a message from senderID to the named channel.
// Rate limiting is checked before anything else.
func (l *Log) Post(ctx context.Context, channelName, senderID, text string) (*domain.Message, error) {
	if l.limiter != nil {
		if err := l.limiter.Allow(senderID); err != nil {
			return nil, err
		}
	}
	if text == "" {
		return nil, domain.NewError(domain.KindValidation, "message text is required")
	}
	if l.cfg.MaxMessageSize > 0 && len(text) > l.cfg.MaxMessageSize {
		return nil, domain.Errorf(domain.KindValidation,
			"message is %d bytes, max is %d", len(text), l.cfg.MaxMessageSize)
	}

	channelID, err := l.channels.ResolveID(ctx, channelName)
	if err != nil {
		return nil, err
	}
	nickname, ok, err := l.channels.NicknameOf(ctx, channelID, senderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notInChannel(channelName)
	}
	members, err := l.channels.MemberNicknames(ctx, channelID)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		SenderID:  senderID,
		Nickname:  nickname,
		Body:      text,
		Mentions:  mention.Parse(text, members),
		CreatedAt: time.UnixMilli(l.now().UnixMilli()),
	}
	if err := l.repo.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// FetchParams selects messages for a reader.
type FetchParams struct {
	Channel      string
	OwnSessionID string
	// AfterID is the last message the reader has seen. Empty reads from the beginning.
	AfterID      string
	MentionsOnly bool
	// OwnNickname is the nickname mentions are matched against. When empty and
	// MentionsOnly is set, the reader's nickname in the channel is used.
	OwnNickname string
}

// Fetch returns up to one batch of messages after the cursor, never including
// the reader's own posts.
func (l *Log) Fetch(ctx context.Context, p FetchParams) (*domain.FetchResult, error) {
	channelID, err := l.channels.ResolveID(ctx, p.Channel)
	if err != nil {
		return nil, err
	}
	return l.fetch(ctx, channelID, p)
}

func (l *Log) fetch(ctx context.Context, channelID string, p FetchParams) (*domain.FetchResult, error) {
	after, err := l.cursor(ctx, p.AfterID)
	if err != nil {
		return nil, err
	}

	q := store.MessageQuery{
		ChannelID:     channelID,
		After:         after,
		ExcludeSender: p.OwnSessionID,
		Limit:         l.cfg.BatchSize,
	}
	if p.MentionsOnly {
		nickname := p.OwnNickname
		if nickname == "" && p.OwnSessionID != "" {
			if nickname, _, err = l.channels.NicknameOf(ctx, channelID, p.OwnSessionID); err != nil {
				return nil, err
			}
		}
		q.MentionOf = nickname
	}

	messages, err := l.repo.ListMessages(ctx, q)
	if err != nil {
		return nil, err
	}

	result := &domain.FetchResult{Messages: messages, LastID: p.AfterID}
	if len(messages) > 0 {
		result.LastID = messages[len(messages)-1].ID
	}
	return result, nil
}

// cursor resolves a message ID to a position. A pruned cursor falls back to
// a short recent window instead of replaying the full retention period.
func (l *Log) cursor(ctx context.Context, afterID string) (store.Cursor, error) {
	if afterID == "" {
		return store.Cursor{}, nil
	}
	c, ok, err := l.repo.MessageCursor(ctx, afterID)
	if err != nil {
		return store.Cursor{}, err
	}
	if ok {
		return c, nil
	}
	return store.Cursor{
		CreatedAtMs: l.now().Add(-l.cfg.CursorFallback).UnixMilli(),
		Seq:         math.MaxInt64,
	}, nil
}

// PruneExpired deletes messages older than the retention window and compacts
// rate limiter state. It returns the number of messages deleted.
func (l *Log) PruneExpired(ctx context.Context) (int64, error) {
	removed, err := l.repo.DeleteMessagesBefore(ctx, l.now().Add(-l.cfg.Retention))
	if err != nil {
		return 0, err
	}
	if l.limiter != nil {
		if dropped := l.limiter.Prune(); dropped > 0 {
			slog.Debug("Rate limiter compacted", "keys", dropped)
		}
	}
	return removed, nil
}

func notInChannel(channelName string) *domain.Error {
	return domain.Errorf(domain.KindNotInChannel, "Not in channel '%s'. Join it first.", channelName)
}
