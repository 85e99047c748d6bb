// Package engine wires the session registry, channel directory and message
// log into the coordination engine. Every operation is a plain function from
// validated arguments to a result or a typed *domain.Error; nothing here
// knows about transports or output formatting.
package engine

import (
	"context"
	"time"

	"github.com/ashureev/yar/internal/channel"
	"github.com/ashureev/yar/internal/config"
	"github.com/ashureev/yar/internal/domain"
	"github.com/ashureev/yar/internal/message"
	"github.com/ashureev/yar/internal/ratelimit"
	"github.com/ashureev/yar/internal/session"
	"github.com/ashureev/yar/internal/store"
)

// Engine is the coordination engine shared by every transport.
type Engine struct {
	repo     store.Repository
	cfg      config.EngineConfig
	sessions *session.Registry
	channels *channel.Directory
	messages *message.Log
	limiter  *ratelimit.Limiter
}

type options struct {
	now     func() time.Time
	limiter *ratelimit.Limiter
}

// Option configures an Engine.
type Option func(*options)

// WithClock replaces time.Now across all components.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLimiter injects the post rate limiter.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// New creates an engine over repo.
func New(repo store.Repository, cfg config.EngineConfig, opts ...Option) *Engine {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.limiter == nil {
		o.limiter = ratelimit.New(cfg.RateLimitPerSecond, time.Second, ratelimit.WithClock(o.now))
	}

	channels := channel.NewDirectory(repo,
		channel.WithClock(o.now),
		channel.WithStaleAfter(cfg.SessionTTL))

	return &Engine{
		repo:     repo,
		cfg:      cfg,
		sessions: session.NewRegistry(repo, cfg.SessionTTL, session.WithClock(o.now)),
		channels: channels,
		messages: message.NewLog(repo, channels, o.limiter, message.Config{
			MaxMessageSize: cfg.MaxMessageSize,
			BatchSize:      cfg.ListenMaxMessages,
			Retention:      cfg.MessageRetention,
			CursorFallback: cfg.CursorFallbackWindow,
			PollInterval:   cfg.ListenPollInterval,
		}, message.WithClock(o.now)),
		limiter: o.limiter,
	}
}

// Config returns the engine tunables.
func (e *Engine) Config() config.EngineConfig {
	return e.cfg
}

// Limiter returns the post rate limiter.
func (e *Engine) Limiter() *ratelimit.Limiter {
	return e.limiter
}

// Ping checks that the store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	return e.repo.Ping(ctx)
}

// SchemaVersion returns the applied store migration version.
func (e *Engine) SchemaVersion(ctx context.Context) (int, error) {
	return e.repo.SchemaVersion(ctx)
}

// RegisterSession creates a new session.
func (e *Engine) RegisterSession(ctx context.Context, p session.RegisterParams) (*domain.Session, error) {
	return e.sessions.Register(ctx, p)
}

// DeregisterSession removes a session and its memberships.
func (e *Engine) DeregisterSession(ctx context.Context, sessionID string) error {
	return e.sessions.Deregister(ctx, sessionID)
}

// HeartbeatSession refreshes a session.
func (e *Engine) HeartbeatSession(ctx context.Context, sessionID string, p session.HeartbeatParams) (*domain.Session, error) {
	return e.sessions.Heartbeat(ctx, sessionID, p)
}

// GetSession returns a session by ID.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return e.sessions.Get(ctx, sessionID)
}

// CleanupExpiredSessions sweeps sessions past their TTL.
func (e *Engine) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	return e.sessions.SweepExpired(ctx)
}

// JoinOrCreate joins a channel, creating it on first use.
func (e *Engine) JoinOrCreate(ctx context.Context, channelName, sessionID, nickname string) (*domain.Channel, []domain.Member, error) {
	return e.channels.JoinOrCreate(ctx, channelName, sessionID, nickname)
}

// LeaveChannel leaves a channel.
func (e *Engine) LeaveChannel(ctx context.Context, channelName, sessionID string) error {
	return e.channels.Leave(ctx, channelName, sessionID)
}

// GetMembers lists a channel's members by join time.
func (e *Engine) GetMembers(ctx context.Context, channelID string) ([]domain.Member, error) {
	return e.channels.Members(ctx, channelID)
}

// ListChannels lists every channel, newest first.
func (e *Engine) ListChannels(ctx context.Context) ([]domain.ChannelListing, error) {
	return e.channels.ListAll(ctx)
}

// GetChannel returns a channel by name.
func (e *Engine) GetChannel(ctx context.Context, channelName string) (*domain.Channel, error) {
	return e.channels.Get(ctx, channelName)
}

// ResolveChannelID returns the ID of the named channel.
func (e *Engine) ResolveChannelID(ctx context.Context, channelName string) (string, error) {
	return e.channels.ResolveID(ctx, channelName)
}

// GetNickname returns the session's nickname in a channel, if it is a member.
func (e *Engine) GetNickname(ctx context.Context, channelID, sessionID string) (string, bool, error) {
	return e.channels.NicknameOf(ctx, channelID, sessionID)
}

// PostMessage posts to a channel.
func (e *Engine) PostMessage(ctx context.Context, channelName, senderID, text string) (*domain.Message, error) {
	return e.messages.Post(ctx, channelName, senderID, text)
}

// FetchMessages reads the next batch of messages after a cursor.
func (e *Engine) FetchMessages(ctx context.Context, p message.FetchParams) (*domain.FetchResult, error) {
	return e.messages.Fetch(ctx, p)
}

// CleanupExpiredChannelMessages prunes messages past the retention window.
func (e *Engine) CleanupExpiredChannelMessages(ctx context.Context) (int64, error) {
	return e.messages.PruneExpired(ctx)
}

// Listen long-polls a channel. A zero timeout uses the default; the timeout
// must otherwise lie within the configured bounds.
func (e *Engine) Listen(ctx context.Context, p message.ListenParams) (*domain.ListenResult, error) {
	if p.Timeout == 0 {
		p.Timeout = e.cfg.ListenDefaultTimeout
	}
	if p.Timeout < e.cfg.ListenMinTimeout || p.Timeout > e.cfg.ListenMaxTimeout {
		return nil, domain.Errorf(domain.KindValidation,
			"timeout must be between %s and %s", e.cfg.ListenMinTimeout, e.cfg.ListenMaxTimeout)
	}
	return e.messages.Listen(ctx, p)
}
