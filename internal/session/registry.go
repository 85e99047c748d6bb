// Package session implements the session registry: registration, heartbeat,
// deregistration and TTL-based expiry.
package session

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/yar/internal/domain"
	"github.com/ashureev/yar/internal/store"
	"github.com/google/uuid"
)

// RegisterParams describes a new session.
type RegisterParams struct {
	Name             string         `json:"session_name"`
	Status           string         `json:"status"`
	Capabilities     []string       `json:"capabilities"`
	WorkingDirectory string         `json:"working_directory"`
	Metadata         map[string]any `json:"metadata"`
}

// HeartbeatParams carries optional updates applied with a heartbeat.
// An empty Status keeps the current one; Metadata is shallow-merged.
type HeartbeatParams struct {
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata"`
}

// Registry manages session lifecycle.
type Registry struct {
	repo store.SessionRepository
	ttl  time.Duration
	now  func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a registry whose sessions expire ttl after their last heartbeat.
func NewRegistry(repo store.SessionRepository, ttl time.Duration, opts ...Option) *Registry {
	r := &Registry{repo: repo, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register always creates a new session with a fresh ID.
func (r *Registry) Register(ctx context.Context, p RegisterParams) (*domain.Session, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, domain.NewError(domain.KindValidation, "session_name is required")
	}
	status, err := domain.ParseStatus(p.Status)
	if err != nil {
		return nil, err
	}

	capabilities := p.Capabilities
	if capabilities == nil {
		capabilities = []string{}
	}
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	now := time.UnixMilli(r.now().UnixMilli())
	sess := &domain.Session{
		ID:               uuid.NewString(),
		Name:             name,
		Status:           status,
		Capabilities:     capabilities,
		WorkingDirectory: p.WorkingDirectory,
		RegisteredAt:     now,
		LastHeartbeat:    now,
		Metadata:         metadata,
	}
	if err := r.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	slog.Debug("Session registered", "session_id", sess.ID, "session_name", sess.Name)
	return sess, nil
}

// Heartbeat refreshes a session. ErrSessionNotFound tells the caller to re-register.
func (r *Registry) Heartbeat(ctx context.Context, sessionID string, p HeartbeatParams) (*domain.Session, error) {
	var status *domain.SessionStatus
	if p.Status != "" {
		s, err := domain.ParseStatus(p.Status)
		if err != nil {
			return nil, err
		}
		status = &s
	}
	return r.repo.TouchSession(ctx, sessionID, r.now(), status, p.Metadata)
}

// Get returns a session by ID. A session past its TTL that the sweeper has
// not removed yet reports ErrSessionExpired.
func (r *Registry) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := r.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Expired(r.ttl, r.now()) {
		return nil, domain.Errorf(domain.KindSessionExpired,
			"Session '%s' expired, send a heartbeat or register again", sessionID)
	}
	return sess, nil
}

// Deregister removes a session and all its memberships atomically.
func (r *Registry) Deregister(ctx context.Context, sessionID string) error {
	if err := r.repo.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	slog.Debug("Session deregistered", "session_id", sessionID)
	return nil
}

// SweepExpired removes sessions not heard from within the TTL and returns how many.
// Running it with nothing expired is a no-op.
func (r *Registry) SweepExpired(ctx context.Context) (int64, error) {
	return r.repo.DeleteExpiredSessions(ctx, r.now().Add(-r.ttl))
}
