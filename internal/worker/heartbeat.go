package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ashureev/yar/internal/domain"
	"github.com/ashureev/yar/internal/identity"
	"github.com/ashureev/yar/internal/session"
)

// Heartbeater is the engine surface the heartbeat worker drives.
type Heartbeater interface {
	RegisterSession(ctx context.Context, p session.RegisterParams) (*domain.Session, error)
	HeartbeatSession(ctx context.Context, sessionID string, p session.HeartbeatParams) (*domain.Session, error)
}

// Heartbeat keeps the process's own session alive. When the session has
// expired it registers a fresh one and publishes the new ID through self.
type Heartbeat struct {
	engine   Heartbeater
	self     *identity.Self
	params   session.RegisterParams
	interval time.Duration
	running  atomic.Bool
}

// NewHeartbeat creates a heartbeat worker. params is reused on re-registration.
func NewHeartbeat(engine Heartbeater, self *identity.Self, params session.RegisterParams, interval time.Duration) *Heartbeat {
	return &Heartbeat{engine: engine, self: self, params: params, interval: interval}
}

// Start runs the worker in a goroutine until ctx is done.
func (h *Heartbeat) Start(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Heartbeat worker started", "interval", h.interval, "session_id", h.self.SessionID())

		for {
			select {
			case <-ticker.C:
				if err := h.Beat(ctx); err != nil {
					slog.Warn("Heartbeat failed", "error", err, "session_id", h.self.SessionID())
				}
			case <-ctx.Done():
				slog.Info("Heartbeat worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Beat refreshes the session once, registering a new one if it is unknown.
func (h *Heartbeat) Beat(ctx context.Context) error {
	if !h.running.CompareAndSwap(false, true) {
		return nil
	}
	defer h.running.Store(false)

	id := h.self.SessionID()
	if id != "" {
		_, err := h.engine.HeartbeatSession(ctx, id, session.HeartbeatParams{})
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return err
		}
		slog.Info("Session expired, re-registering", "old_session_id", id)
	}

	sess, err := h.engine.RegisterSession(ctx, h.params)
	if err != nil {
		return err
	}
	h.self.Set(sess.ID)
	slog.Info("Session registered", "session_id", sess.ID, "session_name", sess.Name)
	return nil
}
