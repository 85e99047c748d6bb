package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/yar/internal/identity"
	"github.com/ashureev/yar/internal/session"
	"github.com/go-chi/chi/v5"
)

// SessionHandler handles session lifecycle endpoints.
type SessionHandler struct {
	*Handler
	self *identity.Self
}

// NewSessionHandler creates a session handler. self is the process's own session.
func NewSessionHandler(base *Handler, self *identity.Self) *SessionHandler {
	return &SessionHandler{Handler: base, self: self}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/me", h.GetMe)
	r.Post("/api/gc", h.GC)
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.Register)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/heartbeat", h.Heartbeat)
		r.Delete("/{id}", h.Deregister)
	})
}

// GetMe returns the session the request acts as.
func (h *SessionHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := callerSession(w, r)
	if !ok {
		return
	}
	sess, err := h.engine.GetSession(r.Context(), sessionID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"session":    sess,
		"self":       sessionID == h.self.SessionID(),
		"expires_in": int64(sess.ExpiresIn(h.engine.Config().SessionTTL, time.Now()).Seconds()),
	})
}

// Register creates a new session.
func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) {
	var p session.RegisterParams
	if err := decodeJSON(r, &p); err != nil {
		WriteError(w, r, err)
		return
	}
	sess, err := h.engine.RegisterSession(r.Context(), p)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	slog.Info("Session registered", "session_id", sess.ID, "session_name", sess.Name)
	JSON(w, http.StatusCreated, sess)
}

// Get returns a session by ID.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.engine.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, sess)
}

// Heartbeat refreshes a session. A 404 tells the caller to re-register.
func (h *SessionHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var p session.HeartbeatParams
	if err := decodeJSON(r, &p); err != nil {
		WriteError(w, r, err)
		return
	}
	sess, err := h.engine.HeartbeatSession(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, sess)
}

// Deregister removes a session and its memberships.
func (h *SessionHandler) Deregister(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := h.engine.DeregisterSession(r.Context(), sessionID); err != nil {
		WriteError(w, r, err)
		return
	}
	slog.Info("Session deregistered", "session_id", sessionID)
	JSON(w, http.StatusOK, map[string]any{"deregistered": true, "session_id": sessionID})
}

// GC runs one sweep of expired sessions and messages.
func (h *SessionHandler) GC(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.engine.CleanupExpiredSessions(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	messages, err := h.engine.CleanupExpiredChannelMessages(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]int64{
		"expired_sessions": sessions,
		"expired_messages": messages,
	})
}
