package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/ashureev/yar/internal/domain"
	"github.com/ashureev/yar/internal/session"
	"github.com/go-chi/chi/v5"
)

// MonitorHandler lets people using the web monitor post under a nickname.
// Each nickname gets its own session, registered on first send.
type MonitorHandler struct {
	*Handler

	mu       sync.Mutex
	sessions map[string]string // nickname -> session ID
}

// NewMonitorHandler creates a monitor handler.
func NewMonitorHandler(base *Handler) *MonitorHandler {
	return &MonitorHandler{Handler: base, sessions: make(map[string]string)}
}

// RegisterRoutes registers monitor routes.
func (h *MonitorHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/monitor/send", h.Send)
}

type monitorSendRequest struct {
	Channel  string `json:"channel"`
	Nickname string `json:"nickname"`
	Text     string `json:"text"`
}

// Send joins the nickname's session to the channel if needed and posts text.
func (h *MonitorHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req monitorSendRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	req.Nickname = strings.TrimSpace(req.Nickname)
	if req.Channel == "" || req.Nickname == "" || req.Text == "" {
		WriteError(w, r, domain.NewError(domain.KindValidation, "channel, nickname and text are required"))
		return
	}

	sessionID, err := h.webSession(r.Context(), req.Nickname)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if _, _, err := h.engine.JoinOrCreate(r.Context(), req.Channel, sessionID, req.Nickname); err != nil {
		WriteError(w, r, err)
		return
	}
	msg, err := h.engine.PostMessage(r.Context(), req.Channel, sessionID, req.Text)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, msg)
}

// webSession returns the live session for nickname, registering a new one
// when there is none or the old one was swept.
func (h *MonitorHandler) webSession(ctx context.Context, nickname string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if id, ok := h.sessions[nickname]; ok {
		_, err := h.engine.HeartbeatSession(ctx, id, session.HeartbeatParams{})
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return "", err
		}
		delete(h.sessions, nickname)
	}

	sess, err := h.engine.RegisterSession(ctx, session.RegisterParams{
		Name:     "web:" + nickname,
		Metadata: map[string]any{"source": "monitor"},
	})
	if err != nil {
		return "", err
	}
	h.sessions[nickname] = sess.ID
	slog.Info("Monitor user registered", "nickname", nickname, "session_id", sess.ID)
	return sess.ID, nil
}
