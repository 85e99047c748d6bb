package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ashureev/yar/internal/domain"
	"github.com/ashureev/yar/internal/message"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

// StreamHandler serves a channel over a WebSocket: incoming frames post
// messages, and new messages from other members are pushed as they arrive.
type StreamHandler struct {
	*Handler
	allowedOrigin string
	isDev         bool
}

// NewStreamHandler creates a new WebSocket stream handler.
func NewStreamHandler(base *Handler, allowedOrigin string, isDev bool) *StreamHandler {
	return &StreamHandler{Handler: base, allowedOrigin: allowedOrigin, isDev: isDev}
}

// RegisterRoutes registers the stream route.
func (h *StreamHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/channels/{channel}", h.ServeHTTP)
}

// streamFrame is both the inbound and outbound frame shape.
type streamFrame struct {
	Type     string           `json:"type"`
	Text     string           `json:"text,omitempty"`
	Message  *domain.Message  `json:"message,omitempty"`
	Messages []domain.Message `json:"messages,omitempty"`
	LastID   string           `json:"last_id,omitempty"`
	Error    *ErrorDetail     `json:"error,omitempty"`
}

// wsConn serializes writes from the input and output loops.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) writeError(ctx context.Context, err error) error {
	detail := ErrorDetail{Code: string(domain.KindOf(err)), Message: err.Error()}
	var de *domain.Error
	if errors.As(err, &de) && de.Message != "" {
		detail.Message = de.Message
	}
	return c.writeJSON(ctx, streamFrame{Type: "error", Error: &detail})
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := callerSession(w, r)
	if !ok {
		return
	}
	channelName := chi.URLParam(r, "channel")
	mentionsOnly, err := queryBool(r, "mentions_only")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	slog.Info("WebSocket stream request", "session_id", sessionID, "channel", channelName, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	// Fail before upgrading when the caller cannot read the channel.
	channelID, err := h.engine.ResolveChannelID(r.Context(), channelName)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if _, member, err := h.engine.GetNickname(r.Context(), channelID, sessionID); err != nil {
		WriteError(w, r, err)
		return
	} else if !member {
		WriteError(w, r, domain.Errorf(domain.KindNotInChannel, "Not in channel '%s'. Join it first.", channelName))
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	conn := &wsConn{ws: ws}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)

	// Input loop: WebSocket -> channel.
	go func() {
		defer wg.Done()
		defer cancel()
		h.inputLoop(ctx, conn, channelName, sessionID)
	}()

	// Output loop: channel -> WebSocket.
	go func() {
		defer wg.Done()
		defer cancel()
		h.outputLoop(ctx, conn, message.ListenParams{
			Channel:      channelName,
			SessionID:    sessionID,
			AfterID:      r.URL.Query().Get("after_id"),
			MentionsOnly: mentionsOnly,
			Timeout:      h.engine.Config().ListenMaxTimeout,
		})
	}()

	wg.Wait()
	slog.Info("WebSocket stream ended", "session_id", sessionID, "channel", channelName)
}

func (h *StreamHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *StreamHandler) inputLoop(ctx context.Context, conn *wsConn, channelName, sessionID string) {
	for {
		_, data, err := conn.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				slog.Debug("WebSocket closed by client", "session_id", sessionID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "session_id", sessionID)
			}
			return
		}

		var frame streamFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			if err := conn.writeError(ctx, domain.NewError(domain.KindValidation, "frames must be JSON")); err != nil {
				return
			}
			continue
		}

		switch frame.Type {
		case "post":
			msg, err := h.engine.PostMessage(ctx, channelName, sessionID, frame.Text)
			if err != nil {
				err = conn.writeError(ctx, err)
			} else {
				err = conn.writeJSON(ctx, streamFrame{Type: "posted", Message: msg})
			}
			if err != nil {
				return
			}
		case "ping":
			if err := conn.writeJSON(ctx, streamFrame{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
				return
			}
		default:
			if err := conn.writeError(ctx, domain.Errorf(domain.KindValidation, "unknown frame type %q", frame.Type)); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) outputLoop(ctx context.Context, conn *wsConn, p message.ListenParams) {
	for {
		res, err := h.engine.Listen(ctx, p)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("WebSocket stream listen failed", "error", err, "session_id", p.SessionID, "channel", p.Channel)
			if writeErr := conn.writeError(ctx, err); writeErr != nil {
				slog.Debug("Failed to send stream error", "error", writeErr)
			}
			return
		}
		if res.TimedOut {
			continue
		}
		p.AfterID = res.LastID
		if err := conn.writeJSON(ctx, streamFrame{Type: "messages", Messages: res.Messages, LastID: res.LastID}); err != nil {
			slog.Debug("WebSocket write error", "error", err, "session_id", p.SessionID)
			return
		}
	}
}
