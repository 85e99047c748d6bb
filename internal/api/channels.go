package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ashureev/yar/internal/domain"
	"github.com/ashureev/yar/internal/message"
	"github.com/go-chi/chi/v5"
)

// ChannelHandler handles channel membership and messaging endpoints.
type ChannelHandler struct {
	*Handler
}

// NewChannelHandler creates a new channel handler.
func NewChannelHandler(base *Handler) *ChannelHandler {
	return &ChannelHandler{Handler: base}
}

// RegisterRoutes registers channel routes.
func (h *ChannelHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/channels", func(r chi.Router) {
		r.Get("/", h.List)
		r.Route("/{channel}", func(r chi.Router) {
			r.Get("/members", h.Members)
			r.Post("/join", h.Join)
			r.Post("/leave", h.Leave)
			r.Post("/messages", h.Post)
			r.Get("/messages", h.Fetch)
			r.Get("/listen", h.Listen)
		})
	})
}

type joinRequest struct {
	Nickname string `json:"nickname"`
}

type postRequest struct {
	Text string `json:"text"`
}

type membersResponse struct {
	Channel     string          `json:"channel"`
	ChannelID   string          `json:"channel_id"`
	Description string          `json:"description"`
	Members     []domain.Member `json:"members"`
	Online      int             `json:"online"`
}

type joinResponse struct {
	Channel *domain.Channel `json:"channel"`
	Members []domain.Member `json:"members"`
}

type messagesResponse struct {
	Messages []domain.Message `json:"messages"`
	LastID   *string          `json:"last_id"`
	TimedOut *bool            `json:"timed_out,omitempty"`
}

// List returns every channel with its members, newest first.
func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	listings, err := h.engine.ListChannels(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"channels": listings})
}

// Members returns a channel's members in join order.
func (h *ChannelHandler) Members(w http.ResponseWriter, r *http.Request) {
	ch, err := h.engine.GetChannel(r.Context(), chi.URLParam(r, "channel"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	members, err := h.engine.GetMembers(r.Context(), ch.ID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	online := 0
	for _, m := range members {
		if m.Online() {
			online++
		}
	}
	JSON(w, http.StatusOK, membersResponse{
		Channel:     ch.Name,
		ChannelID:   ch.ID,
		Description: ch.Description,
		Members:     members,
		Online:      online,
	})
}

// Join joins the caller to a channel, creating it on first use.
func (h *ChannelHandler) Join(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := callerSession(w, r)
	if !ok {
		return
	}
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	name := chi.URLParam(r, "channel")
	ch, members, err := h.engine.JoinOrCreate(r.Context(), name, sessionID, req.Nickname)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	slog.Info("Joined channel", "channel", name, "session_id", sessionID, "nickname", req.Nickname)
	JSON(w, http.StatusOK, joinResponse{Channel: ch, Members: members})
}

// Leave removes the caller from a channel.
func (h *ChannelHandler) Leave(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := callerSession(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "channel")
	if err := h.engine.LeaveChannel(r.Context(), name, sessionID); err != nil {
		WriteError(w, r, err)
		return
	}
	slog.Info("Left channel", "channel", name, "session_id", sessionID)
	JSON(w, http.StatusOK, map[string]any{"left": true, "channel": name})
}

// Post sends a message as the caller.
func (h *ChannelHandler) Post(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := callerSession(w, r)
	if !ok {
		return
	}
	var req postRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteError(w, r, err)
		return
	}

	msg, err := h.engine.PostMessage(r.Context(), chi.URLParam(r, "channel"), sessionID, req.Text)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, msg)
}

// Fetch returns the next page of messages after ?after_id, excluding the caller's own.
// With ?all=true it reads every sender's messages without a caller, for the monitor.
func (h *ChannelHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	all, err := queryBool(r, "all")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	mentionsOnly, err := queryBool(r, "mentions_only")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if all && mentionsOnly {
		WriteError(w, r, domain.NewError(domain.KindValidation, "all and mentions_only cannot be combined"))
		return
	}

	var sessionID string
	if !all {
		var ok bool
		if sessionID, ok = callerSession(w, r); !ok {
			return
		}
	}

	res, err := h.engine.FetchMessages(r.Context(), message.FetchParams{
		Channel:      chi.URLParam(r, "channel"),
		OwnSessionID: sessionID,
		AfterID:      r.URL.Query().Get("after_id"),
		MentionsOnly: mentionsOnly,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, messagesResponse{Messages: res.Messages, LastID: cursorOrNull(res.LastID)})
}

// Listen long-polls for new messages. ?timeout_seconds defaults to the configured value.
func (h *ChannelHandler) Listen(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := callerSession(w, r)
	if !ok {
		return
	}
	mentionsOnly, err := queryBool(r, "mentions_only")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	var timeout time.Duration
	if raw := r.URL.Query().Get("timeout_seconds"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil {
			WriteError(w, r, domain.NewError(domain.KindValidation, "timeout_seconds must be an integer"))
			return
		}
		if secs == 0 {
			WriteError(w, r, domain.NewError(domain.KindValidation, "timeout_seconds must be positive"))
			return
		}
		timeout = time.Duration(secs) * time.Second
	}

	res, err := h.engine.Listen(r.Context(), message.ListenParams{
		Channel:      chi.URLParam(r, "channel"),
		SessionID:    sessionID,
		AfterID:      r.URL.Query().Get("after_id"),
		MentionsOnly: mentionsOnly,
		Timeout:      timeout,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	timedOut := res.TimedOut
	JSON(w, http.StatusOK, messagesResponse{Messages: res.Messages, LastID: cursorOrNull(res.LastID), TimedOut: &timedOut})
}
