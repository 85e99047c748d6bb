// Package identity tracks which session a caller acts as.
//
// The process keeps its own auto-registered session in a Self value that is
// passed explicitly to whoever needs it; per-request overrides travel in the
// request context.
package identity

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"sync"
)

// SessionHeaderName lets an HTTP caller act as a specific session.
const SessionHeaderName = "X-Yar-Session-ID"

type contextKey int

const sessionIDKey contextKey = iota

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// Self holds the session ID this process is registered as.
// It changes when the heartbeat worker has to re-register.
type Self struct {
	mu sync.RWMutex
	id string
}

// NewSelf creates a holder for the given session ID.
func NewSelf(sessionID string) *Self {
	return &Self{id: sessionID}
}

// SessionID returns the current session ID, or "" if unregistered.
func (s *Self) SessionID() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Set replaces the session ID.
func (s *Self) Set(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = sessionID
}

// WithSessionID returns a context carrying the caller's session ID.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionIDFromContext extracts the caller's session ID from the context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

func sanitizeSessionID(id string) string {
	id = strings.TrimSpace(id)
	if !sessionIDPattern.MatchString(id) {
		return ""
	}
	return id
}

func sessionIDFromRequest(r *http.Request) string {
	sid := r.Header.Get(SessionHeaderName)
	if sid == "" {
		sid = r.URL.Query().Get("session_id")
	}
	return sanitizeSessionID(sid)
}

// Middleware injects the caller's session ID: the request's header or query
// parameter when valid, otherwise the process's own session.
func Middleware(self *Self) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := sessionIDFromRequest(r)
			if sessionID == "" {
				sessionID = self.SessionID()
			}
			next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), sessionID)))
		})
	}
}
