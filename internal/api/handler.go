// Package api provides HTTP handlers for the yar coordination engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ashureev/yar/internal/domain"
	"github.com/ashureev/yar/internal/engine"
	"github.com/ashureev/yar/internal/identity"
)

const maxRequestBody = 1 << 20

// Handler provides common handler utilities.
type Handler struct {
	engine *engine.Engine
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(eng *engine.Engine) *Handler {
	return &Handler{engine: eng}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": {"code": "ENCODE_FAILED", "message": "failed to encode response"}}`, http.StatusInternalServerError)
	}
}

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail names the failure kind and describes it.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

// WriteError maps an engine failure to its HTTP status and writes it.
// A request abandoned by its client gets nothing written.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	if clientGone(r.Context(), err) {
		slog.Debug("Request abandoned by client", "path", r.URL.Path)
		return
	}
	kind := domain.KindOf(err)
	status := StatusFor(kind)

	message := err.Error()
	var de *domain.Error
	if errors.As(err, &de) && de.Message != "" {
		message = de.Message
	}
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err, "kind", kind)
	}
	Error(w, status, string(kind), message)
}

// StatusFor returns the HTTP status for an error kind.
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindSessionNotFound, domain.KindChannelNotFound:
		return http.StatusNotFound
	case domain.KindNicknameTaken, domain.KindChannelExists, domain.KindAlreadySubscribed:
		return http.StatusConflict
	case domain.KindNotInChannel, domain.KindNotSubscribed:
		return http.StatusForbidden
	case domain.KindRateLimitExceeded:
		return http.StatusTooManyRequests
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindSessionExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return domain.Errorf(domain.KindValidation, "invalid request body: %v", err)
	}
	return nil
}

// callerSession returns the session the request acts as, or writes a 401.
func callerSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID := identity.SessionIDFromContext(r.Context())
	if sessionID == "" {
		Error(w, http.StatusUnauthorized, "UNAUTHORIZED",
			"no session: send "+identity.SessionHeaderName+" or register one first")
		return "", false
	}
	return sessionID, true
}

// queryBool parses an optional boolean query parameter.
func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, domain.Errorf(domain.KindValidation, "%s must be a boolean", name)
	}
	return v, nil
}

// cursorOrNull renders an empty cursor as JSON null.
func cursorOrNull(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

// clientGone reports whether err is the request context ending.
func clientGone(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
