//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/yar/internal/domain"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	r := httptest.NewRequest(http.MethodGet, "/api/channels/general/join", nil)

	WriteError(w, r, domain.Errorf(domain.KindNicknameTaken, "Nickname '%s' is already taken", "alice"))

	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
	var got ErrorBody
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got.Error.Code != "NICKNAME_TAKEN" {
		t.Errorf("Expected code NICKNAME_TAKEN, got %q", got.Error.Code)
	}
	if got.Error.Message != "Nickname 'alice' is already taken" {
		t.Errorf("Unexpected message %q", got.Error.Message)
	}
}

func TestWriteError_ClientGoneWritesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := httptest.NewRequest(http.MethodGet, "/api/channels/general/messages", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	WriteError(w, r, domain.DatabaseError("query messages", ctx.Err()))

	if w.Body.Len() != 0 {
		t.Errorf("Expected empty body, got %q", w.Body.String())
	}
	if w.Code == http.StatusInternalServerError {
		t.Errorf("Expected no 500 for an abandoned request")
	}
}

func TestWriteError_CanceledWhileClientConnectedIsReported(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/channels/general/messages", nil)
	w := httptest.NewRecorder()

	WriteError(w, r, domain.DatabaseError("query messages", context.Canceled))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := map[domain.ErrorKind]int{
		domain.KindSessionNotFound:   http.StatusNotFound,
		domain.KindChannelNotFound:   http.StatusNotFound,
		domain.KindNicknameTaken:     http.StatusConflict,
		domain.KindChannelExists:     http.StatusConflict,
		domain.KindAlreadySubscribed: http.StatusConflict,
		domain.KindNotInChannel:      http.StatusForbidden,
		domain.KindNotSubscribed:     http.StatusForbidden,
		domain.KindRateLimitExceeded: http.StatusTooManyRequests,
		domain.KindValidation:        http.StatusBadRequest,
		domain.KindSessionExpired:    http.StatusGone,
		domain.KindDatabase:          http.StatusInternalServerError,
		"SOMETHING_ELSE":             http.StatusInternalServerError,
	}
	for kind, want := range tests {
		if got := StatusFor(kind); got != want {
			t.Errorf("StatusFor(%s) = %d, want %d", kind, got, want)
		}
	}
}
