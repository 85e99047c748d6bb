package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchAll_IncludesSelfAttributedPosts(t *testing.T) {
	srv := newTestServer(t)
	self := srv.register(t, "self")
	srv.self.Set(self)

	status, _ := srv.do(t, http.MethodPost, "/api/channels/general/join", "", map[string]string{"nickname": "host"})
	require.Equal(t, http.StatusOK, status)
	status, _ = srv.do(t, http.MethodPost, "/api/channels/general/messages", "", map[string]string{"text": "from the host"})
	require.Equal(t, http.StatusCreated, status)

	status, body := srv.do(t, http.MethodGet, "/api/channels/general/messages", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["messages"])

	status, body = srv.do(t, http.MethodGet, "/api/channels/general/messages?all=true", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["messages"], 1)
	assert.Equal(t, "from the host", body["messages"].([]any)[0].(map[string]any)["body"])
	lastID := body["last_id"].(string)

	status, body = srv.do(t, http.MethodGet, "/api/channels/general/messages?all=true&after_id="+lastID, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["messages"])
	assert.Equal(t, lastID, body["last_id"])

	status, body = srv.do(t, http.MethodGet, "/api/channels/general/messages?all=true&mentions_only=true", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(body))
}

func TestFetchAll_NeedsNoSession(t *testing.T) {
	srv := newTestServer(t)
	s1 := srv.register(t, "one")
	status, _ := srv.do(t, http.MethodPost, "/api/channels/general/join", s1, map[string]string{"nickname": "alice"})
	require.Equal(t, http.StatusOK, status)

	status, body := srv.do(t, http.MethodGet, "/api/channels/general/messages", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, _ = srv.do(t, http.MethodGet, "/api/channels/general/messages?all=true", "", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestMonitorSend(t *testing.T) {
	srv := newTestServer(t)
	agent := srv.register(t, "agent")
	status, _ := srv.do(t, http.MethodPost, "/api/channels/ops/join", agent, map[string]string{"nickname": "bot"})
	require.Equal(t, http.StatusOK, status)

	status, first := srv.do(t, http.MethodPost, "/api/monitor/send", "", map[string]string{
		"channel": "ops", "nickname": "dana", "text": "hello @bot",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "dana", first["nickname"])
	assert.Equal(t, []any{"bot"}, first["mentions"])

	status, second := srv.do(t, http.MethodPost, "/api/monitor/send", "", map[string]string{
		"channel": "ops", "nickname": "dana", "text": "still here",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, first["sender_id"], second["sender_id"])

	status, body := srv.do(t, http.MethodGet, "/api/channels/ops/messages?mentions_only=true", agent, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["messages"], 1)

	status, body = srv.do(t, http.MethodGet, "/api/channels/ops/members", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["members"], 2)
	assert.Equal(t, float64(2), body["online"])

	status, body = srv.do(t, http.MethodPost, "/api/monitor/send", "", map[string]string{
		"channel": "ops", "nickname": "bot", "text": "impostor",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "NICKNAME_TAKEN", errorCode(body))

	status, body = srv.do(t, http.MethodPost, "/api/monitor/send", "", map[string]string{
		"channel": "ops", "nickname": " ", "text": "x",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(body))
}

func TestMonitorSend_ReRegistersSweptSession(t *testing.T) {
	srv := newTestServer(t)

	status, first := srv.do(t, http.MethodPost, "/api/monitor/send", "", map[string]string{
		"channel": "lobby", "nickname": "dana", "text": "one",
	})
	require.Equal(t, http.StatusCreated, status)

	status, _ = srv.do(t, http.MethodDelete, "/api/sessions/"+first["sender_id"].(string), "", nil)
	require.Equal(t, http.StatusOK, status)

	status, second := srv.do(t, http.MethodPost, "/api/monitor/send", "", map[string]string{
		"channel": "lobby", "nickname": "dana", "text": "two",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.NotEqual(t, first["sender_id"], second["sender_id"])
}
