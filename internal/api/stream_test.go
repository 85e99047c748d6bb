package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/yar/internal/identity"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialStream(ctx context.Context, srv *testServer, channel, sessionID string) (*websocket.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/channels/" + channel
	return websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{identity.SessionHeaderName: []string{sessionID}},
	})
}

func readFrame(ctx context.Context, t *testing.T, conn *websocket.Conn) streamFrame {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var frame streamFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func writeFrame(ctx context.Context, t *testing.T, conn *websocket.Conn, frame streamFrame) {
	t.Helper()
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestStream(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv := newTestServer(t)
	s1 := srv.register(t, "one")
	s2 := srv.register(t, "two")
	for sid, nick := range map[string]string{s1: "alice", s2: "bob"} {
		status, _ := srv.do(t, http.MethodPost, "/api/channels/general/join", sid, map[string]string{"nickname": nick})
		require.Equal(t, http.StatusOK, status)
	}

	conn, _, err := dialStream(ctx, srv, "general", s2)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	writeFrame(ctx, t, conn, streamFrame{Type: "ping"})
	assert.Equal(t, "pong", readFrame(ctx, t, conn).Type)

	posted, err := srv.engine.PostMessage(ctx, "general", s1, "hello @bob")
	require.NoError(t, err)

	frame := readFrame(ctx, t, conn)
	require.Equal(t, "messages", frame.Type)
	require.Len(t, frame.Messages, 1)
	assert.Equal(t, posted.ID, frame.LastID)
	assert.Equal(t, "alice", frame.Messages[0].Nickname)

	writeFrame(ctx, t, conn, streamFrame{Type: "post", Text: "hi @alice"})
	frame = readFrame(ctx, t, conn)
	require.Equal(t, "posted", frame.Type)
	require.NotNil(t, frame.Message)
	assert.Equal(t, []string{"alice"}, frame.Message.Mentions)

	writeFrame(ctx, t, conn, streamFrame{Type: "dance"})
	frame = readFrame(ctx, t, conn)
	require.Equal(t, "error", frame.Type)
	assert.Equal(t, "VALIDATION_ERROR", frame.Error.Code)
}

func TestStream_RequiresMembership(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := newTestServer(t)
	s1 := srv.register(t, "one")
	outsider := srv.register(t, "two")
	status, _ := srv.do(t, http.MethodPost, "/api/channels/general/join", s1, map[string]string{"nickname": "alice"})
	require.Equal(t, http.StatusOK, status)

	_, resp, err := dialStream(ctx, srv, "general", outsider)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = dialStream(ctx, srv, "nowhere", s1)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
