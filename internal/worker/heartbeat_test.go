package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/ashureev/yar/internal/domain"
	"github.com/ashureev/yar/internal/identity"
	"github.com/ashureev/yar/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHeartbeater struct {
	known        map[string]bool
	heartbeatErr error
	registered   int
	beats        int
}

func (f *fakeHeartbeater) RegisterSession(ctx context.Context, p session.RegisterParams) (*domain.Session, error) {
	f.registered++
	id := p.Name + "-new"
	f.known[id] = true
	return &domain.Session{ID: id, Name: p.Name}, nil
}

func (f *fakeHeartbeater) HeartbeatSession(ctx context.Context, sessionID string, p session.HeartbeatParams) (*domain.Session, error) {
	f.beats++
	if f.heartbeatErr != nil {
		return nil, f.heartbeatErr
	}
	if !f.known[sessionID] {
		return nil, domain.Errorf(domain.KindSessionNotFound, "Session '%s' not found", sessionID)
	}
	return &domain.Session{ID: sessionID}, nil
}

func TestHeartbeat_RefreshesKnownSession(t *testing.T) {
	eng := &fakeHeartbeater{known: map[string]bool{"s1": true}}
	self := identity.NewSelf("s1")

	require.NoError(t, NewHeartbeat(eng, self, session.RegisterParams{Name: "me"}, 0).Beat(context.Background()))
	assert.Equal(t, 1, eng.beats)
	assert.Equal(t, 0, eng.registered)
	assert.Equal(t, "s1", self.SessionID())
}

func TestHeartbeat_ReRegistersExpiredSession(t *testing.T) {
	eng := &fakeHeartbeater{known: map[string]bool{}}
	self := identity.NewSelf("gone")

	require.NoError(t, NewHeartbeat(eng, self, session.RegisterParams{Name: "me"}, 0).Beat(context.Background()))
	assert.Equal(t, 1, eng.registered)
	assert.Equal(t, "me-new", self.SessionID())
}

func TestHeartbeat_RegistersWhenUnset(t *testing.T) {
	eng := &fakeHeartbeater{known: map[string]bool{}}
	self := identity.NewSelf("")

	require.NoError(t, NewHeartbeat(eng, self, session.RegisterParams{Name: "me"}, 0).Beat(context.Background()))
	assert.Equal(t, 0, eng.beats)
	assert.Equal(t, "me-new", self.SessionID())
}

func TestHeartbeat_OtherErrorsDoNotReRegister(t *testing.T) {
	eng := &fakeHeartbeater{known: map[string]bool{"s1": true}, heartbeatErr: errors.New("database is locked")}
	self := identity.NewSelf("s1")

	err := NewHeartbeat(eng, self, session.RegisterParams{Name: "me"}, 0).Beat(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, eng.registered)
	assert.Equal(t, "s1", self.SessionID())
}
