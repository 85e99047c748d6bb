package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeSweeper struct {
	sessions    int64
	messages    int64
	sessionsErr error
	block       chan struct{}
	calls       atomic.Int32
}

func (f *fakeSweeper) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	return f.sessions, f.sessionsErr
}

func (f *fakeSweeper) CleanupExpiredChannelMessages(ctx context.Context) (int64, error) {
	return f.messages, nil
}

func TestGC_RunOnce(t *testing.T) {
	g := NewGC(&fakeSweeper{sessions: 2, messages: 5}, time.Minute)

	res := g.RunOnce(context.Background())
	assert.Equal(t, GCResult{Sessions: 2, Messages: 5}, res)
}

func TestGC_SessionFailureStillPrunesMessages(t *testing.T) {
	g := NewGC(&fakeSweeper{sessionsErr: errors.New("database is locked"), messages: 3}, time.Minute)

	res := g.RunOnce(context.Background())
	assert.Equal(t, int64(0), res.Sessions)
	assert.Equal(t, int64(3), res.Messages)
}

func TestGC_DoesNotOverlap(t *testing.T) {
	sweeper := &fakeSweeper{block: make(chan struct{})}
	g := NewGC(sweeper, time.Minute)

	done := make(chan GCResult)
	go func() { done <- g.RunOnce(context.Background()) }()

	assert.Eventually(t, func() bool { return sweeper.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, g.RunOnce(context.Background()).Skipped)

	close(sweeper.block)
	assert.False(t, (<-done).Skipped)
	assert.Equal(t, int32(1), sweeper.calls.Load())
}

func TestGC_StartTicks(t *testing.T) {
	sweeper := &fakeSweeper{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	NewGC(sweeper, 10*time.Millisecond).Start(ctx)
	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
}
