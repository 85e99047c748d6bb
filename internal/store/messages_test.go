package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ashureev/yar/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insert(t *testing.T, s *SQLiteStore, ch *domain.Channel, sender, nick, body string, at time.Time, mentions ...string) *domain.Message {
	t.Helper()
	msg := &domain.Message{
		ID:        fmt.Sprintf("%s-%d", nick, at.UnixNano()),
		ChannelID: ch.ID,
		SenderID:  sender,
		Nickname:  nick,
		Body:      body,
		Mentions:  mentions,
		CreatedAt: at,
	}
	require.NoError(t, s.InsertMessage(context.Background(), msg))
	return msg
}

func TestInsertMessage_AssignsIncreasingSeq(t *testing.T) {
	s := newTestStore(t)
	s1 := createSession(t, s, "s1", time.Now())
	ch, _ := join(t, s, "general", s1.ID, "alice")

	at := time.Now()
	m1 := insert(t, s, ch, s1.ID, "alice", "one", at)
	m2 := &domain.Message{ID: "same-ms", ChannelID: ch.ID, SenderID: s1.ID, Nickname: "alice", Body: "two", CreatedAt: at}
	require.NoError(t, s.InsertMessage(context.Background(), m2))

	assert.Equal(t, int64(1), m1.Seq)
	assert.Equal(t, int64(2), m2.Seq)
	assert.Equal(t, []string{}, m2.Mentions)
}

func TestInsertMessage_LateCommitStaysAfterEarlierCommits(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s1 := createSession(t, s, "s1", time.Now())
	ch, _ := join(t, s, "general", s1.ID, "alice")

	stampedFirst := time.Now().Add(-time.Second)
	committedFirst := insert(t, s, ch, s1.ID, "alice", "fast", stampedFirst.Add(500*time.Millisecond))
	committedLast := insert(t, s, ch, s1.ID, "alice", "slow", stampedFirst)

	assert.Equal(t, committedFirst.CreatedAt.UnixMilli(), committedLast.CreatedAt.UnixMilli())
	assert.Equal(t, int64(2), committedLast.Seq)

	cur, ok, err := s.MessageCursor(ctx, committedFirst.ID)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.ListMessages(ctx, MessageQuery{ChannelID: ch.ID, After: cur, Limit: 50})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "slow", got[0].Body)
}

func TestInsertMessage_ChannelGone(t *testing.T) {
	s := newTestStore(t)
	err := s.InsertMessage(context.Background(), &domain.Message{ID: "x", ChannelID: "nope", SenderID: "s", Nickname: "n", Body: "b", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)
}

func TestListMessages_EqualTimestampsBreakOnSeq(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s1 := createSession(t, s, "s1", time.Now())
	s2 := createSession(t, s, "s2", time.Now())
	ch, _ := join(t, s, "general", s1.ID, "alice")
	join(t, s, "general", s2.ID, "bob")

	at := time.Now()
	first := &domain.Message{ID: "a", ChannelID: ch.ID, SenderID: s1.ID, Nickname: "alice", Body: "1", CreatedAt: at}
	second := &domain.Message{ID: "b", ChannelID: ch.ID, SenderID: s1.ID, Nickname: "alice", Body: "2", CreatedAt: at}
	require.NoError(t, s.InsertMessage(ctx, first))
	require.NoError(t, s.InsertMessage(ctx, second))

	cur, ok, err := s.MessageCursor(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.ListMessages(ctx, MessageQuery{ChannelID: ch.ID, After: cur, ExcludeSender: s2.ID, Limit: 50})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestListMessages_FiltersAndLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s1 := createSession(t, s, "s1", time.Now())
	s2 := createSession(t, s, "s2", time.Now())
	ch, _ := join(t, s, "general", s1.ID, "alice")
	join(t, s, "general", s2.ID, "bob")

	base := time.Now().Add(-time.Minute)
	insert(t, s, ch, s1.ID, "alice", "hello all", base)
	insert(t, s, ch, s1.ID, "alice", "hi @bob", base.Add(time.Millisecond), "bob")
	insert(t, s, ch, s2.ID, "bob", "hi @alice", base.Add(2*time.Millisecond), "alice")

	forBob, err := s.ListMessages(ctx, MessageQuery{ChannelID: ch.ID, ExcludeSender: s2.ID, Limit: 50})
	require.NoError(t, err)
	require.Len(t, forBob, 2)
	assert.Equal(t, "hello all", forBob[0].Body)
	assert.Equal(t, "hi @bob", forBob[1].Body)

	mentions, err := s.ListMessages(ctx, MessageQuery{ChannelID: ch.ID, ExcludeSender: s2.ID, MentionOf: "bob", Limit: 50})
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, []string{"bob"}, mentions[0].Mentions)

	limited, err := s.ListMessages(ctx, MessageQuery{ChannelID: ch.ID, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDeleteMessagesBefore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s1 := createSession(t, s, "s1", time.Now())
	ch, _ := join(t, s, "general", s1.ID, "alice")

	now := time.Now()
	old := insert(t, s, ch, s1.ID, "alice", "old", now.Add(-25*time.Hour))
	insert(t, s, ch, s1.ID, "alice", "new", now)

	removed, err := s.DeleteMessagesBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, ok, err := s.MessageCursor(ctx, old.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err = s.DeleteMessagesBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
}
