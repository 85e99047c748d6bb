package message

import (
	"context"
	"time"

	"github.com/ashureev/yar/internal/domain"
)

// ListenParams describes a long-poll. Timeout bounds are enforced by callers.
type ListenParams struct {
	Channel      string
	SessionID    string
	AfterID      string
	MentionsOnly bool
	Timeout      time.Duration
}

// Listen blocks until messages arrive after the cursor, the timeout elapses,
// or ctx is done. No transaction is held while waiting.
func (l *Log) Listen(ctx context.Context, p ListenParams) (*domain.ListenResult, error) {
	channelID, err := l.channels.ResolveID(ctx, p.Channel)
	if err != nil {
		return nil, err
	}
	nickname, ok, err := l.channels.NicknameOf(ctx, channelID, p.SessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notInChannel(p.Channel)
	}

	fp := FetchParams{
		Channel:      p.Channel,
		OwnSessionID: p.SessionID,
		AfterID:      p.AfterID,
		MentionsOnly: p.MentionsOnly,
		OwnNickname:  nickname,
	}

	deadline := time.Now().Add(p.Timeout)
	interval := l.cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		// Re-resolve each round so a channel deleted mid-poll fails the listen.
		res, err := l.Fetch(ctx, fp)
		if err != nil {
			return nil, err
		}
		if len(res.Messages) > 0 {
			return &domain.ListenResult{Messages: res.Messages, LastID: res.LastID}, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return &domain.ListenResult{Messages: []domain.Message{}, LastID: p.AfterID, TimedOut: true}, nil
		}

		timer.Reset(min(interval, remaining))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
