// Package channel implements the channel directory: join-or-create, leave,
// membership listings and nickname lookups.
package channel

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ashureev/yar/internal/domain"
	"github.com/ashureev/yar/internal/mention"
	"github.com/ashureev/yar/internal/store"
)

const (
	// MaxNameLength bounds channel names, in characters.
	MaxNameLength = 100
	// MaxNicknameLength bounds nicknames, in characters.
	MaxNicknameLength = 50
)

// Directory manages channels and memberships.
type Directory struct {
	repo store.ChannelRepository
	// staleAfter lets a join reclaim a nickname held by a session that has
	// missed heartbeats this long. Zero disables reclamation.
	staleAfter time.Duration
	now        func() time.Time
}

// Option configures a Directory.
type Option func(*Directory)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Directory) { d.now = now }
}

// WithStaleAfter enables nickname reclamation from sessions silent for longer than ttl.
func WithStaleAfter(ttl time.Duration) Option {
	return func(d *Directory) { d.staleAfter = ttl }
}

// NewDirectory creates a channel directory.
func NewDirectory(repo store.ChannelRepository, opts ...Option) *Directory {
	d := &Directory{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ValidateName checks a channel name.
func ValidateName(name string) error {
	n := utf8.RuneCountInString(name)
	if strings.TrimSpace(name) == "" || n > MaxNameLength {
		return domain.Errorf(domain.KindValidation, "channel name must be 1-%d characters", MaxNameLength)
	}
	return nil
}

// ValidateNickname checks that a nickname can be mentioned with @.
func ValidateNickname(nickname string) error {
	if utf8.RuneCountInString(nickname) > MaxNicknameLength {
		return domain.Errorf(domain.KindValidation, "nickname must be at most %d characters", MaxNicknameLength)
	}
	if !mention.ValidNickname(nickname) {
		return domain.NewError(domain.KindValidation,
			"nickname may only contain letters, digits, underscores, hyphens and Hangul")
	}
	return nil
}

// JoinOrCreate joins the channel under nickname, creating the channel on first use.
// Re-joining under a new nickname renames the membership.
func (d *Directory) JoinOrCreate(ctx context.Context, channelName, sessionID, nickname string) (*domain.Channel, []domain.Member, error) {
	if err := ValidateName(channelName); err != nil {
		return nil, nil, err
	}
	if err := ValidateNickname(nickname); err != nil {
		return nil, nil, err
	}

	now := d.now()
	p := store.JoinParams{
		ChannelName: channelName,
		SessionID:   sessionID,
		Nickname:    nickname,
		Now:         now,
	}
	if d.staleAfter > 0 {
		p.StaleBefore = now.Add(-d.staleAfter)
	}
	return d.repo.JoinChannel(ctx, p)
}

// Leave removes the membership. The channel is deleted with its last member.
func (d *Directory) Leave(ctx context.Context, channelName, sessionID string) error {
	return d.repo.LeaveChannel(ctx, channelName, sessionID)
}

// Members lists a channel's members by join time.
func (d *Directory) Members(ctx context.Context, channelID string) ([]domain.Member, error) {
	return d.repo.ListMembers(ctx, channelID)
}

// ListAll lists every channel, newest first.
func (d *Directory) ListAll(ctx context.Context) ([]domain.ChannelListing, error) {
	return d.repo.ListChannels(ctx)
}

// Get returns a channel by name.
func (d *Directory) Get(ctx context.Context, channelName string) (*domain.Channel, error) {
	return d.repo.GetChannel(ctx, channelName)
}

// ResolveID returns the ID of the named channel.
func (d *Directory) ResolveID(ctx context.Context, channelName string) (string, error) {
	ch, err := d.repo.GetChannel(ctx, channelName)
	if err != nil {
		return "", err
	}
	return ch.ID, nil
}

// NicknameOf returns the session's nickname in the channel. The boolean is
// false when the session is not a member; that is not an error.
func (d *Directory) NicknameOf(ctx context.Context, channelID, sessionID string) (string, bool, error) {
	return d.repo.Nickname(ctx, channelID, sessionID)
}

// MemberNicknames returns the nicknames currently present in the channel.
func (d *Directory) MemberNicknames(ctx context.Context, channelID string) ([]string, error) {
	return d.repo.MemberNicknames(ctx, channelID)
}
