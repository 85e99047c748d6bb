package domain

import "time"

// MemberStatusOffline is reported for a membership whose session record is gone.
const MemberStatusOffline = "offline"

// Channel is a named topic that sessions join under a nickname.
type Channel struct {
	ID          string    `json:"channel_id"`
	Name        string    `json:"channel_name"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Member is a session's presence in a channel.
// Status is the session's current status, or MemberStatusOffline.
type Member struct {
	Nickname  string `json:"nickname"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// Online returns true if the member's session is still registered.
func (m Member) Online() bool {
	return m.Status != MemberStatusOffline
}

// ChannelListing pairs a channel name with its current members.
type ChannelListing struct {
	Channel string   `json:"channel"`
	Members []Member `json:"members"`
}
