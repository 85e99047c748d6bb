package domain

import "time"

// Message is an immutable post to a channel. Nickname is a snapshot taken at post time.
type Message struct {
	ID        string    `json:"message_id"`
	ChannelID string    `json:"channel_id"`
	SenderID  string    `json:"sender_id"`
	Nickname  string    `json:"nickname"`
	Body      string    `json:"body"`
	Mentions  []string  `json:"mentions"`
	CreatedAt time.Time `json:"created_at"`
	// Seq is the per-channel insertion order, used to break created_at ties.
	Seq int64 `json:"seq"`
}

// FetchResult is one page of messages plus the cursor to resubmit.
// LastID is empty when there is no cursor yet.
type FetchResult struct {
	Messages []Message `json:"messages"`
	LastID   string    `json:"last_id"`
}

// ListenResult is the outcome of a long-poll.
type ListenResult struct {
	Messages []Message `json:"messages"`
	LastID   string    `json:"last_id"`
	TimedOut bool      `json:"timed_out"`
}
