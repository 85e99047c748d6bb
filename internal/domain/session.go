// Package domain contains core domain types for the yar coordination engine.
package domain

import (
	"fmt"
	"time"
)

// SessionStatus is the self-reported state of a session.
type SessionStatus string

const (
	StatusActive SessionStatus = "active"
	StatusIdle   SessionStatus = "idle"
	StatusBusy   SessionStatus = "busy"
)

// ParseStatus validates a status string. An empty string yields StatusActive.
func ParseStatus(s string) (SessionStatus, error) {
	switch SessionStatus(s) {
	case "":
		return StatusActive, nil
	case StatusActive, StatusIdle, StatusBusy:
		return SessionStatus(s), nil
	default:
		return "", NewError(KindValidation, fmt.Sprintf("invalid session status %q (want active, idle or busy)", s))
	}
}

// Session is one registered agent process.
type Session struct {
	ID               string         `json:"session_id"`
	Name             string         `json:"session_name"`
	Status           SessionStatus  `json:"status"`
	Capabilities     []string       `json:"capabilities"`
	WorkingDirectory string         `json:"working_directory"`
	RegisteredAt     time.Time      `json:"registered_at"`
	LastHeartbeat    time.Time      `json:"last_heartbeat"`
	Metadata         map[string]any `json:"metadata"`
}

// Expired reports whether the session has gone longer than ttl without a heartbeat.
func (s *Session) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(s.LastHeartbeat) > ttl
}

// ExpiresIn returns the time left before the session expires.
// Returns 0 if the session has already expired.
func (s *Session) ExpiresIn(ttl time.Duration, now time.Time) time.Duration {
	left := s.LastHeartbeat.Add(ttl).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
