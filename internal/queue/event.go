// Package queue defines the auth event payload exchanged over the message
// broker, together with its publisher and its audit-log consumer.
package queue

import "time"

// Event types published on the auth events queue.
const (
	EventSignedUp       = "user.signed_up"
	EventLoggedIn       = "user.logged_in"
	EventLoggedOut      = "user.logged_out"
	EventRefreshExpired = "session.refresh_expired"
)

// AuthEvent is published after a security-relevant account operation
// succeeds. It never carries passwords or tokens.
type AuthEvent struct {
	Type       string `json:"type"`
	UserID     int64  `json:"user_id"`
	Username   string `json:"username,omitempty"`
	OccurredAt string `json:"occurred_at"` // RFC 3339, UTC
}

// NewAuthEvent stamps an event of the given type with the current time.
func NewAuthEvent(typ string, userID int64, username string) AuthEvent {
	return AuthEvent{
		Type:       typ,
		UserID:     userID,
		Username:   username,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
}
