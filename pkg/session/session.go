package session

import (
	"time"

	"github.com/google/uuid"
)

// Session represents an authenticated or anonymous browser session.
type Session struct {
	ID        uuid.UUID
	Token     string
	UserID    *uuid.UUID // nil for anonymous sessions
	ExpiresAt time.Time
	CreatedAt time.Time
}

// New creates a session with the given token and TTL.
func New(token string, userID *uuid.UUID, ttl time.Duration) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.New(),
		Token:     token,
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

// IsAuthenticated reports whether the session belongs to a signed-in user.
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.UserID != nil
}

// IsExpired reports whether the session has expired.
func (s *Session) IsExpired() bool {
	return s != nil && time.Now().After(s.ExpiresAt)
}
