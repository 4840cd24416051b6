package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is one logical login on one client. IsActive only ever goes from true to false.
type Session struct {
	ID        string    `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	UserAgent string    `json:"user_agent" db:"user_agent"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	IsActive  bool      `json:"is_active" db:"is_active"`
}

// TableName returns the table name for the Session model
func (Session) TableName() string {
	return "user_sessions"
}

// NewSession creates an active session for the user and client starting at now.
func NewSession(userID int64, userAgent string, now time.Time, ttl time.Duration) *Session {
	now = now.UTC()
	return &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		IsActive:  true,
	}
}

// IsExpired reports whether the session's lifetime has elapsed at now.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
