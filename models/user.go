package models

import (
	"strconv"
	"time"
)

// User is the authenticated principal, keyed externally by a Telegram account id.
type User struct {
	ID         int64     `json:"id" db:"id"`
	TelegramID int64     `json:"telegram_id" db:"telegram_id"`
	Username   string    `json:"username" db:"username"`
	IsAdmin    bool      `json:"is_admin" db:"is_admin"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new User instance
func NewUser(telegramID int64, username string, isAdmin bool) *User {
	now := time.Now().UTC()
	return &User{
		TelegramID: telegramID,
		Username:   username,
		IsAdmin:    isAdmin,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Subject is the token subject for this user: the external id in decimal.
func (u *User) Subject() string {
	return strconv.FormatInt(u.TelegramID, 10)
}

// ParseSubject turns a token subject back into an external id.
func ParseSubject(sub string) (int64, error) {
	return strconv.ParseInt(sub, 10, 64)
}
