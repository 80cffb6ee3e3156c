package domain

import "time"

// Session binds an opaque client token to a user until ExpiresAt.
// Only the token's fingerprint is kept.
type Session struct {
	ID         string
	UserID     string
	TokenHash  string
	Remember   bool
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UserAgent  string
	RemoteAddr string
}

// Expired reports whether the session is dead at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
