package domain

import "time"

// PasswordReset is a single-use credential recovery token.
type PasswordReset struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// Live reports whether the token could still authorise a password change.
func (p PasswordReset) Live(now time.Time) bool {
	return !p.Used && now.Before(p.ExpiresAt)
}
