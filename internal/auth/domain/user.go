package domain

import (
	"strings"
	"time"
)

type User struct {
	ID           string
	Username     string
	Email        string // stored lower-cased
	PasswordHash string // argon2id PHC encoded
	FirstName    string
	LastName     string
	Bio          string
	AvatarURL    string
	IsActive     bool
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLogin    *time.Time // nil until the first successful login
	LoginCount   int
}

// FullName joins first and last name, falling back to the username.
func (u User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// DisplayName is what pages greet the user with.
func (u User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Username
}

// NormalizeEmail canonicalises an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserStats backs the admin dashboard.
type UserStats struct {
	Total  int
	Active int
	Admins int
}

// UserPage is one page of a user listing.
type UserPage struct {
	Users   []User
	Page    int
	PerPage int
	Total   int
}

// Pages returns the number of pages needed for Total rows.
func (p UserPage) Pages() int {
	if p.PerPage <= 0 || p.Total == 0 {
		return 1
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}

func (p UserPage) HasPrev() bool { return p.Page > 1 }
func (p UserPage) HasNext() bool { return p.Page < p.Pages() }
func (p UserPage) PrevPage() int { return p.Page - 1 }
func (p UserPage) NextPage() int { return p.Page + 1 }
