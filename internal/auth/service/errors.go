package service

import (
	"errors"
	"time"
)

var (
	ErrDuplicateIdentity  = errors.New("username or email already registered")
	ErrInvalidCredentials = errors.New("invalid username/email or password")
	ErrTokenInvalid       = errors.New("invalid or expired password reset token")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrAccountDisabled    = errors.New("account has been deactivated")
	ErrUserNotFound       = errors.New("user not found")
	ErrCannotModifySelf   = errors.New("cannot change your own account status")
	ErrInvalidInput       = errors.New("invalid input")
)

// Clock returns the current time. Services fall back to time.Now when nil.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}
