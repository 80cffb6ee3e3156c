package authsdk

import (
	"net/mail"
	"regexp"
	"strings"
)

const (
	bootstrapRequiredReason = "required"
	bootstrapOnlyAlphanum   = "must only contain a-z, A-Z, 0-9 or _"
)

var reUsername = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Validate checks if the bootstrap request fields are valid.
// Returns a map of field names to error messages, or nil if all fields are valid.
func (b BootstrapRequest) Validate() map[string]string {
	errs := make(map[string]string)

	username := strings.TrimSpace(b.AdminUsername)
	switch {
	case username == "":
		errs["admin_username"] = bootstrapRequiredReason
	case len(username) < 3 || len(username) > 20:
		errs["admin_username"] = "must be 3-20 characters"
	case !reUsername.MatchString(username):
		errs["admin_username"] = bootstrapOnlyAlphanum
	}

	email := strings.TrimSpace(b.AdminEmail)
	if email == "" {
		errs["admin_email"] = bootstrapRequiredReason
	} else if _, err := mail.ParseAddress(email); err != nil {
		errs["admin_email"] = "must be a valid email address"
	}

	switch pw := b.AdminPassword; {
	case pw == "":
		errs["admin_password"] = bootstrapRequiredReason
	case len(pw) < 8:
		errs["admin_password"] = "must be at least 8 characters"
	case len(pw) > 256:
		errs["admin_password"] = "too long (max 256)"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
