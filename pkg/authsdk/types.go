package authsdk

import "time"

// ErrorResponse is the wire form of APIError.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ValidationErrorResponse is returned when request fields fail validation.
type ValidationErrorResponse struct {
	// Code is always "validation_error"
	Code string `json:"code"`

	Message string `json:"message"`

	// Details maps field name to the reason it was rejected.
	Details map[string]string `json:"details,omitempty"`
}

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness check results for critical dependencies (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks represents the status of critical service dependencies.
type HealthChecks struct {
	// Database indicates the database connection status
	Database string `json:"database"`

	// Sessions names the backend holding sessions ("sql" or "redis")
	Sessions string `json:"sessions"`
}

// UserInfoResponse is returned by GET /api/user-info.
type UserInfoResponse struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	FullName   string     `json:"full_name"`
	IsAdmin    bool       `json:"is_admin"`
	LastLogin  *time.Time `json:"last_login"`
	LoginCount int        `json:"login_count"`
}

// SessionInfoResponse is returned by GET /api/session-info. Anonymous
// callers get IsAuthenticated=false and empty identifiers.
type SessionInfoResponse struct {
	IsAuthenticated bool       `json:"is_authenticated"`
	UserID          *string    `json:"user_id"`
	SessionID       *string    `json:"session_id"`
	Remember        bool       `json:"remember"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

// BootstrapRequest creates the first administrator.
type BootstrapRequest struct {
	AdminUsername  string `json:"admin_username"`
	AdminEmail     string `json:"admin_email"`
	AdminPassword  string `json:"admin_password"`
	AdminFirstName string `json:"admin_first_name,omitempty"`
	AdminLastName  string `json:"admin_last_name,omitempty"`
}

type BootstrapResponse struct {
	AdminUserID string `json:"admin_user_id"`
}
