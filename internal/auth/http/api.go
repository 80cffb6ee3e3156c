package http

import (
	"net/http"

	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
)

// HandleUserInfo returns the signed-in user.
//
//	@Summary		Current user
//	@Description	Returns the account behind the session cookie.
//	@Tags			Session
//	@Security		SessionCookie
//	@Produce		json
//	@Success		200	{object}	authsdk.UserInfoResponse	"Signed-in user"
//	@Failure		401	{object}	authsdk.ErrorResponse		"No live session"
//	@Router			/api/user-info [get]
func HandleUserInfo(w http.ResponseWriter, r *http.Request) {
	u, ok := userFrom(r.Context())
	if !ok {
		authsdk.ErrNotAuthenticated.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.UserInfoResponse{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		FullName:   u.FullName(),
		IsAdmin:    u.IsAdmin,
		LastLogin:  u.LastLogin,
		LoginCount: u.LoginCount,
	})
}

// HandleSessionInfo describes the presented session. Anonymous callers get
// is_authenticated=false rather than an error.
//
//	@Summary		Session state
//	@Description	Reports whether the request carries a live session and, if so, its identifiers and expiry.
//	@Tags			Session
//	@Produce		json
//	@Success		200	{object}	authsdk.SessionInfoResponse	"Session state"
//	@Router			/api/session-info [get]
func HandleSessionInfo(w http.ResponseWriter, r *http.Request) {
	p, ok := httpx.PrincipalFrom(r.Context())
	if !ok {
		httpx.WriteJSON(w, http.StatusOK, authsdk.SessionInfoResponse{})
		return
	}

	expires := p.ExpiresAt
	httpx.WriteJSON(w, http.StatusOK, authsdk.SessionInfoResponse{
		IsAuthenticated: true,
		UserID:          &p.UserID,
		SessionID:       &p.SessionID,
		Remember:        p.Remember,
		ExpiresAt:       &expires,
	})
}

// HandleAPINotFound answers unknown /api/ paths in JSON.
func HandleAPINotFound(w http.ResponseWriter, r *http.Request) {
	authsdk.ErrNotFound.WriteError(w)
}
