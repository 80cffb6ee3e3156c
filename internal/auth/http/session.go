package http

import (
	"context"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

type ctxKey struct{}

func withUser(ctx context.Context, u domain.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// userFrom returns the signed-in user resolved by SessionMiddleware.
func userFrom(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(domain.User)
	return u, ok
}

// SessionMiddleware resolves the session cookie, if any, and stores the
// principal and user in the request context. It never rejects a request;
// guards decide what anonymous callers may see. A cookie that no longer
// maps to a live session is cleared.
func SessionMiddleware(sessions *service.SessionService, cookies *cookieJar) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := cookies.sessionToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			user, sess, err := sessions.ResolveSession(ctx, token)
			if err != nil {
				cookies.clearSession(w)
				next.ServeHTTP(w, r)
				return
			}

			ctx = httpx.WithPrincipal(ctx, httpx.Principal{
				UserID:    user.ID,
				Username:  user.Username,
				IsAdmin:   user.IsAdmin,
				SessionID: sess.ID,
				Remember:  sess.Remember,
				ExpiresAt: sess.ExpiresAt,
			})
			ctx = withUser(ctx, user)
			ctx = slogx.With(ctx, "user_id", user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// loginRedirect sends anonymous page requests to the login form and answers
// JSON callers with 401.
func (h web) loginRedirect(w http.ResponseWriter, r *http.Request) {
	if httpx.WantsJSON(r) {
		authsdk.ErrNotAuthenticated.WriteError(w)
		return
	}
	h.cookies.addFlash(w, r, flashInfo, "Please log in to access this page.")
	h.redirect(w, r, "/login?next="+url.QueryEscape(r.URL.RequestURI()))
}

// permissionDenied answers a signed-in caller that lacks the admin role.
func (h web) permissionDenied(w http.ResponseWriter, r *http.Request) {
	if httpx.WantsJSON(r) {
		authsdk.ErrPermissionDenied.WriteError(w)
		return
	}
	h.forbidden(w, r)
}

// RequireUser admits only requests carrying a live session.
func (h web) RequireUser() httpx.Middleware {
	return httpx.RequireAuthenticated(h.loginRedirect)
}

// RequireAdmin admits only administrators. Anonymous callers are treated as
// by RequireUser, signed-in non-admins get 403.
func (h web) RequireAdmin() httpx.Middleware {
	return httpx.RequireAdmin(h.loginRedirect, h.permissionDenied)
}
