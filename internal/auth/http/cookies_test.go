package http

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionCookie_RememberMe(t *testing.T) {
	tests := []struct {
		name       string
		remember   string
		wantMaxAge int
	}{
		{"browser session", "", 0},
		{"remembered", "on", int(24 * 60 * 60)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.register(t, "alice", "password123", false)
			b := newBrowser(t, env.router)

			form := url.Values{"username": {"alice"}, "password": {"password123"}}
			if tt.remember != "" {
				form.Set("remember_me", tt.remember)
			}
			resp, _ := b.submit("/login", "/login", form)
			require.Equal(t, http.StatusSeeOther, resp.StatusCode)

			var session *http.Cookie
			for _, c := range resp.Cookies() {
				if c.Name == sessionCookieName {
					session = c
				}
			}
			require.NotNil(t, session, "login sets the session cookie")
			require.True(t, session.HttpOnly)
			require.Equal(t, http.SameSiteLaxMode, session.SameSite)
			require.Equal(t, "/", session.Path)

			require.Equal(t, tt.wantMaxAge, session.MaxAge)
			if tt.wantMaxAge == 0 {
				require.True(t, session.Expires.IsZero(), "browser-session cookies carry no expiry")
				for _, line := range resp.Header.Values("Set-Cookie") {
					if strings.HasPrefix(line, sessionCookieName+"=") {
						require.NotContains(t, line, "Max-Age")
					}
				}
			} else {
				require.False(t, session.Expires.IsZero())
			}
		})
	}
}
