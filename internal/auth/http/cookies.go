package http

import (
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

const (
	sessionCookieName = authsdk.SessionCookieName
	flashCookieName   = "gatehouse_flash"
)

// Flash categories, rendered as alert styles.
const (
	flashSuccess = "success"
	flashInfo    = "info"
	flashError   = "error"
)

var flashCategories = []string{flashError, flashInfo, flashSuccess}

type flash struct {
	Category string
	Message  string
}

// cookieJar signs and encrypts the session cookie and keeps one-shot flash
// messages in a second cookie.
type cookieJar struct {
	codec   *securecookie.SecureCookie
	flashes *sessions.CookieStore
	secure  bool
}

func newCookieJar(hashKey, blockKey []byte, secure bool) *cookieJar {
	codec := securecookie.New(hashKey, blockKey)
	// Server-side expiry is authoritative.
	codec.MaxAge(0)

	fl := sessions.NewCookieStore(hashKey, blockKey)
	fl.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}

	return &cookieJar{codec: codec, flashes: fl, secure: secure}
}

// sessionToken returns the raw session token carried by r, if any.
func (c *cookieJar) sessionToken(r *http.Request) (string, bool) {
	ck, err := r.Cookie(sessionCookieName)
	if err != nil || ck.Value == "" {
		return "", false
	}
	var token string
	if err := c.codec.Decode(sessionCookieName, ck.Value, &token); err != nil {
		slogx.FromContext(r.Context()).Debug("discarding undecodable session cookie", slog.Any("error", err))
		return "", false
	}
	return token, token != ""
}

// setSession writes the session cookie. Remembered sessions get a Max-Age,
// the others end with the browser session.
func (c *cookieJar) setSession(w http.ResponseWriter, token string, sess domain.Session) error {
	encoded, err := c.codec.Encode(sessionCookieName, token)
	if err != nil {
		return err
	}
	ck := &http.Cookie{
		Name:     sessionCookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if sess.Remember {
		ck.MaxAge = int(sess.ExpiresAt.Sub(sess.CreatedAt).Seconds())
		ck.Expires = sess.ExpiresAt
	}
	http.SetCookie(w, ck)
	return nil
}

func (c *cookieJar) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// addFlash queues msg for the next rendered page.
func (c *cookieJar) addFlash(w http.ResponseWriter, r *http.Request, category, msg string) {
	s, _ := c.flashes.Get(r, flashCookieName)
	s.AddFlash(msg, category)
	if err := s.Save(r, w); err != nil {
		slogx.FromContext(r.Context()).Warn("failed to save flash", slog.Any("error", err))
	}
}

// popFlashes drains every queued flash message.
func (c *cookieJar) popFlashes(w http.ResponseWriter, r *http.Request) []flash {
	s, _ := c.flashes.Get(r, flashCookieName)

	var out []flash
	for _, cat := range flashCategories {
		for _, v := range s.Flashes(cat) {
			if msg, ok := v.(string); ok {
				out = append(out, flash{Category: cat, Message: msg})
			}
		}
	}
	if len(out) > 0 {
		if err := s.Save(r, w); err != nil {
			slogx.FromContext(r.Context()).Warn("failed to clear flashes", slog.Any("error", err))
		}
	}
	return out
}
