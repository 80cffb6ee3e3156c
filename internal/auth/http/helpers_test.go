package http

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
	"github.com/gorilla/securecookie"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "http-test")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type tokenNotifier struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (n *tokenNotifier) NotifyPasswordReset(_ context.Context, user domain.User, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.tokens == nil {
		n.tokens = map[string]string{}
	}
	n.tokens[user.ID] = token
	return nil
}

func (n *tokenNotifier) token(userID string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.tokens[userID]
}

type testEnv struct {
	router   *Router
	notifier *tokenNotifier
	users    *service.UserService
	sessions *service.SessionService
	resets   *service.PasswordResetService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithLimits(t, nil)
}

// newTestEnvWithLimits uses DefaultRateLimits when limits is nil.
func newTestEnvWithLimits(t *testing.T, limits *RateLimits) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	notifier := &tokenNotifier{}
	users := &service.UserService{Store: st}
	sessions := &service.SessionService{Store: st}
	resets := &service.PasswordResetService{Store: st, Notifier: notifier}

	r := NewRouter(st, slogx.Discard(), Options{
		BuildVersion:   "test",
		CookieHashKey:  securecookie.GenerateRandomKey(64),
		CookieBlockKey: securecookie.GenerateRandomKey(32),
		CSRFKey:        securecookie.GenerateRandomKey(32),
		RateLimits:     limits,
	})
	r.UserService = users
	r.SessionService = sessions
	r.PasswordResetService = resets
	r.AdminService = &service.AdminService{Store: st}
	r.BootstrapService = &service.BootstrapService{Users: users, Token: "bootstrap-secret"}
	r.ApplyRoutes()

	return &testEnv{router: r, notifier: notifier, users: users, sessions: sessions, resets: resets}
}

func (e *testEnv) register(t *testing.T, username, password string, admin bool) domain.User {
	t.Helper()
	ctx := context.Background()

	u, err := e.users.Register(ctx, service.RegisterInput{
		Username:  username,
		Email:     username + "@example.com",
		Password:  password,
		FirstName: "Test",
		LastName:  "User",
	})
	require.NoError(t, err)
	if admin {
		u, err = e.router.AdminService.SetAdmin(ctx, u.ID, true)
		require.NoError(t, err)
	}
	return u
}

// sessionCookie signs user in without going through the login form.
func (e *testEnv) sessionCookie(t *testing.T, u domain.User) *http.Cookie {
	t.Helper()
	token, _, err := e.sessions.CreateSession(context.Background(), u, false, service.SessionMeta{})
	require.NoError(t, err)
	encoded, err := e.router.web.cookies.codec.Encode(sessionCookieName, token)
	require.NoError(t, err)
	return &http.Cookie{Name: sessionCookieName, Value: encoded}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// browser drives a live test server with a cookie jar and without following
// redirects.
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func newBrowser(t *testing.T, h http.Handler) *browser {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &browser{
		t:    t,
		base: srv.URL,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (b *browser) get(path string) (*http.Response, string) {
	b.t.Helper()
	resp, err := b.client.Get(b.base + path)
	require.NoError(b.t, err)
	return resp, readBody(b.t, resp)
}

func (b *browser) post(path string, form url.Values) (*http.Response, string) {
	b.t.Helper()
	resp, err := b.client.PostForm(b.base+path, form)
	require.NoError(b.t, err)
	return resp, readBody(b.t, resp)
}

// submit loads the page at path, copies its CSRF token into form and posts
// the form back to action.
func (b *browser) submit(path, action string, form url.Values) (*http.Response, string) {
	b.t.Helper()
	_, body := b.get(path)
	form.Set("csrf_token", csrfToken(b.t, body))
	return b.post(action, form)
}

func (b *browser) cookie(name string) string {
	u, err := url.Parse(b.base)
	require.NoError(b.t, err)
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

var reCSRF = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

func csrfToken(t *testing.T, body string) string {
	t.Helper()
	m := reCSRF.FindStringSubmatch(body)
	require.Len(t, m, 2, "page carries no csrf field")
	return m[1]
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func location(resp *http.Response) string {
	return resp.Header.Get("Location")
}

func unescape(s string) string {
	return strings.NewReplacer("&#39;", "'", "&amp;", "&", "&#34;", `"`).Replace(s)
}
