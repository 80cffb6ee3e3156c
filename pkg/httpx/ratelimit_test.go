package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestParseLimit(t *testing.T) {
	tests := []struct {
		in      string
		want    httpx.Limit
		wantErr bool
	}{
		{in: "5/1m", want: httpx.Limit{Requests: 5, Per: time.Minute, Burst: 5}},
		{in: " 100/30s/200 ", want: httpx.Limit{Requests: 100, Per: 30 * time.Second, Burst: 200}},
		{in: "OFF", want: httpx.Limit{}},
		{in: "0", want: httpx.Limit{}},
		{in: "5", wantErr: true},
		{in: "five/1m", wantErr: true},
		{in: "5/soon", wantErr: true},
		{in: "-1/1m", wantErr: true},
		{in: "5/1m/0", wantErr: true},
		{in: "5/1m/2/3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := httpx.ParseLimit(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, httpx.ErrBadLimit)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestLimitString(t *testing.T) {
	require.Equal(t, "5/1m0s", httpx.PerMinute(5).String())
	require.Equal(t, "5/1m0s/10", httpx.Limit{Requests: 5, Per: time.Minute, Burst: 10}.String())
	require.Equal(t, "off", httpx.Limit{}.String())

	round, err := httpx.ParseLimit(httpx.PerMinute(7).String())
	require.NoError(t, err)
	require.Equal(t, httpx.PerMinute(7), round)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"peer address", nil, "192.168.1.1"},
		{"first forwarded hop", map[string]string{"X-Forwarded-For": "203.0.113.1, 10.0.0.1"}, "203.0.113.1"},
		{"real ip", map[string]string{"X-Real-IP": " 203.0.113.2 "}, "203.0.113.2"},
		{"empty forwarded hop falls through", map[string]string{"X-Forwarded-For": " ,10.0.0.1", "X-Real-IP": "203.0.113.3"}, "203.0.113.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "192.168.1.1:12345"
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tt.want, httpx.ClientIP(req))
		})
	}
}

func loginRequest(username string) *http.Request {
	body := url.Values{"username": {username}, "password": {"x"}}.Encode()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "10.0.0.1:1"
	return req
}

func TestByIPAndField(t *testing.T) {
	key := httpx.ByIPAndField("username")

	require.Equal(t, "10.0.0.1|alice", key(loginRequest(" Alice ")))
	require.Equal(t, "10.0.0.1", key(loginRequest("")))

	// Query strings do not pick the bucket.
	req := httptest.NewRequest(http.MethodPost, "/login?username=mallory", nil)
	req.RemoteAddr = "10.0.0.1:1"
	require.Equal(t, "10.0.0.1", key(req))
}

func TestByUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1"
	require.Equal(t, "10.0.0.1", httpx.ByUser(req))

	req = req.WithContext(httpx.WithPrincipal(req.Context(), httpx.Principal{UserID: "u1"}))
	require.Equal(t, "user:u1", httpx.ByUser(req))
}

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time          { return c.now }
func (c *stepClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestLimiterAllow(t *testing.T) {
	clock := &stepClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := httpx.NewLimiter(httpx.PerMinute(2), httpx.ByIP).WithClock(clock.Now)

	for range 2 {
		ok, _ := l.Allow("a")
		require.True(t, ok)
	}
	ok, wait := l.Allow("a")
	require.False(t, ok)
	require.InDelta(t, float64(30*time.Second), float64(wait), float64(time.Millisecond))

	ok, _ = l.Allow("b")
	require.True(t, ok, "buckets are per key")

	clock.Advance(31 * time.Second)
	ok, _ = l.Allow("a")
	require.True(t, ok, "one token back after a refill interval")
	ok, _ = l.Allow("a")
	require.False(t, ok)
}

func TestLimiterSweepsIdleBuckets(t *testing.T) {
	clock := &stepClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := httpx.NewLimiter(httpx.PerMinute(5), httpx.ByIP).WithClock(clock.Now)

	l.Allow("a")
	l.Allow("b")
	require.Equal(t, 2, l.Len())

	clock.Advance(2 * time.Minute)
	l.Allow("c")
	require.Equal(t, 1, l.Len())
}

func TestLimiterDisabled(t *testing.T) {
	l := httpx.NewLimiter(httpx.Limit{}, httpx.ByIP)
	for range 100 {
		ok, _ := l.Allow("a")
		require.True(t, ok)
	}
	require.Zero(t, l.Len())
}

func TestRateLimitMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name      string
		path      string
		accept    string
		wantJSON  bool
		wantPlain bool
	}{
		{name: "page", path: "/login", wantPlain: true},
		{name: "api path", path: "/v1/bootstrap", wantJSON: true},
		{name: "json accept", path: "/login", accept: "application/json", wantJSON: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := httpx.Chain(ok, httpx.RateLimit("test", httpx.PerMinute(1), httpx.ByIP))

			for i, want := range []int{http.StatusNoContent, http.StatusTooManyRequests} {
				req := httptest.NewRequest(http.MethodPost, tt.path, nil)
				req.RemoteAddr = "10.0.0.1:1"
				if tt.accept != "" {
					req.Header.Set("Accept", tt.accept)
				}
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, req)
				require.Equal(t, want, rec.Code, "request %d", i+1)
				if want != http.StatusTooManyRequests {
					continue
				}

				require.Equal(t, "60", rec.Header().Get("Retry-After"))
				require.Equal(t, "1/1m0s", rec.Header().Get("X-RateLimit-Limit"))
				if tt.wantJSON {
					require.Contains(t, rec.Body.String(), "rate_limit_exceeded")
				}
				if tt.wantPlain {
					require.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
					require.NotContains(t, rec.Body.String(), "rate_limit_exceeded")
				}
			}
		})
	}
}

func TestRateLimitMiddlewareEmptyKeyPassesThrough(t *testing.T) {
	calls := 0
	h := httpx.Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }),
		httpx.RateLimit("test", httpx.PerMinute(1), func(*http.Request) string { return "" }),
	)
	for range 3 {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	require.Equal(t, 3, calls)
}
