package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func deny(code int) httpx.DenyFunc {
	return func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(code) }
}

func serve(h http.Handler, p *httpx.Principal) int {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	if p != nil {
		req = req.WithContext(httpx.WithPrincipal(req.Context(), *p))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRequireAuthenticated(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := httpx.Chain(ok, httpx.RequireAuthenticated(deny(http.StatusUnauthorized)))

	require.Equal(t, http.StatusUnauthorized, serve(h, nil))
	require.Equal(t, http.StatusUnauthorized, serve(h, &httpx.Principal{}), "empty principal is anonymous")
	require.Equal(t, http.StatusNoContent, serve(h, &httpx.Principal{UserID: "u1"}))
}

func TestRequireAdmin(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := httpx.Chain(ok, httpx.RequireAdmin(deny(http.StatusUnauthorized), deny(http.StatusForbidden)))

	require.Equal(t, http.StatusUnauthorized, serve(h, nil))
	require.Equal(t, http.StatusForbidden, serve(h, &httpx.Principal{UserID: "u1"}))
	require.Equal(t, http.StatusNoContent, serve(h, &httpx.Principal{UserID: "u1", IsAdmin: true}))
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := httpx.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}), mark("a"), mark("b"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/profile", "/profile"},
		{"/admin/users?page=2", "/admin/users?page=2"},
		{"", "/"},
		{"https://evil.example/", "/"},
		{"//evil.example/", "/"},
		{"/\\evil.example", "/"},
		{"profile", "/"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, httpx.LocalPath(tt.in, "/"), tt.in)
	}
}

func TestWantsJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/user-info", nil)
	require.True(t, httpx.WantsJSON(req))

	req = httptest.NewRequest(http.MethodGet, "/profile", nil)
	require.False(t, httpx.WantsJSON(req))

	req.Header.Set("Accept", "application/json")
	require.True(t, httpx.WantsJSON(req))

	req.Header.Set("Accept", "text/html,application/json;q=0.9")
	require.False(t, httpx.WantsJSON(req))
}
