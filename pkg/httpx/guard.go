package httpx

import "net/http"

// DenyFunc answers a request that a guard rejected.
type DenyFunc func(w http.ResponseWriter, r *http.Request)

// RequireAuthenticated lets the request through only when a principal is in
// the context. Something upstream must have resolved the session already.
func RequireAuthenticated(unauthenticated DenyFunc) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := PrincipalFrom(r.Context()); !ok {
				unauthenticated(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin additionally requires the principal to be an administrator.
// A missing principal and a non-admin principal are answered differently.
func RequireAdmin(unauthenticated, forbidden DenyFunc) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				unauthenticated(w, r)
				return
			}
			if !p.IsAdmin {
				forbidden(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
