package httpx

import (
	"context"
	"time"
)

type ctxKey string

const ctxKeyPrincipal ctxKey = "principal"

// Principal is the authenticated caller as resolved from their session.
// Handlers receive it explicitly through the request context.
type Principal struct {
	UserID    string
	Username  string
	IsAdmin   bool
	SessionID string
	Remember  bool
	ExpiresAt time.Time
}

// WithPrincipal returns ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// PrincipalFrom returns the principal stored in ctx, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(Principal)
	if !ok || p.UserID == "" {
		return Principal{}, false
	}
	return p, true
}
