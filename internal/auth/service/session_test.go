package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestCreateSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.register(t, "alice", "alice@example.com", "password123")

	tests := []struct {
		name     string
		remember bool
		ttl      time.Duration
	}{
		{"browser session", false, DefaultSessionTTL},
		{"remember me", true, DefaultRememberTTL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, sess, err := env.sessions.CreateSession(ctx, u, tt.remember, SessionMeta{UserAgent: "ua", RemoteAddr: "10.0.0.1"})
			require.NoError(t, err)
			require.Len(t, token, 43)
			require.Equal(t, cryptox.FingerprintToken(token), sess.TokenHash)
			require.NotEqual(t, token, sess.TokenHash)
			require.Equal(t, tt.remember, sess.Remember)
			require.Equal(t, env.clock.Now().Add(tt.ttl), sess.ExpiresAt)

			gotUser, gotSess, err := env.sessions.ResolveSession(ctx, token)
			require.NoError(t, err)
			require.Equal(t, u.ID, gotUser.ID)
			require.Equal(t, sess.ID, gotSess.ID)
			require.Equal(t, "ua", gotSess.UserAgent)
		})
	}
}

func TestResolveSession_Failures(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.register(t, "alice", "alice@example.com", "password123")

	for _, token := range []string{"", "unknown-token"} {
		_, _, err := env.sessions.ResolveSession(ctx, token)
		require.ErrorIs(t, err, ErrNotAuthenticated)
	}

	token, _, err := env.sessions.CreateSession(ctx, u, false, SessionMeta{})
	require.NoError(t, err)

	env.clock.Advance(DefaultSessionTTL - time.Second)
	_, _, err = env.sessions.ResolveSession(ctx, token)
	require.NoError(t, err)

	env.clock.Advance(time.Second)
	_, _, err = env.sessions.ResolveSession(ctx, token)
	require.ErrorIs(t, err, ErrNotAuthenticated, "expired at exactly ExpiresAt")
}

func TestResolveSession_InactiveUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.register(t, "alice", "alice@example.com", "password123")

	token, _, err := env.sessions.CreateSession(ctx, u, true, SessionMeta{})
	require.NoError(t, err)

	require.NoError(t, env.users.Store.Users().SetActive(ctx, u.ID, false, env.clock.Now()))
	_, _, err = env.sessions.ResolveSession(ctx, token)
	require.ErrorIs(t, err, ErrNotAuthenticated)

	u.IsActive = false
	_, _, err = env.sessions.CreateSession(ctx, u, false, SessionMeta{})
	require.ErrorIs(t, err, ErrAccountDisabled)
}

func TestDestroySession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.register(t, "alice", "alice@example.com", "password123")

	first, _, err := env.sessions.CreateSession(ctx, u, false, SessionMeta{})
	require.NoError(t, err)
	second, _, err := env.sessions.CreateSession(ctx, u, false, SessionMeta{})
	require.NoError(t, err)

	require.NoError(t, env.sessions.DestroySession(ctx, first))
	require.NoError(t, env.sessions.DestroySession(ctx, first), "idempotent")
	require.NoError(t, env.sessions.DestroySession(ctx, ""))

	_, _, err = env.sessions.ResolveSession(ctx, first)
	require.ErrorIs(t, err, ErrNotAuthenticated)
	_, _, err = env.sessions.ResolveSession(ctx, second)
	require.NoError(t, err, "sessions are independent")
}

func TestDestroyUserSessions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	alice := env.register(t, "alice", "alice@example.com", "password123")
	bob := env.register(t, "bob", "bob@example.com", "password123")

	aTok, _, err := env.sessions.CreateSession(ctx, alice, false, SessionMeta{})
	require.NoError(t, err)
	bTok, _, err := env.sessions.CreateSession(ctx, bob, false, SessionMeta{})
	require.NoError(t, err)

	require.NoError(t, env.sessions.DestroyUserSessions(ctx, alice.ID, ""))

	_, _, err = env.sessions.ResolveSession(ctx, aTok)
	require.ErrorIs(t, err, ErrNotAuthenticated)
	_, _, err = env.sessions.ResolveSession(ctx, bTok)
	require.NoError(t, err)
}

func TestSessionTTLOverrides(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.sessions.SessionTTL = 10 * time.Minute
	u := env.register(t, "alice", "alice@example.com", "password123")

	_, sess, err := env.sessions.CreateSession(ctx, u, false, SessionMeta{})
	require.NoError(t, err)
	require.Equal(t, env.clock.Now().Add(10*time.Minute), sess.ExpiresAt)
}
