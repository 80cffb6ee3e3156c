package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/app"
	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
	"github.com/stretchr/testify/require"
)

// useTempEnv points the tool at a fresh database and captures its output.
func useTempEnv(t *testing.T) *bytes.Buffer {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("GATEHOUSE_DATABASE_FILE", filepath.Join(dir, "gatehouse.db"))
	t.Setenv("GATEHOUSE_PEPPER_FILE", filepath.Join(dir, "pepper"))
	t.Setenv("GATEHOUSE_SECRETS_DIR", filepath.Join(dir, "secrets"))
	t.Setenv("SESSION_BACKEND", "sql")
	t.Setenv("BASE_URL", "https://auth.example.com")

	var out bytes.Buffer
	prev := stdout
	stdout = &out
	t.Cleanup(func() { stdout = prev })
	return &out
}

// openStore reopens the database the commands wrote to.
func openStore(t *testing.T) store.Store {
	t.Helper()
	st, err := app.OpenStore(app.LoadConfig(), slogx.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func lookupUser(t *testing.T, st store.Store, identifier string) domain.User {
	t.Helper()
	u, err := st.Users().GetUserByIdentifier(context.Background(), identifier)
	require.NoError(t, err)
	return u
}

func TestUserAdd(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantAdmin bool
		wantGen   bool
	}{
		{
			name: "plain account",
			args: []string{"useradd", "alice", "alice@example.com", "correct-horse-1"},
		},
		{
			name:      "administrator",
			args:      []string{"useradd", "--admin", "--first-name", "Ada", "alice", "alice@example.com", "correct-horse-1"},
			wantAdmin: true,
		},
		{
			name:    "generated password",
			args:    []string{"useradd", "alice", "alice@example.com"},
			wantGen: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := useTempEnv(t)
			require.NoError(t, run(tt.args))

			require.Contains(t, out.String(), "username: alice")
			require.Equal(t, tt.wantGen, strings.Contains(out.String(), "password: "))

			st := openStore(t)
			u := lookupUser(t, st, "alice@example.com")
			require.True(t, u.IsActive)
			require.Equal(t, tt.wantAdmin, u.IsAdmin)

			if !tt.wantGen {
				users := &service.UserService{Store: st}
				_, err := users.Authenticate(context.Background(), "alice", "correct-horse-1")
				require.NoError(t, err)
			}
		})
	}
}

func TestUserAddDuplicate(t *testing.T) {
	useTempEnv(t)
	require.NoError(t, run([]string{"useradd", "alice", "alice@example.com", "correct-horse-1"}))

	err := run([]string{"useradd", "alice", "other@example.com", "correct-horse-1"})
	require.ErrorContains(t, err, "already registered")
}

func TestSetPassword(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		wantSessions bool
		wantGen      bool
	}{
		{name: "explicit password", args: []string{"set-password", "alice", "new-horse-battery"}},
		{name: "by email", args: []string{"set-password", "alice@example.com", "new-horse-battery"}},
		{name: "keeps sessions", args: []string{"set-password", "--keep-sessions", "alice", "new-horse-battery"}, wantSessions: true},
		{name: "generated", args: []string{"set-password", "alice"}, wantGen: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := useTempEnv(t)
			require.NoError(t, run([]string{"useradd", "alice", "alice@example.com", "correct-horse-1"}))

			st := openStore(t)
			ctx := context.Background()
			alice := lookupUser(t, st, "alice")
			now := time.Now().UTC()
			require.NoError(t, st.Sessions().CreateSession(ctx, domain.Session{
				ID: "s1", UserID: alice.ID, TokenHash: "hash-s1",
				ExpiresAt: now.Add(time.Hour), CreatedAt: now,
			}))

			out.Reset()
			require.NoError(t, run(tt.args))
			require.Contains(t, out.String(), "password updated for alice")

			users := &service.UserService{Store: st}
			_, err := users.Authenticate(ctx, "alice", "correct-horse-1")
			require.ErrorIs(t, err, service.ErrInvalidCredentials)

			if tt.wantGen {
				_, generated, ok := strings.Cut(out.String(), "password: ")
				require.True(t, ok)
				_, err = users.Authenticate(ctx, "alice", strings.TrimSpace(generated))
			} else {
				_, err = users.Authenticate(ctx, "alice", "new-horse-battery")
			}
			require.NoError(t, err)

			_, err = st.Sessions().GetSessionByTokenHash(ctx, "hash-s1")
			if tt.wantSessions {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, store.ErrNotFound)
			}
		})
	}
}

func TestSetPasswordUnknownUser(t *testing.T) {
	useTempEnv(t)
	err := run([]string{"set-password", "nobody", "new-horse-battery"})
	require.ErrorContains(t, err, `no account matches "nobody"`)
}

func TestRoleCommands(t *testing.T) {
	useTempEnv(t)
	require.NoError(t, run([]string{"useradd", "alice", "alice@example.com", "correct-horse-1"}))

	steps := []struct {
		args       []string
		wantActive bool
		wantAdmin  bool
	}{
		{args: []string{"promote", "alice"}, wantActive: true, wantAdmin: true},
		{args: []string{"deactivate", "alice"}, wantActive: false, wantAdmin: true},
		{args: []string{"activate", "alice@example.com"}, wantActive: true, wantAdmin: true},
		{args: []string{"demote", "alice"}, wantActive: true, wantAdmin: false},
	}
	for _, step := range steps {
		require.NoError(t, run(step.args), step.args)

		st, err := app.OpenStore(app.LoadConfig(), slogx.Discard())
		require.NoError(t, err)
		u := lookupUser(t, st, "alice")
		require.NoError(t, st.Close())

		require.Equal(t, step.wantActive, u.IsActive, step.args)
		require.Equal(t, step.wantAdmin, u.IsAdmin, step.args)
	}
}

func TestResetLink(t *testing.T) {
	out := useTempEnv(t)
	require.NoError(t, run([]string{"useradd", "alice", "alice@example.com", "correct-horse-1"}))

	out.Reset()
	require.NoError(t, run([]string{"reset-link", "alice"}))
	require.True(t, strings.HasPrefix(out.String(), "https://auth.example.com/"), out.String())
}

func TestMissingArguments(t *testing.T) {
	useTempEnv(t)
	for _, args := range [][]string{
		{"useradd", "alice"},
		{"set-password"},
		{"promote"},
	} {
		require.Error(t, run(args), args)
	}
}
