package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "service-test")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	tokens map[string][]string // user id -> tokens, oldest first
	err    error
}

func (n *recordingNotifier) NotifyPasswordReset(_ context.Context, user domain.User, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.tokens == nil {
		n.tokens = map[string][]string{}
	}
	n.tokens[user.ID] = append(n.tokens[user.ID], token)
	return n.err
}

func (n *recordingNotifier) last(userID string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	ts := n.tokens[userID]
	if len(ts) == 0 {
		return ""
	}
	return ts[len(ts)-1]
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, ts := range n.tokens {
		total += len(ts)
	}
	return total
}

type testEnv struct {
	clock    *fakeClock
	notifier *recordingNotifier
	users    *UserService
	sessions *SessionService
	resets   *PasswordResetService
	admin    *AdminService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	clock := newFakeClock()
	notifier := &recordingNotifier{}

	return &testEnv{
		clock:    clock,
		notifier: notifier,
		users:    &UserService{Store: st, Clock: clock.Now},
		sessions: &SessionService{Store: st, Clock: clock.Now},
		resets:   &PasswordResetService{Store: st, Clock: clock.Now, Notifier: notifier},
		admin:    &AdminService{Store: st, Clock: clock.Now},
	}
}

func (e *testEnv) register(t *testing.T, username, email, password string) domain.User {
	t.Helper()
	u, err := e.users.Register(context.Background(), RegisterInput{
		Username:  username,
		Email:     email,
		Password:  password,
		FirstName: "Test",
		LastName:  "User",
	})
	require.NoError(t, err)
	return u
}
