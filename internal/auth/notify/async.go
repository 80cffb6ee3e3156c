package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

var ErrNotifierClosed = errors.New("notify: notifier closed")

// AsyncNotifier delivers through Next on a background goroutine. The caller
// returns as soon as the notification is handed off, so a slow relay does
// not show up in the response time of the forgot-password form.
type AsyncNotifier struct {
	Next    Notifier
	Timeout time.Duration // per delivery (default: 30s)

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

func (n *AsyncNotifier) NotifyPasswordReset(ctx context.Context, user domain.User, token string) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrNotifierClosed
	}
	n.wg.Add(1)
	n.mu.Unlock()

	timeout := n.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	// Keep the request's logger and values, drop its cancellation.
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer n.wg.Done()
		c, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := n.Next.NotifyPasswordReset(c, user, token); err != nil {
			slogx.FromContext(ctx).Error("failed to deliver password reset",
				slog.String("user_id", user.ID),
				slog.Any("error", err),
			)
		}
	}()
	return nil
}

// Close refuses new notifications and waits for in-flight ones.
func (n *AsyncNotifier) Close() error {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	n.wg.Wait()
	return nil
}
