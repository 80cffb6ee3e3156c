package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// ConsoleMailer prints messages instead of sending them. It is the
// development default; the output carries live reset links.
type ConsoleMailer struct {
	mu  sync.Mutex
	Out io.Writer
}

func (m *ConsoleMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := fmt.Fprintf(m.Out, "To: %s <%s>\nSubject: %s\n\n%s\n", msg.Name, msg.To, msg.Subject, msg.Text)
	return err
}
