package notify

import (
	"context"
	"fmt"
	"time"

	mg "github.com/mailgun/mailgun-go/v4"
)

// MailgunMailer sends through the Mailgun HTTP API.
type MailgunMailer struct {
	client *mg.MailgunImpl
	sender string
}

func NewMailgunMailer(domain, apiKey, sender string) *MailgunMailer {
	return &MailgunMailer{client: mg.NewMailgun(domain, apiKey), sender: sender}
}

func (m *MailgunMailer) Send(ctx context.Context, msg Message) error {
	to := msg.To
	if msg.Name != "" {
		to = fmt.Sprintf("%s <%s>", msg.Name, msg.To)
	}
	message := m.client.NewMessage(m.sender, msg.Subject, msg.Text, to)

	c, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, _, err := m.client.Send(c, message); err != nil {
		return fmt.Errorf("mailgun: send: %w", err)
	}
	return nil
}
