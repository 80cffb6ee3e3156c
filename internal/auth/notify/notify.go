// Package notify delivers account notifications. Composition is shared; the
// transport is a Mailer chosen at start-up (console, SMTP, Mailgun, or a
// RabbitMQ queue drained by cmd/mailworker).
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
)

// Notifier tells a user about an issued password reset token.
type Notifier interface {
	NotifyPasswordReset(ctx context.Context, user domain.User, token string) error
}

// Message is a rendered plain-text email.
type Message struct {
	To      string `json:"to"`
	Name    string `json:"name,omitempty"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// Mailer moves a Message towards the recipient.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// MailerFunc adapts a function to Mailer.
type MailerFunc func(ctx context.Context, msg Message) error

func (f MailerFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// ResetURL is where a token is redeemed.
func ResetURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/reset-password/" + token
}

// ComposePasswordReset renders the reset email for user.
func ComposePasswordReset(baseURL string, user domain.User, token string, ttl time.Duration) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", user.DisplayName())
	b.WriteString("Someone asked to reset the password for your account.\n")
	b.WriteString("Open the link below to choose a new one:\n\n")
	fmt.Fprintf(&b, "    %s\n\n", ResetURL(baseURL, token))
	if ttl > 0 {
		fmt.Fprintf(&b, "The link works once and expires in %s.\n", ttl)
	}
	b.WriteString("If you did not ask for this you can ignore this email.\n")

	return Message{
		To:      user.Email,
		Name:    user.FullName(),
		Subject: "Reset your password",
		Text:    b.String(),
	}
}

// MailNotifier composes notifications and hands them to a Mailer.
type MailNotifier struct {
	Mailer   Mailer
	BaseURL  string
	ResetTTL time.Duration
}

func (n *MailNotifier) NotifyPasswordReset(ctx context.Context, user domain.User, token string) error {
	if user.Email == "" {
		return fmt.Errorf("notify: user %s has no email", user.ID)
	}
	return n.Mailer.Send(ctx, ComposePasswordReset(n.BaseURL, user, token, n.ResetTTL))
}
