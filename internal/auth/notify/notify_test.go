package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

var alice = domain.User{ID: "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV", Username: "alice", Email: "alice@example.com", FirstName: "Alice", LastName: "Liddell"}

func TestResetURL(t *testing.T) {
	require.Equal(t, "https://auth.example.com/reset-password/tok", ResetURL("https://auth.example.com/", "tok"))
	require.Equal(t, "http://localhost:8080/reset-password/tok", ResetURL("http://localhost:8080", "tok"))
}

func TestComposePasswordReset(t *testing.T) {
	msg := ComposePasswordReset("https://auth.example.com", alice, "tok123", time.Hour)

	require.Equal(t, "alice@example.com", msg.To)
	require.Equal(t, "Alice Liddell", msg.Name)
	require.Equal(t, "Reset your password", msg.Subject)
	require.Contains(t, msg.Text, "Hi Alice,")
	require.Contains(t, msg.Text, "https://auth.example.com/reset-password/tok123")
	require.Contains(t, msg.Text, "expires in 1h0m0s")
}

func TestMailNotifier(t *testing.T) {
	var sent []Message
	n := &MailNotifier{
		BaseURL: "http://localhost",
		Mailer: MailerFunc(func(_ context.Context, msg Message) error {
			sent = append(sent, msg)
			return nil
		}),
	}

	require.NoError(t, n.NotifyPasswordReset(context.Background(), alice, "abc"))
	require.Len(t, sent, 1)
	require.Contains(t, sent[0].Text, "http://localhost/reset-password/abc")

	require.Error(t, n.NotifyPasswordReset(context.Background(), domain.User{ID: "x"}, "abc"))
	require.Len(t, sent, 1)
}

func TestConsoleMailer(t *testing.T) {
	var buf bytes.Buffer
	m := &ConsoleMailer{Out: &buf}

	require.NoError(t, m.Send(context.Background(), Message{To: "a@example.com", Name: "A", Subject: "Hi", Text: "body"}))
	require.Contains(t, buf.String(), "To: A <a@example.com>")
	require.Contains(t, buf.String(), "Subject: Hi")
	require.Contains(t, buf.String(), "body")
}

func TestJobRoundTrip(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	msg := ComposePasswordReset("http://x", alice, "t", 0)

	body, err := EncodeJob(KindPasswordReset, msg, at)
	require.NoError(t, err)

	job, err := DecodeJob(body)
	require.NoError(t, err)
	require.Equal(t, KindPasswordReset, job.Kind)
	require.Equal(t, msg, job.Message)
	require.True(t, at.Equal(job.Queued))
}

func TestDecodeJobRejectsGarbage(t *testing.T) {
	for _, body := range []string{"", "{", `{"kind":"password_reset","message":{"subject":"x"}}`} {
		_, err := DecodeJob([]byte(body))
		require.ErrorIs(t, err, ErrBadJob, body)
	}
}

type recordingAck struct {
	acked, nacked, requeued bool
}

func (a *recordingAck) Ack(uint64, bool) error { a.acked = true; return nil }
func (a *recordingAck) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}
func (a *recordingAck) Reject(_ uint64, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}

type recordingPublisher struct {
	bodies   [][]byte
	attempts []int
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, body []byte, attempts int) error {
	if p.err != nil {
		return p.err
	}
	p.bodies = append(p.bodies, body)
	p.attempts = append(p.attempts, attempts)
	return nil
}

func TestWorkerHandle(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	good, err := EncodeJob(KindPasswordReset, Message{To: "a@example.com", Subject: "s", Text: "t"}, time.Now())
	require.NoError(t, err)
	relayDown := errors.New("relay down")

	tests := []struct {
		name         string
		body         []byte
		headers      amqp.Table
		sendErr      error
		publishErr   error
		noRetry      bool
		wantAck      bool
		wantRequeued bool
		wantRetry    []int
	}{
		{name: "delivered", body: good, wantAck: true},
		{name: "first failure republished", body: good, sendErr: relayDown, wantAck: true, wantRetry: []int{1}},
		{name: "attempt count carried", body: good, headers: amqp.Table{AttemptsHeader: int32(2)}, sendErr: relayDown, wantAck: true, wantRetry: []int{3}},
		{name: "out of attempts dead-lettered", body: good, headers: amqp.Table{AttemptsHeader: int32(4)}, sendErr: relayDown},
		{name: "no publisher dead-letters", body: good, sendErr: relayDown, noRetry: true},
		{name: "republish failure requeues", body: good, sendErr: relayDown, publishErr: errors.New("channel closed"), wantRequeued: true},
		{name: "malformed dropped", body: []byte("nope")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &recordingAck{}
			pub := &recordingPublisher{err: tt.publishErr}
			w := &Worker{
				Logger:      logger,
				Mailer:      MailerFunc(func(context.Context, Message) error { return tt.sendErr }),
				Retry:       pub,
				MaxAttempts: 5,
			}
			if tt.noRetry {
				w.Retry = nil
			}
			w.Handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: tt.body, Headers: tt.headers})

			require.Equal(t, tt.wantAck, ack.acked)
			require.Equal(t, !tt.wantAck, ack.nacked)
			require.Equal(t, tt.wantRequeued, ack.requeued)
			require.Equal(t, tt.wantRetry, pub.attempts)
			for _, body := range pub.bodies {
				require.Equal(t, tt.body, body)
			}
		})
	}
}

func TestAttempts(t *testing.T) {
	require.Zero(t, Attempts(nil))
	require.Zero(t, Attempts(amqp.Table{AttemptsHeader: "three"}))
	require.Equal(t, 3, Attempts(amqp.Table{AttemptsHeader: int32(3)}))
	require.Equal(t, 4, Attempts(amqp.Table{AttemptsHeader: int64(4)}))
}

func TestWorkerRunStopsOnClose(t *testing.T) {
	deliveries := make(chan amqp.Delivery)
	close(deliveries)

	done := make(chan struct{})
	go func() {
		(&Worker{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}).Run(context.Background(), deliveries)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestNewSMTPMailerRejectsBadFrom(t *testing.T) {
	for _, from := range []string{"", "not an address"} {
		_, err := NewSMTPMailer("smtp://localhost:25", from, false)
		require.Error(t, err, from)
		require.Contains(t, err.Error(), "from address")
	}
}

type notifierFunc func(ctx context.Context, user domain.User, token string) error

func (f notifierFunc) NotifyPasswordReset(ctx context.Context, user domain.User, token string) error {
	return f(ctx, user, token)
}

func TestAsyncNotifier(t *testing.T) {
	release := make(chan struct{})
	delivered := make(chan string, 1)
	n := &AsyncNotifier{
		Next: notifierFunc(func(ctx context.Context, _ domain.User, token string) error {
			<-release
			if ctx.Err() != nil {
				token = "cancelled"
			}
			delivered <- token
			return nil
		}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, n.NotifyPasswordReset(ctx, alice, "tok"))
	cancel() // the request finishing must not abort delivery

	select {
	case <-delivered:
		t.Fatal("delivery should still be blocked")
	default:
	}

	closed := make(chan struct{})
	go func() {
		_ = n.Close()
		close(closed)
	}()
	close(release)

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close did not wait for delivery")
	}
	require.Equal(t, "tok", <-delivered)

	require.ErrorIs(t, n.NotifyPasswordReset(context.Background(), alice, "late"), ErrNotifierClosed)
}
