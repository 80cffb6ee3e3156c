package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// EmailJob is the queue payload.
type EmailJob struct {
	Kind    string    `json:"kind"`
	Message Message   `json:"message"`
	Queued  time.Time `json:"queued_at"`
}

const KindPasswordReset = "password_reset"

// AttemptsHeader counts failed sends of a job. After MaxAttempts the job is
// rejected and the broker moves it to the dead-letter queue.
const (
	AttemptsHeader     = "x-gatehouse-attempts"
	DefaultMaxAttempts = 5
)

// Publisher puts an encoded job on the email queue.
type Publisher interface {
	Publish(ctx context.Context, body []byte, attempts int) error
}

// ChannelPublisher publishes to Queue through the default exchange.
type ChannelPublisher struct {
	Ch    *amqp.Channel
	Queue string
}

func (p *ChannelPublisher) Publish(ctx context.Context, body []byte, attempts int) error {
	return p.Ch.PublishWithContext(ctx,
		"",      // default exchange
		p.Queue, // routing key = queue
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Headers:      amqp.Table{AttemptsHeader: int32(attempts)},
			Body:         body,
		},
	)
}

// QueueMailer publishes messages to a durable RabbitMQ queue instead of
// sending them.
type QueueMailer struct {
	conn *amqp.Connection
	pub  *ChannelPublisher
}

func NewQueueMailer(url, queue string) (*QueueMailer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp: channel: %w", err)
	}
	if err := DeclareQueue(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &QueueMailer{conn: conn, pub: &ChannelPublisher{Ch: ch, Queue: queue}}, nil
}

// DeadLetterQueue names the queue rejected jobs of queue end up in.
func DeadLetterQueue(queue string) string { return queue + ".dead" }

// DeclareQueue declares the durable email queue and its dead-letter queue.
func DeclareQueue(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(DeadLetterQueue(queue), true, false, false, false, nil); err != nil {
		return fmt.Errorf("amqp: dead-letter queue declare: %w", err)
	}
	_, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": DeadLetterQueue(queue),
		},
	)
	if err != nil {
		return fmt.Errorf("amqp: queue declare: %w", err)
	}
	return nil
}

func (q *QueueMailer) Close() error {
	if q == nil {
		return nil
	}
	var errs []error
	if q.pub != nil && q.pub.Ch != nil {
		errs = append(errs, q.pub.Ch.Close())
	}
	if q.conn != nil {
		errs = append(errs, q.conn.Close())
	}
	return errors.Join(errs...)
}

func (q *QueueMailer) Send(ctx context.Context, msg Message) error {
	body, err := EncodeJob(KindPasswordReset, msg, time.Now())
	if err != nil {
		return err
	}
	return q.pub.Publish(ctx, body, 0)
}

func EncodeJob(kind string, msg Message, at time.Time) ([]byte, error) {
	return json.Marshal(EmailJob{Kind: kind, Message: msg, Queued: at.UTC()})
}

// ErrBadJob marks a payload that can never be delivered.
var ErrBadJob = errors.New("notify: malformed email job")

func DecodeJob(body []byte) (EmailJob, error) {
	var job EmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		return EmailJob{}, fmt.Errorf("%w: %v", ErrBadJob, err)
	}
	if job.Message.To == "" || job.Message.Subject == "" {
		return EmailJob{}, fmt.Errorf("%w: missing recipient or subject", ErrBadJob)
	}
	return job, nil
}

// Attempts reads AttemptsHeader. Missing or unreadable values count as zero.
func Attempts(headers amqp.Table) int {
	switch v := headers[AttemptsHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// Worker drains queued email jobs into a Mailer.
type Worker struct {
	Mailer      Mailer
	Logger      *slog.Logger
	SendTimeout time.Duration

	// Retry republishes failed jobs with a bumped attempt count. Without it
	// a failed job is rejected straight away.
	Retry       Publisher
	MaxAttempts int
}

func (w *Worker) maxAttempts() int {
	if w.MaxAttempts > 0 {
		return w.MaxAttempts
	}
	return DefaultMaxAttempts
}

// Run handles deliveries until the channel closes or ctx is done.
// Malformed jobs and jobs out of attempts are dead-lettered.
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			w.Handle(ctx, d)
		}
	}
}

func (w *Worker) Handle(ctx context.Context, d amqp.Delivery) {
	job, err := DecodeJob(d.Body)
	if err != nil {
		w.Logger.Warn("dropping email job", slog.Any("error", err))
		_ = d.Nack(false, false)
		return
	}

	timeout := w.SendTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := w.Mailer.Send(c, job.Message); err != nil {
		w.retry(ctx, d, job, err)
		return
	}

	w.Logger.Info("email delivered", slog.String("kind", job.Kind))
	_ = d.Ack(false)
}

func (w *Worker) retry(ctx context.Context, d amqp.Delivery, job EmailJob, sendErr error) {
	attempts := Attempts(d.Headers) + 1
	log := w.Logger.With(
		slog.String("kind", job.Kind),
		slog.Int("attempts", attempts),
		slog.Any("error", sendErr),
	)

	if w.Retry == nil || attempts >= w.maxAttempts() {
		log.Error("email send failed, giving up")
		_ = d.Nack(false, false)
		return
	}

	if err := w.Retry.Publish(ctx, d.Body, attempts); err != nil {
		log.Error("email send failed and could not be republished, requeueing", slog.Any("publish_error", err))
		_ = d.Nack(false, true)
		return
	}

	log.Warn("email send failed, retrying")
	_ = d.Ack(false)
}
