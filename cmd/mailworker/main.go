// mailworker drains the email queue filled by gatehouse when
// MAIL_DRIVER=queue and delivers each message through SMTP, Mailgun or the
// console.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/aussiebroadwan/gatehouse/internal/auth/app"
	"github.com/aussiebroadwan/gatehouse/internal/auth/notify"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

type options struct {
	Driver      string        `long:"driver" env:"MAILWORKER_DRIVER" default:"log" choice:"log" choice:"smtp" choice:"mailgun" description:"Transport used to deliver queued mail"`
	Prefetch    int           `long:"prefetch" env:"MAILWORKER_PREFETCH" default:"16" description:"Unacknowledged deliveries held at once"`
	SendTimeout time.Duration `long:"send-timeout" env:"MAILWORKER_SEND_TIMEOUT" default:"15s" description:"Deadline for a single send"`
	MaxAttempts int           `long:"max-attempts" env:"MAILWORKER_MAX_ATTEMPTS" default:"5" description:"Failed sends before a job is dead-lettered"`
}

func _main() error {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil
		}
		return err
	}

	cfg := app.LoadConfig()
	cfg.MailDriver = opts.Driver
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slogx.New(slogx.Config{
		Service: "mailworker",
		Version: app.BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	mailer, _, err := app.NewMailer(cfg)
	if err != nil {
		return fmt.Errorf("mailer: %w", err)
	}

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("amqp: dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp: channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(opts.Prefetch, 0, false); err != nil {
		return fmt.Errorf("amqp: qos: %w", err)
	}
	if err := notify.DeclareQueue(ch, cfg.EmailQueue); err != nil {
		return err
	}

	deliveries, err := ch.Consume(
		cfg.EmailQueue,
		"mailworker", // consumer
		false,        // autoAck
		false,        // exclusive
		false,        // noLocal
		false,        // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("amqp: consume: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("mailworker started",
		"queue", cfg.EmailQueue,
		"dead_letter_queue", notify.DeadLetterQueue(cfg.EmailQueue),
		"driver", opts.Driver,
	)

	w := &notify.Worker{
		Mailer:      mailer,
		Logger:      logger,
		SendTimeout: opts.SendTimeout,
		Retry:       &notify.ChannelPublisher{Ch: ch, Queue: cfg.EmailQueue},
		MaxAttempts: opts.MaxAttempts,
	}
	w.Run(ctx, deliveries)

	logger.Info("mailworker stopped")
	return nil
}

func main() {
	if err := _main(); err != nil {
		var flagsErr *flags.Error
		if !errors.As(err, &flagsErr) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		os.Exit(1)
	}
}
