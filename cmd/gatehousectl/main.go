// gatehousectl manages gatehouse accounts directly against the database. It
// reads the same environment (and .env file) as the server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	flags "github.com/jessevdk/go-flags"

	"github.com/aussiebroadwan/gatehouse/internal/auth/app"
	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

type ctl struct {
	Verbose bool `short:"v" long:"verbose" description:"Log service activity to stderr"`

	UserAdd    userAddCmd     `command:"useradd" description:"Create an account"`
	Promote    promoteCmd     `command:"promote" description:"Grant administrator rights"`
	Demote     demoteCmd      `command:"demote" description:"Revoke administrator rights"`
	Activate   activateCmd    `command:"activate" description:"Allow an account to sign in"`
	Deactivate deactivateCmd  `command:"deactivate" description:"Block an account and end its sessions"`
	SetPass    setPasswordCmd `command:"set-password" description:"Replace an account's password"`
	ResetLink  resetLinkCmd   `command:"reset-link" description:"Print a password reset link without sending mail"`
	Sweep      sweepCmd       `command:"sweep" description:"Delete expired sessions and dead reset tokens"`
}

var (
	opts ctl

	// stdout receives command output.
	stdout io.Writer = os.Stdout
)

// env is what every command needs. It is opened lazily so --help works
// without a database.
type env struct {
	cfg    app.Config
	logger *slog.Logger
	store  store.Store

	users  *service.UserService
	admin  *service.AdminService
	resets *service.PasswordResetService
}

func openEnv() (*env, error) {
	cfg := app.LoadConfig()

	logger := slogx.Discard()
	if opts.Verbose {
		logger = slogx.New(slogx.Config{
			Service: "gatehousectl",
			Version: app.BuildVersion,
			Env:     cfg.Env,
			Level:   "debug",
			Format:  "text",
			Output:  os.Stderr,
		})
	}

	cryptox.SetPepperPath(cfg.PepperFile)

	st, err := app.OpenStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:    cfg,
		logger: logger,
		store:  st,
		users:  &service.UserService{Store: st},
		admin:  &service.AdminService{Store: st},
		resets: &service.PasswordResetService{Store: st, ResetTTL: cfg.ResetTokenTTL},
	}, nil
}

func (e *env) ctx() context.Context {
	return slogx.WithContext(context.Background(), e.logger)
}

func (e *env) Close() error { return e.store.Close() }

// withEnv opens the environment around fn.
func withEnv(fn func(e *env) error) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(e)
}

// run parses args and executes the selected command.
func run(args []string) error {
	opts = ctl{}
	parser := flags.NewParser(&opts, flags.Default)
	_, err := parser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil
		}
		return err
	}
	return nil
}

func main() {
	err := run(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if !errors.As(err, &flagsErr) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		os.Exit(1)
	}
}
