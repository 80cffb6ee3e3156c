package main

import (
	"errors"
	"fmt"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/notify"
	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
)

// userAddCmd creates an account. A password is generated and printed when
// none is given.
type userAddCmd struct {
	Admin     bool   `long:"admin" description:"Create the account as an administrator"`
	FirstName string `long:"first-name"`
	LastName  string `long:"last-name"`

	Args struct {
		Username string `positional-arg-name:"username" required:"true"`
		Email    string `positional-arg-name:"email" required:"true"`
		Password string `positional-arg-name:"password"`
	} `positional-args:"true"`
}

// Execute satisfies the go-flags Commander interface.
func (c *userAddCmd) Execute(_ []string) error {
	return withEnv(func(e *env) error {
		password := c.Args.Password
		generated := password == ""
		if generated {
			var err error
			if password, err = cryptox.GeneratePassword(); err != nil {
				return err
			}
		}

		user, err := e.users.Register(e.ctx(), service.RegisterInput{
			Username:  c.Args.Username,
			Email:     c.Args.Email,
			Password:  password,
			FirstName: c.FirstName,
			LastName:  c.LastName,
		})
		if errors.Is(err, service.ErrDuplicateIdentity) {
			return fmt.Errorf("username or email already registered")
		}
		if err != nil {
			return err
		}

		if c.Admin {
			if user, err = e.admin.SetAdmin(e.ctx(), user.ID, true); err != nil {
				return err
			}
		}

		printUser(user)
		if generated {
			fmt.Fprintf(stdout, "password: %s\n", password)
		}
		return nil
	})
}

// userArgs names the account a command acts on.
type userArgs struct {
	User string `positional-arg-name:"username-or-email" required:"true"`
}

func (a userArgs) lookup(e *env) (domain.User, error) {
	user, err := e.store.Users().GetUserByIdentifier(e.ctx(), a.User)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, fmt.Errorf("no account matches %q", a.User)
	}
	return user, err
}

// apply looks the user up, runs fn and prints the result.
func (a userArgs) apply(fn func(e *env, user domain.User) (domain.User, error)) error {
	return withEnv(func(e *env) error {
		user, err := a.lookup(e)
		if err != nil {
			return err
		}
		if user, err = fn(e, user); err != nil {
			return err
		}
		printUser(user)
		return nil
	})
}

type promoteCmd struct {
	Args userArgs `positional-args:"true"`
}

func (c *promoteCmd) Execute(_ []string) error {
	return c.Args.apply(func(e *env, u domain.User) (domain.User, error) {
		return e.admin.SetAdmin(e.ctx(), u.ID, true)
	})
}

type demoteCmd struct {
	Args userArgs `positional-args:"true"`
}

func (c *demoteCmd) Execute(_ []string) error {
	return c.Args.apply(func(e *env, u domain.User) (domain.User, error) {
		return e.admin.SetAdmin(e.ctx(), u.ID, false)
	})
}

type activateCmd struct {
	Args userArgs `positional-args:"true"`
}

func (c *activateCmd) Execute(_ []string) error {
	return c.Args.apply(func(e *env, u domain.User) (domain.User, error) {
		return e.admin.SetActive(e.ctx(), u.ID, true)
	})
}

type deactivateCmd struct {
	Args userArgs `positional-args:"true"`
}

func (c *deactivateCmd) Execute(_ []string) error {
	return c.Args.apply(func(e *env, u domain.User) (domain.User, error) {
		return e.admin.SetActive(e.ctx(), u.ID, false)
	})
}

// setPasswordCmd replaces an account's password and signs it out
// everywhere. A password is generated and printed when none is given.
type setPasswordCmd struct {
	KeepSessions bool `long:"keep-sessions" description:"Leave existing sign-ins alone"`

	Args struct {
		User     string `positional-arg-name:"username-or-email" required:"true"`
		Password string `positional-arg-name:"password"`
	} `positional-args:"true"`
}

func (c *setPasswordCmd) Execute(_ []string) error {
	return withEnv(func(e *env) error {
		user, err := userArgs{User: c.Args.User}.lookup(e)
		if err != nil {
			return err
		}

		password := c.Args.Password
		generated := password == ""
		if generated {
			if password, err = cryptox.GeneratePassword(); err != nil {
				return err
			}
		}

		if err := e.users.SetPassword(e.ctx(), user.ID, password); err != nil {
			return err
		}
		if !c.KeepSessions {
			if err := e.store.Sessions().DeleteUserSessions(e.ctx(), user.ID, ""); err != nil {
				return fmt.Errorf("end sessions: %w", err)
			}
		}

		fmt.Fprintf(stdout, "password updated for %s\n", user.Username)
		if generated {
			fmt.Fprintf(stdout, "password: %s\n", password)
		}
		return nil
	})
}

// resetLinkCmd issues a reset token and prints the link. Any earlier link
// for the account stops working.
type resetLinkCmd struct {
	Args userArgs `positional-args:"true"`
}

func (c *resetLinkCmd) Execute(_ []string) error {
	return withEnv(func(e *env) error {
		user, err := c.Args.lookup(e)
		if err != nil {
			return err
		}
		token, err := e.resets.IssueToken(e.ctx(), user)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, notify.ResetURL(e.cfg.BaseURL, token))
		return nil
	})
}

type sweepCmd struct{}

func (c *sweepCmd) Execute(_ []string) error {
	return withEnv(func(e *env) error {
		hk := service.NewHousekeepingService(e.store, e.logger, 0)
		res := hk.Sweep(e.ctx())
		fmt.Fprintf(stdout, "sessions deleted: %d\npassword resets deleted: %d\n", res.Sessions, res.PasswordResets)
		return nil
	})
}

func printUser(u domain.User) {
	fmt.Fprintf(stdout, "id:       %s\n", u.ID)
	fmt.Fprintf(stdout, "username: %s\n", u.Username)
	fmt.Fprintf(stdout, "email:    %s\n", u.Email)
	fmt.Fprintf(stdout, "active:   %t\n", u.IsActive)
	fmt.Fprintf(stdout, "admin:    %t\n", u.IsAdmin)
}
