package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

var (
	ErrBootstrapAlready      = errors.New("system already bootstrapped")
	ErrBootstrapUnauthorized = errors.New("unauthorized bootstrap attempt")
)

// BootstrapService creates the first administrator, either from
// configuration at start-up or through the token-guarded endpoint.
type BootstrapService struct {
	Users *UserService
	Token string // pre-shared bootstrap token; empty disables the endpoint
}

type AdminAccount struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// EnsureAdmin creates acct as an administrator when no users exist yet.
// It reports whether an account was created.
func (s *BootstrapService) EnsureAdmin(ctx context.Context, acct AdminAccount) (bool, error) {
	if acct.Username == "" || acct.Password == "" {
		return false, nil
	}
	user, err := s.createFirst(ctx, acct)
	if errors.Is(err, ErrBootstrapAlready) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	slogx.FromContext(ctx).Info("admin account seeded from configuration",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return true, nil
}

// Bootstrap creates the first administrator when token matches the
// configured one and the user table is still empty.
func (s *BootstrapService) Bootstrap(ctx context.Context, token string, acct AdminAccount) (domain.User, error) {
	l := slogx.FromContext(ctx)

	if s.Token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) != 1 {
		l.Warn("unauthorized bootstrap attempt")
		return domain.User{}, ErrBootstrapUnauthorized
	}

	user, err := s.createFirst(ctx, acct)
	if errors.Is(err, ErrBootstrapAlready) {
		l.Warn("attempted bootstrap on already-bootstrapped system")
		return domain.User{}, err
	}
	if err != nil {
		return domain.User{}, err
	}

	l.Info("successfully bootstrapped system", slog.String("admin_user_id", user.ID))
	return user, nil
}

// createFirst inserts acct as an administrator only while the user table is
// empty. The check and the insert share one transaction.
func (s *BootstrapService) createFirst(ctx context.Context, acct AdminAccount) (domain.User, error) {
	user, err := s.Users.newUser(ctx, registerInput(acct), true)
	if err != nil {
		return domain.User{}, err
	}

	err = s.Users.Store.WithTx(ctx, func(tx store.Tx) error {
		empty, err := tx.Users().IsEmpty(ctx)
		if err != nil {
			return err
		}
		if !empty {
			return ErrBootstrapAlready
		}
		return s.Users.insert(ctx, tx.Users(), user)
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func registerInput(acct AdminAccount) RegisterInput {
	return RegisterInput{
		Username:  acct.Username,
		Email:     acct.Email,
		Password:  acct.Password,
		FirstName: acct.FirstName,
		LastName:  acct.LastName,
	}
}
