package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/idx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

// UserService is the credential store: registration, sign-in checks and
// profile/password maintenance.
type UserService struct {
	Store store.Store
	Clock Clock
}

type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type ProfileInput struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Bio       string
	AvatarURL string
}

// Register creates an active, non-admin account. Uniqueness is decided by the
// database, so two racing registrations for one name cannot both succeed.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	return s.create(ctx, in, false)
}

func (s *UserService) create(ctx context.Context, in RegisterInput, admin bool) (domain.User, error) {
	user, err := s.newUser(ctx, in, admin)
	if err != nil {
		return domain.User{}, err
	}
	if err := s.insert(ctx, s.Store.Users(), user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// newUser validates in and hashes the password. Nothing is written.
func (s *UserService) newUser(ctx context.Context, in RegisterInput, admin bool) (domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = domain.NormalizeEmail(in.Email)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return domain.User{}, ErrInvalidInput
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		slogx.FromContext(ctx).Error("failed to hash password", slog.Any("error", err))
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.Clock.now()
	return domain.User{
		ID:           idx.NewAt(now).String(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		IsActive:     true,
		IsAdmin:      admin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *UserService) insert(ctx context.Context, users store.Users, user domain.User) error {
	log := slogx.FromContext(ctx)

	if err := users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			log.Info("registration rejected, identity taken", slog.String("username", user.Username))
			return ErrDuplicateIdentity
		}
		log.Error("failed to create user", slog.Any("error", err))
		return fmt.Errorf("create user: %w", err)
	}

	log.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
		slog.Bool("is_admin", user.IsAdmin),
	)
	return nil
}

// Authenticate checks identifier (username or email) and password. Unknown
// identifiers and wrong passwords cost the same hash work and return the same
// error. A correct password on a deactivated account yields ErrAccountDisabled.
func (s *UserService) Authenticate(ctx context.Context, identifier, password string) (domain.User, error) {
	log := slogx.FromContext(ctx)

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		cryptox.VerifyDummy(password)
		return domain.User{}, ErrInvalidCredentials
	}

	user, err := s.Store.Users().GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			cryptox.VerifyDummy(password)
			log.Info("login failed, unknown identifier")
			return domain.User{}, ErrInvalidCredentials
		}
		log.Error("failed to look up user", slog.Any("error", err))
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			log.Error("stored password hash unreadable",
				slog.String("user_id", user.ID),
				slog.Any("error", err),
			)
		}
		log.Info("login failed, bad password", slog.String("user_id", user.ID))
		return domain.User{}, ErrInvalidCredentials
	}

	if !user.IsActive {
		log.Info("login refused, account deactivated", slog.String("user_id", user.ID))
		return domain.User{}, ErrAccountDisabled
	}

	now := s.Clock.now()
	if err := s.Store.Users().RecordLogin(ctx, user.ID, now); err != nil {
		log.Error("failed to record login", slog.String("user_id", user.ID), slog.Any("error", err))
		return domain.User{}, fmt.Errorf("record login: %w", err)
	}
	user.LoginCount++
	user.LastLogin = &now

	if cryptox.NeedsRehash(user.PasswordHash) {
		if hash, err := cryptox.HashPassword(password); err == nil {
			if err := s.Store.Users().UpdatePasswordHash(ctx, user.ID, hash, now); err == nil {
				user.PasswordHash = hash
				log.Debug("password hash upgraded", slog.String("user_id", user.ID))
			}
		}
	}

	return user, nil
}

// CheckPassword reports whether password matches user's stored hash.
func (s *UserService) CheckPassword(user domain.User, password string) bool {
	return cryptox.VerifyPassword(password, user.PasswordHash) == nil
}

// SetPassword replaces the user's hash without touching sessions.
func (s *UserService) SetPassword(ctx context.Context, userID, password string) error {
	if password == "" {
		return ErrInvalidInput
	}
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.Store.Users().UpdatePasswordHash(ctx, userID, hash, s.Clock.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update password: %w", err)
	}
	slogx.FromContext(ctx).Info("password set", slog.String("user_id", userID))
	return nil
}

// ChangePassword verifies current, stores next and signs the user out
// everywhere except keepSessionID.
func (s *UserService) ChangePassword(ctx context.Context, userID, current, next, keepSessionID string) error {
	log := slogx.FromContext(ctx)

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !s.CheckPassword(user, current) {
		log.Info("password change rejected, current password wrong", slog.String("user_id", userID))
		return ErrInvalidCredentials
	}
	if next == "" {
		return ErrInvalidInput
	}

	hash, err := cryptox.HashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().UpdatePasswordHash(ctx, userID, hash, s.Clock.now()); err != nil {
			return err
		}
		return tx.Sessions().DeleteUserSessions(ctx, userID, keepSessionID)
	})
	if err != nil {
		log.Error("failed to change password", slog.String("user_id", userID), slog.Any("error", err))
		return fmt.Errorf("change password: %w", err)
	}

	log.Info("password changed", slog.String("user_id", userID))
	return nil
}

func (s *UserService) GetUser(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *UserService) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	user, err := s.Store.Users().GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// UpdateProfile rewrites the editable fields. A username or email already held
// by another account yields ErrDuplicateIdentity.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (domain.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}

	user.Username = strings.TrimSpace(in.Username)
	user.Email = domain.NormalizeEmail(in.Email)
	if user.Username == "" || user.Email == "" {
		return domain.User{}, ErrInvalidInput
	}
	user.FirstName = strings.TrimSpace(in.FirstName)
	user.LastName = strings.TrimSpace(in.LastName)
	user.Bio = strings.TrimSpace(in.Bio)
	user.AvatarURL = strings.TrimSpace(in.AvatarURL)
	user.UpdatedAt = s.Clock.now()

	if err := s.Store.Users().UpdateProfile(ctx, user); err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyExists):
			return domain.User{}, ErrDuplicateIdentity
		case errors.Is(err, store.ErrNotFound):
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("update profile: %w", err)
	}

	slogx.FromContext(ctx).Info("profile updated", slog.String("user_id", userID))
	return user, nil
}

// CountUsers backs the home page counter.
func (s *UserService) CountUsers(ctx context.Context) (int, error) {
	stats, err := s.Store.Users().Stats(ctx)
	if err != nil {
		return 0, err
	}
	return stats.Total, nil
}
