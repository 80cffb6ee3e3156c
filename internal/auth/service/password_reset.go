package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/notify"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/idx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

const DefaultResetTTL = time.Hour

// PasswordResetService issues and redeems single-use reset tokens.
// A token moves from issued to exactly one of consumed, expired or
// superseded (a newer token was issued for the same user).
type PasswordResetService struct {
	Store    store.Store
	Notifier notify.Notifier
	Clock    Clock
	ResetTTL time.Duration
}

func (s *PasswordResetService) resetTTL() time.Duration {
	if s.ResetTTL > 0 {
		return s.ResetTTL
	}
	return DefaultResetTTL
}

// RequestReset issues a token for the account matching identifier (email or
// username) and hands it to the notifier. The result is nil whether or not an
// account matched, so callers cannot use it to discover accounts.
func (s *PasswordResetService) RequestReset(ctx context.Context, identifier string) error {
	log := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByIdentifier(ctx, identifier)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error("failed to look up reset identifier", slog.Any("error", err))
		}
		log.Info("password reset requested for unknown identifier")
		return nil
	}
	if !user.IsActive {
		log.Info("password reset refused for deactivated account", slog.String("user_id", user.ID))
		return nil
	}

	token, err := s.IssueToken(ctx, user)
	if err != nil {
		return nil
	}

	if s.Notifier == nil {
		log.Warn("no notifier configured, reset token dropped", slog.String("user_id", user.ID))
		return nil
	}
	if err := s.Notifier.NotifyPasswordReset(ctx, user, token); err != nil {
		log.Error("failed to deliver password reset",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	}
	return nil
}

// IssueToken supersedes any live token of user and stores a new one,
// returning the raw token. gatehousectl uses it directly.
func (s *PasswordResetService) IssueToken(ctx context.Context, user domain.User) (string, error) {
	log := slogx.FromContext(ctx)

	token, fingerprint, err := cryptox.NewOpaqueToken()
	if err != nil {
		log.Error("failed to generate reset token", slog.Any("error", err))
		return "", fmt.Errorf("generate reset token: %w", err)
	}

	now := s.Clock.now()
	reset := domain.PasswordReset{
		ID:        idx.NewAt(now).String(),
		UserID:    user.ID,
		TokenHash: fingerprint,
		ExpiresAt: now.Add(s.resetTTL()),
		CreatedAt: now,
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.PasswordResets().SupersedeUserResets(ctx, user.ID); err != nil {
			return err
		}
		return tx.PasswordResets().CreatePasswordReset(ctx, reset)
	})
	if err != nil {
		log.Error("failed to store reset token", slog.String("user_id", user.ID), slog.Any("error", err))
		return "", fmt.Errorf("issue reset token: %w", err)
	}

	log.Info("password reset issued",
		slog.String("user_id", user.ID),
		slog.String("reset_id", reset.ID),
		slog.Time("expires_at", reset.ExpiresAt),
	)
	return token, nil
}

// ResolveToken returns the user a live token belongs to. Tokens of
// deactivated accounts are dead.
func (s *PasswordResetService) ResolveToken(ctx context.Context, token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, ErrTokenInvalid
	}

	reset, err := s.Store.PasswordResets().GetPasswordResetByTokenHash(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slogx.FromContext(ctx).Error("failed to load reset token", slog.Any("error", err))
		}
		return domain.User{}, ErrTokenInvalid
	}
	if !reset.Live(s.Clock.now()) {
		return domain.User{}, ErrTokenInvalid
	}

	user, err := s.Store.Users().GetUserByID(ctx, reset.UserID)
	if err != nil || !user.IsActive {
		return domain.User{}, ErrTokenInvalid
	}
	return user, nil
}

// ConsumeToken redeems token and sets newPassword. Claiming the token,
// storing the hash and revoking the user's sessions commit together; under
// concurrency exactly one caller wins.
func (s *PasswordResetService) ConsumeToken(ctx context.Context, token, newPassword string) error {
	log := slogx.FromContext(ctx)

	if token == "" {
		return ErrTokenInvalid
	}
	if newPassword == "" {
		return ErrInvalidInput
	}

	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	var userID string
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		now := s.Clock.now()

		reset, err := tx.PasswordResets().GetPasswordResetByTokenHash(ctx, cryptox.FingerprintToken(token))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrTokenInvalid
			}
			return err
		}

		user, err := tx.Users().GetUserByID(ctx, reset.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrTokenInvalid
			}
			return err
		}
		if !user.IsActive {
			return ErrTokenInvalid
		}

		if err := tx.PasswordResets().MarkPasswordResetUsed(ctx, reset.ID, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrTokenInvalid
			}
			return err
		}

		if err := tx.Users().UpdatePasswordHash(ctx, reset.UserID, hash, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrTokenInvalid
			}
			return err
		}

		userID = reset.UserID
		return tx.Sessions().DeleteUserSessions(ctx, reset.UserID, "")
	})
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			log.Info("password reset rejected, token dead")
			return ErrTokenInvalid
		}
		log.Error("failed to consume reset token", slog.Any("error", err))
		return fmt.Errorf("consume reset token: %w", err)
	}

	log.Info("password reset completed", slog.String("user_id", userID))
	return nil
}
