package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/idx"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

const (
	DefaultSessionTTL  = 2 * time.Hour
	DefaultRememberTTL = 24 * time.Hour
)

// SessionService issues and resolves opaque session tokens. Only the token
// fingerprint reaches the store.
type SessionService struct {
	Store       store.Store
	Clock       Clock
	SessionTTL  time.Duration // browser-session bound sessions
	RememberTTL time.Duration // "remember me" sessions
}

// SessionMeta is recorded alongside a session for auditing.
type SessionMeta struct {
	UserAgent  string
	RemoteAddr string
}

func (s *SessionService) ttl(remember bool) time.Duration {
	if remember {
		if s.RememberTTL > 0 {
			return s.RememberTTL
		}
		return DefaultRememberTTL
	}
	if s.SessionTTL > 0 {
		return s.SessionTTL
	}
	return DefaultSessionTTL
}

// CreateSession mints a session for user and returns the raw token. The
// token is never recoverable from the store afterwards.
func (s *SessionService) CreateSession(
	ctx context.Context,
	user domain.User,
	remember bool,
	meta SessionMeta,
) (string, domain.Session, error) {
	log := slogx.FromContext(ctx)

	if !user.IsActive {
		return "", domain.Session{}, ErrAccountDisabled
	}

	token, fingerprint, err := cryptox.NewOpaqueToken()
	if err != nil {
		log.Error("failed to generate session token", slog.Any("error", err))
		return "", domain.Session{}, fmt.Errorf("generate session token: %w", err)
	}

	now := s.Clock.now()
	sess := domain.Session{
		ID:         idx.NewAt(now).String(),
		UserID:     user.ID,
		TokenHash:  fingerprint,
		Remember:   remember,
		ExpiresAt:  now.Add(s.ttl(remember)),
		CreatedAt:  now,
		UserAgent:  truncate(meta.UserAgent, 255),
		RemoteAddr: meta.RemoteAddr,
	}
	if err := s.Store.Sessions().CreateSession(ctx, sess); err != nil {
		log.Error("failed to store session", slog.String("user_id", user.ID), slog.Any("error", err))
		return "", domain.Session{}, fmt.Errorf("create session: %w", err)
	}

	log.Info("session created",
		slog.String("user_id", user.ID),
		slog.String("session_id", sess.ID),
		slog.Bool("remember", remember),
	)
	return token, sess, nil
}

// ResolveSession maps a raw token to its live session and active user. Every
// failure, including store errors, surfaces as ErrNotAuthenticated.
func (s *SessionService) ResolveSession(ctx context.Context, token string) (domain.User, domain.Session, error) {
	log := slogx.FromContext(ctx)

	if token == "" {
		return domain.User{}, domain.Session{}, ErrNotAuthenticated
	}

	fingerprint := cryptox.FingerprintToken(token)
	sess, err := s.Store.Sessions().GetSessionByTokenHash(ctx, fingerprint)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error("failed to load session", slog.Any("error", err))
			return domain.User{}, domain.Session{}, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
		}
		return domain.User{}, domain.Session{}, ErrNotAuthenticated
	}

	if sess.Expired(s.Clock.now()) {
		if err := s.Store.Sessions().DeleteSessionByTokenHash(ctx, fingerprint); err != nil {
			log.Warn("failed to drop expired session", slog.Any("error", err))
		}
		return domain.User{}, domain.Session{}, ErrNotAuthenticated
	}

	user, err := s.Store.Users().GetUserByID(ctx, sess.UserID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error("failed to load session user", slog.Any("error", err))
		}
		return domain.User{}, domain.Session{}, ErrNotAuthenticated
	}
	if !user.IsActive {
		return domain.User{}, domain.Session{}, ErrNotAuthenticated
	}

	return user, sess, nil
}

// DestroySession invalidates token. Unknown or empty tokens are not an error.
func (s *SessionService) DestroySession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.Store.Sessions().DeleteSessionByTokenHash(ctx, cryptox.FingerprintToken(token)); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

// DestroyUserSessions signs userID out everywhere except keepSessionID.
func (s *SessionService) DestroyUserSessions(ctx context.Context, userID, keepSessionID string) error {
	if err := s.Store.Sessions().DeleteUserSessions(ctx, userID, keepSessionID); err != nil {
		return fmt.Errorf("destroy user sessions: %w", err)
	}
	slogx.FromContext(ctx).Info("user sessions destroyed",
		slog.String("user_id", userID),
		slog.String("kept_session_id", keepSessionID),
	)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
