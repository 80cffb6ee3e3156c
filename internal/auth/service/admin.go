package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
)

const (
	UsersPerPage      = 10
	AdminUsersPerPage = 20
	recentUsers       = 5

	// MaxPage bounds page numbers so the row offset cannot overflow.
	MaxPage = 10000
)

// AdminService backs the admin dashboard and account management.
type AdminService struct {
	Store store.Store
	Clock Clock
}

type Dashboard struct {
	Stats       domain.UserStats
	RecentUsers []domain.User
}

func (s *AdminService) Dashboard(ctx context.Context) (Dashboard, error) {
	stats, err := s.Store.Users().Stats(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("user stats: %w", err)
	}
	recent, err := s.Store.Users().ListUsers(ctx, 0, recentUsers)
	if err != nil {
		return Dashboard{}, fmt.Errorf("recent users: %w", err)
	}
	return Dashboard{Stats: stats, RecentUsers: recent}, nil
}

// ListUsers returns page (1-based) of users, newest first. Pages past the
// end come back empty rather than failing.
func (s *AdminService) ListUsers(ctx context.Context, page, perPage int) (domain.UserPage, error) {
	page = min(max(page, 1), MaxPage)
	if perPage < 1 {
		perPage = UsersPerPage
	}

	stats, err := s.Store.Users().Stats(ctx)
	if err != nil {
		return domain.UserPage{}, fmt.Errorf("user stats: %w", err)
	}
	users, err := s.Store.Users().ListUsers(ctx, (page-1)*perPage, perPage)
	if err != nil {
		return domain.UserPage{}, fmt.Errorf("list users: %w", err)
	}

	return domain.UserPage{Users: users, Page: page, PerPage: perPage, Total: stats.Total}, nil
}

// ToggleActive flips target's IsActive. Deactivation signs the user out
// everywhere. Admins cannot deactivate themselves.
func (s *AdminService) ToggleActive(ctx context.Context, actorID, targetID string) (domain.User, error) {
	var active bool
	err := s.toggle(ctx, actorID, targetID, func(tx store.Tx, target domain.User) error {
		active = !target.IsActive
		if err := tx.Users().SetActive(ctx, target.ID, active, s.Clock.now()); err != nil {
			return err
		}
		if active {
			return nil
		}
		return tx.Sessions().DeleteUserSessions(ctx, target.ID, "")
	})
	if err != nil {
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("user active status changed",
		slog.String("user_id", targetID),
		slog.String("actor_id", actorID),
		slog.Bool("is_active", active),
	)
	return s.getUser(ctx, targetID)
}

// ToggleAdmin flips target's IsAdmin. Admins cannot change their own status.
func (s *AdminService) ToggleAdmin(ctx context.Context, actorID, targetID string) (domain.User, error) {
	var admin bool
	err := s.toggle(ctx, actorID, targetID, func(tx store.Tx, target domain.User) error {
		admin = !target.IsAdmin
		return tx.Users().SetAdmin(ctx, target.ID, admin, s.Clock.now())
	})
	if err != nil {
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("user admin status changed",
		slog.String("user_id", targetID),
		slog.String("actor_id", actorID),
		slog.Bool("is_admin", admin),
	)
	return s.getUser(ctx, targetID)
}

// toggle reads actor and target and applies flip in one transaction, so
// concurrent toggles never act on a stale read.
func (s *AdminService) toggle(ctx context.Context, actorID, targetID string, flip func(tx store.Tx, target domain.User) error) error {
	if actorID == targetID {
		return ErrCannotModifySelf
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := checkActor(ctx, tx.Users(), actorID); err != nil {
			return err
		}
		target, err := tx.Users().GetUserByID(ctx, targetID)
		if err != nil {
			return err
		}
		return flip(tx, target)
	})
	switch {
	case err == nil, errors.Is(err, ErrPermissionDenied):
		return err
	case errors.Is(err, store.ErrNotFound):
		return ErrUserNotFound
	default:
		return fmt.Errorf("toggle user: %w", err)
	}
}

// checkActor requires the acting account to still be an active admin.
func checkActor(ctx context.Context, users store.Users, actorID string) error {
	actor, err := users.GetUserByID(ctx, actorID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrPermissionDenied
	}
	if err != nil {
		return err
	}
	if !actor.IsActive || !actor.IsAdmin {
		return ErrPermissionDenied
	}
	return nil
}

func (s *AdminService) SetActive(ctx context.Context, userID string, active bool) (domain.User, error) {
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().SetActive(ctx, userID, active, s.Clock.now()); err != nil {
			return err
		}
		if active {
			return nil
		}
		return tx.Sessions().DeleteUserSessions(ctx, userID, "")
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("set active: %w", err)
	}

	slogx.FromContext(ctx).Info("user active status changed",
		slog.String("user_id", userID),
		slog.Bool("is_active", active),
	)
	return s.getUser(ctx, userID)
}

func (s *AdminService) SetAdmin(ctx context.Context, userID string, admin bool) (domain.User, error) {
	if err := s.Store.Users().SetAdmin(ctx, userID, admin, s.Clock.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("set admin: %w", err)
	}

	slogx.FromContext(ctx).Info("user admin status changed",
		slog.String("user_id", userID),
		slog.Bool("is_admin", admin),
	)
	return s.getUser(ctx, userID)
}

func (s *AdminService) getUser(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}
