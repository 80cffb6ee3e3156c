package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, and the
// redis session overlay) implement this. It exposes sub-repositories to keep
// concerns tidy and testable, and so a Tx cannot open another Tx.
type Store interface {
	Users() Users
	Sessions() Sessions
	PasswordResets() PasswordResets

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the backing services are still reachable.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// GetUserByEmail matches the lower-cased address.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// GetUserByIdentifier matches either the username or the email.
	GetUserByIdentifier(ctx context.Context, identifier string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by the service via ULID).
	// Returns ErrAlreadyExists when the username or email is taken.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateProfile writes the editable profile columns and bumps updated_at.
	// Returns ErrAlreadyExists when the new username or email is taken.
	UpdateProfile(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password_hash (argon2) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string, at time.Time) error

	// RecordLogin increments login_count and sets last_login.
	RecordLogin(ctx context.Context, userID string, at time.Time) error

	SetActive(ctx context.Context, userID string, active bool, at time.Time) error
	SetAdmin(ctx context.Context, userID string, admin bool, at time.Time) error

	// ListUsers returns users newest first.
	ListUsers(ctx context.Context, offset, limit int) ([]domain.User, error)

	Stats(ctx context.Context) (domain.UserStats, error)

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}

type Sessions interface {
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSessionByTokenHash returns the session regardless of expiry; callers
	// decide liveness.
	GetSessionByTokenHash(ctx context.Context, hash string) (domain.Session, error)

	// DeleteSessionByTokenHash is a no-op when nothing matches.
	DeleteSessionByTokenHash(ctx context.Context, hash string) error

	// DeleteUserSessions removes every session of userID except keepID
	// (empty keepID removes all).
	DeleteUserSessions(ctx context.Context, userID, keepID string) error

	// DeleteExpiredSessions is housekeeping. Returns the number removed.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

type PasswordResets interface {
	CreatePasswordReset(ctx context.Context, p domain.PasswordReset) error
	GetPasswordResetByTokenHash(ctx context.Context, hash string) (domain.PasswordReset, error)

	// SupersedeUserResets marks every unused token of userID as used.
	SupersedeUserResets(ctx context.Context, userID string) error

	// MarkPasswordResetUsed flips used=1 only while the token is unused and
	// unexpired at now. Returns ErrNotFound when no row changed.
	MarkPasswordResetUsed(ctx context.Context, id string, now time.Time) error

	// DeleteDeadPasswordResets removes used or expired tokens. Returns the
	// number removed.
	DeleteDeadPasswordResets(ctx context.Context, now time.Time) (int64, error)
}
