package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so the repos run unchanged
// inside and outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db  *sql.DB
	dsn string
}

// NewStore opens the database at dsn. Use ":memory:" for an ephemeral store.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// One connection: writes serialise and ":memory:" stays a single database.
	// Never call the root Store from inside WithTx, it will block on the pool.
	db.SetMaxOpenConns(1)

	return FromDB(db, dsn)
}

// FromDB wraps an already opened handle. Tests use it with sqlmock.
func FromDB(db *sql.DB, dsn string) (*Store, error) {
	for _, pragma := range []string{
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA busy_timeout = 5000;`,
	} {
		if _, err := db.ExecContext(context.Background(), pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	return &Store{db: db, dsn: dsn}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tx starts a read/write transaction and returns a Tx-scoped Store.
func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return newTx(tx), nil
}

// WithTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}

	// Ensure rollback is called if we panic or return early with error
	defer func() {
		_ = tx.Rollback() // safe to call even after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) Users() store.Users                   { return &usersRepo{db: s.db} }
func (s *Store) Sessions() store.Sessions             { return &sessionsRepo{db: s.db} }
func (s *Store) PasswordResets() store.PasswordResets { return &passwordResetsRepo{db: s.db} }

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// mapConstraint turns UNIQUE and PRIMARY KEY violations into ErrAlreadyExists.
func mapConstraint(err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %s", store.ErrAlreadyExists, sqliteErr.Error())
		}
	}
	return err
}

func unix(t time.Time) int64 { return t.UTC().Unix() }

func fromUnix(sec int64) time.Time { return time.Unix(sec, 0).UTC() }

func mapNullUnixPtr(n sql.NullInt64) *time.Time {
	if n.Valid {
		t := fromUnix(n.Int64)
		return &t
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// scanner lets one mapper serve both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const userColumns = `id, username, email, password_hash, first_name, last_name, bio,
	avatar_url, is_active, is_admin, created_at, updated_at, last_login, login_count`

func scanUser(row scanner) (domain.User, error) {
	var (
		u                    domain.User
		createdAt, updatedAt int64
		lastLogin            sql.NullInt64
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Bio,
		&u.AvatarURL, &u.IsActive, &u.IsAdmin, &createdAt, &updatedAt, &lastLogin, &u.LoginCount,
	)
	if err != nil {
		return domain.User{}, err
	}
	u.CreatedAt = fromUnix(createdAt)
	u.UpdatedAt = fromUnix(updatedAt)
	u.LastLogin = mapNullUnixPtr(lastLogin)
	return u, nil
}

const sessionColumns = `id, user_id, token_hash, remember, expires_at, created_at, user_agent, remote_addr`

func scanSession(row scanner) (domain.Session, error) {
	var (
		s                    domain.Session
		expiresAt, createdAt int64
	)
	err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.Remember, &expiresAt, &createdAt, &s.UserAgent, &s.RemoteAddr)
	if err != nil {
		return domain.Session{}, err
	}
	s.ExpiresAt = fromUnix(expiresAt)
	s.CreatedAt = fromUnix(createdAt)
	return s, nil
}

const passwordResetColumns = `id, user_id, token_hash, expires_at, used, created_at`

func scanPasswordReset(row scanner) (domain.PasswordReset, error) {
	var (
		p                    domain.PasswordReset
		expiresAt, createdAt int64
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.TokenHash, &expiresAt, &p.Used, &createdAt); err != nil {
		return domain.PasswordReset{}, err
	}
	p.ExpiresAt = fromUnix(expiresAt)
	p.CreatedAt = fromUnix(createdAt)
	return p, nil
}
