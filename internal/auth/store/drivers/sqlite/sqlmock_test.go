package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec(`PRAGMA foreign_keys`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`PRAGMA busy_timeout`).WillReturnResult(sqlmock.NewResult(0, 0))

	s, err := FromDB(db, "mock")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return s, mock
}

func TestMock_GetUserNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \?`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.Users().GetUserByID(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_MarkUsedZeroRows(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE password_resets SET used = 1 WHERE id = \? AND used = 0 AND expires_at > \?`).
		WithArgs("reset-id", t0.Unix()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.PasswordResets().MarkPasswordResetUsed(context.Background(), "reset-id", t0)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_InfrastructureErrorPassesThrough(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("disk on fire")

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).WillReturnError(boom)

	_, err := s.Users().IsEmpty(context.Background())
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_PragmaFailureClosesHandle(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec(`PRAGMA foreign_keys`).WillReturnError(errors.New("nope"))
	mock.ExpectClose()

	_, err = FromDB(db, "mock")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
