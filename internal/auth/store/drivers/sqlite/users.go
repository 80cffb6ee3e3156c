package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
)

type usersRepo struct {
	db dbtx
}

func (r *usersRepo) getOne(ctx context.Context, where string, arg any) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.getOne(ctx, `id = ?`, id)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.getOne(ctx, `username = ?`, username)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getOne(ctx, `email = ?`, domain.NormalizeEmail(email))
}

func (r *usersRepo) GetUserByIdentifier(ctx context.Context, identifier string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? OR email = ?
		 ORDER BY CASE WHEN username = ? THEN 0 ELSE 1 END LIMIT 1`,
		identifier, domain.NormalizeEmail(identifier), identifier,
	)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, 0)`,
		u.ID, u.Username, domain.NormalizeEmail(u.Email), u.PasswordHash, u.FirstName, u.LastName, u.Bio,
		u.AvatarURL, boolInt(u.IsActive), boolInt(u.IsAdmin), unix(u.CreatedAt), unix(u.UpdatedAt),
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdateProfile(ctx context.Context, u domain.User) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET username = ?, email = ?, first_name = ?, last_name = ?, bio = ?,
		 avatar_url = ?, updated_at = ? WHERE id = ?`,
		u.Username, domain.NormalizeEmail(u.Email), u.FirstName, u.LastName, u.Bio,
		u.AvatarURL, unix(u.UpdatedAt), u.ID,
	)
	if err != nil {
		return mapConstraint(err)
	}
	return requireOneRow(res)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, unix(at), userID,
	)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *usersRepo) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET login_count = login_count + 1, last_login = ? WHERE id = ?`,
		unix(at), userID,
	)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *usersRepo) SetActive(ctx context.Context, userID string, active bool, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolInt(active), unix(at), userID,
	)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *usersRepo) SetAdmin(ctx context.Context, userID string, admin bool, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_admin = ?, updated_at = ? WHERE id = ?`,
		boolInt(admin), unix(at), userID,
	)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *usersRepo) ListUsers(ctx context.Context, offset, limit int) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *usersRepo) Stats(ctx context.Context) (domain.UserStats, error) {
	var s domain.UserStats
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(is_active), 0), COALESCE(SUM(is_admin), 0) FROM users`,
	).Scan(&s.Total, &s.Active, &s.Admins)
	return s, err
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}
