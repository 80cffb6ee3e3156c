package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
)

type passwordResetsRepo struct {
	db dbtx
}

func (r *passwordResetsRepo) CreatePasswordReset(ctx context.Context, p domain.PasswordReset) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO password_resets (`+passwordResetColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.TokenHash, unix(p.ExpiresAt), boolInt(p.Used), unix(p.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *passwordResetsRepo) GetPasswordResetByTokenHash(
	ctx context.Context,
	hash string,
) (domain.PasswordReset, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+passwordResetColumns+` FROM password_resets WHERE token_hash = ?`, hash)
	p, err := scanPasswordReset(row)
	if err != nil {
		return domain.PasswordReset{}, mapNotFound(err)
	}
	return p, nil
}

func (r *passwordResetsRepo) SupersedeUserResets(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE password_resets SET used = 1 WHERE user_id = ? AND used = 0`, userID)
	return err
}

func (r *passwordResetsRepo) MarkPasswordResetUsed(ctx context.Context, id string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE password_resets SET used = 1 WHERE id = ? AND used = 0 AND expires_at > ?`,
		id, unix(now),
	)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *passwordResetsRepo) DeleteDeadPasswordResets(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM password_resets WHERE used = 1 OR expires_at <= ?`, unix(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// requireOneRow maps an UPDATE that touched nothing to store.ErrNotFound.
func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
