package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aussiebroadwan/gatehouse/internal/auth/domain"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	goredis "github.com/redis/go-redis/v9"
)

// Layout:
//
//	<prefix>:session:<token hash>  JSON session, TTL = expiry
//	<prefix>:user:<user id>        set of token hashes owned by the user
type sessionsRepo struct {
	rdb    *goredis.Client
	prefix string
}

type sessionRecord struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	TokenHash  string    `json:"token_hash"`
	Remember   bool      `json:"remember"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
	UserAgent  string    `json:"user_agent,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
}

func (r *sessionsRepo) sessionKey(hash string) string { return r.prefix + ":session:" + hash }
func (r *sessionsRepo) userKey(userID string) string  { return r.prefix + ":user:" + userID }

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	ttl := s.ExpiresAt.Sub(s.CreatedAt)
	if ttl <= 0 {
		return nil
	}

	b, err := json.Marshal(sessionRecord(s))
	if err != nil {
		return err
	}

	ok, err := r.rdb.SetNX(ctx, r.sessionKey(s.TokenHash), b, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrAlreadyExists
	}

	pipe := r.rdb.TxPipeline()
	pipe.SAdd(ctx, r.userKey(s.UserID), s.TokenHash)
	pipe.ExpireGT(ctx, r.userKey(s.UserID), ttl)
	pipe.ExpireNX(ctx, r.userKey(s.UserID), ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *sessionsRepo) GetSessionByTokenHash(ctx context.Context, hash string) (domain.Session, error) {
	b, err := r.rdb.Get(ctx, r.sessionKey(hash)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Session{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}

	var rec sessionRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return domain.Session{}, err
	}
	return domain.Session(rec), nil
}

func (r *sessionsRepo) DeleteSessionByTokenHash(ctx context.Context, hash string) error {
	s, err := r.GetSessionByTokenHash(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, r.sessionKey(hash))
	pipe.SRem(ctx, r.userKey(s.UserID), hash)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *sessionsRepo) DeleteUserSessions(ctx context.Context, userID, keepID string) error {
	hashes, err := r.rdb.SMembers(ctx, r.userKey(userID)).Result()
	if err != nil {
		return err
	}

	for _, hash := range hashes {
		s, err := r.GetSessionByTokenHash(ctx, hash)
		switch {
		case errors.Is(err, store.ErrNotFound):
			// expired on its own
		case err != nil:
			return err
		case keepID != "" && s.ID == keepID:
			continue
		}

		pipe := r.rdb.TxPipeline()
		pipe.Del(ctx, r.sessionKey(hash))
		pipe.SRem(ctx, r.userKey(userID), hash)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// DeleteExpiredSessions only prunes index entries; Redis expires the
// session keys themselves.
func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, _ time.Time) (int64, error) {
	var removed int64

	iter := r.rdb.Scan(ctx, 0, r.userKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		userKey := iter.Val()
		hashes, err := r.rdb.SMembers(ctx, userKey).Result()
		if err != nil {
			return removed, err
		}
		for _, hash := range hashes {
			n, err := r.rdb.Exists(ctx, r.sessionKey(hash)).Result()
			if err != nil {
				return removed, err
			}
			if n == 0 {
				if err := r.rdb.SRem(ctx, userKey, hash).Err(); err != nil {
					return removed, err
				}
				removed++
			}
		}
	}
	return removed, iter.Err()
}
