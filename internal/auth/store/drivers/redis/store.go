// Package redis keeps sessions in Redis while every other repository stays
// on the relational store it wraps.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	goredis "github.com/redis/go-redis/v9"
)

// NewClient initializes a redis client.
func NewClient(addr, password string, db int) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Store overlays a Redis session repository on top of base.
type Store struct {
	base   store.Store
	rdb    *goredis.Client
	prefix string
}

// NewStore wraps base. Keys are namespaced with prefix (e.g. "gatehouse").
func NewStore(base store.Store, rdb *goredis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "gatehouse"
	}
	return &Store{base: base, rdb: rdb, prefix: prefix}
}

func (s *Store) Users() store.Users                   { return s.base.Users() }
func (s *Store) PasswordResets() store.PasswordResets { return s.base.PasswordResets() }
func (s *Store) Sessions() store.Sessions             { return &sessionsRepo{rdb: s.rdb, prefix: s.prefix} }

func (s *Store) ApplyMigrations() error { return s.base.ApplyMigrations() }

// Tx opens a transaction on the relational store. Session writes made through
// the returned Tx go straight to Redis and are not rolled back.
func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.base.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &txStore{inner: tx, sessions: s.Sessions()}, nil
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.base.WithTx(ctx, func(tx store.Tx) error {
		return fn(&txStore{inner: tx, sessions: s.Sessions()})
	})
}

func (s *Store) Close() error {
	return errors.Join(s.rdb.Close(), s.base.Close())
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return s.base.Ping(ctx)
}

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*txStore)(nil)
)

type txStore struct {
	inner    store.Tx
	sessions store.Sessions
}

func (t *txStore) Users() store.Users                   { return t.inner.Users() }
func (t *txStore) Sessions() store.Sessions             { return t.sessions }
func (t *txStore) PasswordResets() store.PasswordResets { return t.inner.PasswordResets() }

func (t *txStore) ApplyMigrations() error { return t.inner.ApplyMigrations() }

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) { return t.inner.Tx(ctx) }

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return t.inner.WithTx(ctx, fn)
}

func (t *txStore) Commit() error                  { return t.inner.Commit() }
func (t *txStore) Rollback() error                { return t.inner.Rollback() }
func (t *txStore) Close() error                   { return t.inner.Close() }
func (t *txStore) Ping(ctx context.Context) error { return t.inner.Ping(ctx) }
