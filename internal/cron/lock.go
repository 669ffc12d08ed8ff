package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned by Acquire while another worker owns the cycle.
var ErrLockHeld = errors.New("cron lock held by another worker")

const defaultLockTTL = time.Hour

// Locker hands out exclusive leases over a maintenance cycle.
type Locker interface {
	Acquire(ctx context.Context) (Lease, error)
}

// Lease is a held lock. Release is safe to call after the lease expired.
type Lease interface {
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock is a SETNX lock whose value is a per-lease token, so a worker
// whose lease expired cannot delete a lock that was since re-acquired.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("lock store required")
	case key == "":
		return nil, errors.New("lock key required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (Lease, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &redisLease{lock: l, token: token}, nil
}

type redisLease struct {
	lock  *RedisLock
	token string
}

func (r *redisLease) Release(ctx context.Context) error {
	current, err := r.lock.store.Get(ctx, r.lock.key)
	switch {
	case errors.Is(err, redis.Nil):
		return nil
	case err != nil:
		return fmt.Errorf("read %s: %w", r.lock.key, err)
	case current != r.token:
		return nil
	}
	if err := r.lock.store.Del(ctx, r.lock.key); err != nil {
		return fmt.Errorf("release %s: %w", r.lock.key, err)
	}
	return nil
}
