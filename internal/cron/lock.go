package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/locallink/locallink-backend/pkg/env"
)

const defaultLockTTL = 5 * time.Minute

// Lock keeps one cron-worker instance running maintenance at a time. Extend
// reports false once the lease was lost to another instance.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Extend(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ExpireIfEquals(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	DeleteIfEquals(ctx context.Context, key, value string) (bool, error)
}

// RedisLock is a leased lock keyed by a per-process owner token. A crashed
// holder blocks the next cycle for at most one TTL.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
	owner string
	held  bool
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{
		store: store,
		key:   key,
		ttl:   ttl,
		owner: env.InstanceID() + ":" + uuid.NewString(),
	}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.store.SetNX(ctx, l.key, l.owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	l.held = ok
	return ok, nil
}

// Extend renews the lease for another TTL.
func (l *RedisLock) Extend(ctx context.Context) (bool, error) {
	if !l.held {
		return false, nil
	}
	ok, err := l.store.ExpireIfEquals(ctx, l.key, l.owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("extend %s: %w", l.key, err)
	}
	l.held = ok
	return ok, nil
}

// Release frees the lock if this process still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	l.held = false
	if _, err := l.store.DeleteIfEquals(ctx, l.key, l.owner); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
