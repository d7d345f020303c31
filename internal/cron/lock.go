package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/msa-portal/portal-backend/pkg/instance"
)

// defaultLockTTL stays below the default hourly cadence.
const defaultLockTTL = 55 * time.Minute

// Lock coordinates exclusive cron runs across worker replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Extender is implemented by locks whose lease can be pushed forward while
// a long cycle is still running.
type Extender interface {
	Extend(ctx context.Context) error
}

// ErrLockLost reports that the lease expired and another replica now owns it.
var ErrLockLost = errors.New("cron lock lost")

type ownedKeyStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
	ExpireIfValue(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// RedisLock is a lease held in a single Redis key. The value names the
// owning instance so a stale holder can be identified from redis-cli.
type RedisLock struct {
	client ownedKeyStore
	key    string
	ttl    time.Duration

	mu    sync.Mutex
	owner string
}

func NewRedisLock(client ownedKeyStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	owner := instance.GetID() + ":" + uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Extend renews the lease for another TTL. It returns ErrLockLost when the
// key no longer carries this holder's value.
func (l *RedisLock) Extend(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner == "" {
		return ErrLockLost
	}
	ok, err := l.client.ExpireIfValue(ctx, l.key, l.owner, l.ttl)
	if err != nil {
		return fmt.Errorf("extend %s: %w", l.key, err)
	}
	if !ok {
		l.owner = ""
		return ErrLockLost
	}
	return nil
}

// Release drops the lease if this holder still owns it. Releasing an
// expired or foreign lease is a no-op.
func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner == "" {
		return nil
	}
	owner := l.owner
	l.owner = ""
	if _, err := l.client.DelIfValue(ctx, l.key, owner); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
