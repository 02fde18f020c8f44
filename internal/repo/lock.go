package repo

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker serializes writers on one logical name. Acquire blocks until the
// lock is held or ctx is done, and returns the release function.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RedisLocker acquires per-key leases in Redis, retrying while held so two
// concurrent resolves on the same logical name commit one after the other.
type RedisLocker struct {
	rdb *redis.Client
}

// NewRedisLocker builds a Locker over a Redis client.
func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

// Acquire spins on SetNX until the lease is free.
func (r *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lock := NewRedisLock(r.rdb, "lock:"+key, ttl)
	for {
		err := lock.Lock(ctx)
		if err == nil {
			return func() {
				_ = lock.Unlock(context.Background())
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// LocalLocker is the single-process Locker used in development and tests.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

type localEntry struct {
	mu   sync.Mutex
	refs int
}

// NewLocalLocker builds an in-process Locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localEntry)}
}

// Acquire takes the per-key mutex. The ttl is ignored: an in-process lock
// cannot outlive its holder.
func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &localEntry{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	release := func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
	return release, nil
}
