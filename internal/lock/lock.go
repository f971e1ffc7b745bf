// Package lock provides named, expiring mutual exclusion for scan runs.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained is returned when the key is held by someone else.
var ErrNotObtained = errors.New("lock not obtained")

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker obtains locks without waiting.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// RedisLocker shares locks between processes through Redis.
type RedisLocker struct {
	client *redislock.Client
	prefix string
}

// NewRedisLocker wraps a go-redis client.
func NewRedisLocker(rdb *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb), prefix: prefix}
}

// Obtain tries the key once.
func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lk, err := l.client.Obtain(ctx, l.prefix+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}
	return lk, nil
}

// LocalLocker is an in-process Locker for single-instance deployments
// and tests.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]*localLock
	now  func() time.Time
}

// NewLocalLocker creates an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]*localLock), now: time.Now}
}

type localLock struct {
	owner   *LocalLocker
	key     string
	expires time.Time
}

// Obtain takes key unless an unexpired holder exists.
func (l *LocalLocker) Obtain(_ context.Context, key string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return nil, ErrNotObtained
	}
	lk := &localLock{owner: l, key: key, expires: now.Add(ttl)}
	l.held[key] = lk
	return lk, nil
}

func (k *localLock) Release(context.Context) error {
	k.owner.mu.Lock()
	defer k.owner.mu.Unlock()
	if k.owner.held[k.key] == k {
		delete(k.owner.held, k.key)
	}
	return nil
}
