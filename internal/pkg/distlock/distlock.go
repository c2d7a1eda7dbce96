// Package distlock serializes cross-process critical sections, used by the
// learning core to keep pattern upserts for one (pattern_type, pattern_key)
// from interleaving. Redis backs the lock when configured; a process-local
// keyed mutex covers single-instance deployments.
package distlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is a non-blocking try-lock. One Lock value guards one acquisition;
// concurrent sections need separate Lock instances.
type Lock interface {
	// Acquire tries to take the lock, reporting whether it succeeded.
	Acquire(ctx context.Context) (bool, error)
	// Release frees the lock if this instance still owns it.
	Release(ctx context.Context) error
}

// Locker mints locks for keys.
type Locker interface {
	For(key string, ttl time.Duration) Lock
}

// NewLocker returns a Redis-backed locker when client is non-nil, the
// process-local one otherwise.
func NewLocker(client *redis.Client) Locker {
	if client != nil {
		return &redisLocker{client: client}
	}
	return NewLocalLocker()
}

type redisLocker struct{ client *redis.Client }

func (r *redisLocker) For(key string, ttl time.Duration) Lock {
	return NewRedisLock(r.client, key, ttl)
}

// RedisLock locks via SET NX with a TTL. A random ownership token and a
// Lua-scripted release keep one process from freeing another's lock after
// TTL expiry.
type RedisLock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
}

// NewRedisLock builds a lock on key with the given TTL.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	b := make([]byte, 16)
	rand.Read(b)
	return &RedisLock{
		client: client,
		key:    "lock:" + key,
		value:  hex.EncodeToString(b),
		ttl:    ttl,
	}
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

func (l *RedisLock) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Result()
	return err
}

// LocalLocker serializes within one process using per-key mutexes. It is
// the fallback when Redis is not configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocalLocker builds an empty local locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]bool{}}
}

func (ll *LocalLocker) For(key string, _ time.Duration) Lock {
	return &localLock{parent: ll, key: key}
}

type localLock struct {
	parent *LocalLocker
	key    string
	owned  bool
}

func (l *localLock) Acquire(_ context.Context) (bool, error) {
	l.parent.mu.Lock()
	defer l.parent.mu.Unlock()
	if l.parent.held[l.key] {
		return false, nil
	}
	l.parent.held[l.key] = true
	l.owned = true
	return true, nil
}

func (l *localLock) Release(_ context.Context) error {
	l.parent.mu.Lock()
	defer l.parent.mu.Unlock()
	if l.owned {
		delete(l.parent.held, l.key)
		l.owned = false
	}
	return nil
}
