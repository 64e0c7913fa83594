// Package lock serializes generation requests of one user across API instances.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock stays held past the wait budget
var ErrNotAcquired = errors.New("lock not acquired")

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const (
	defaultTTL   = 2 * time.Minute
	defaultWait  = 10 * time.Second
	retryBackoff = 50 * time.Millisecond
)

// Options configures RedisLocker
type Options struct {
	Prefix string
	// TTL bounds how long a crashed holder can block the user
	TTL  time.Duration
	Wait time.Duration
}

// RedisLocker is a SETNX lock with token-checked release
type RedisLocker struct {
	client *redis.Client
	script *redis.Script
	prefix string
	ttl    time.Duration
	wait   time.Duration
}

// ErrNoClient is returned by NewRedisLocker when no Redis client is given
var ErrNoClient = errors.New("lock: redis client is required")

// NewRedisLocker creates a locker on client, filling unset options with defaults
func NewRedisLocker(client *redis.Client, opts Options) (*RedisLocker, error) {
	if client == nil {
		return nil, ErrNoClient
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.Wait <= 0 {
		opts.Wait = defaultWait
	}
	if opts.Prefix == "" {
		opts.Prefix = "photoshot:generate:"
	}
	return &RedisLocker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
		prefix: opts.Prefix,
		ttl:    opts.TTL,
		wait:   opts.Wait,
	}, nil
}

// TryLock makes one attempt to take the lock for key. It returns the owner
// token and whether the lock was taken.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release frees the lock for key if token still owns it
func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{l.prefix + key}, token).Err()
}

// Lock blocks until the lock for key is held or the wait budget runs out.
// The returned function releases it.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	ticker := time.NewTicker(retryBackoff)
	defer ticker.Stop()

	for {
		token, ok, err := l.TryLock(waitCtx, key)
		if err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
			}
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}
		if ok {
			return func() {
				// release even when the request context is already canceled
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
				defer cancel()
				_ = l.Release(releaseCtx, key, token)
			}, nil
		}

		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
		case <-ticker.C:
		}
	}
}
