package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out short-lived exclusive leases with SET NX PX.
type Locker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// LockerOption configures a Locker.
type LockerOption func(*Locker)

// WithLockPrefix namespaces lock keys.
func WithLockPrefix(prefix string) LockerOption {
	return func(l *Locker) { l.prefix = prefix }
}

// WithLockTTL sets the lease duration. A crashed holder releases the lock when it expires.
func WithLockTTL(ttl time.Duration) LockerOption {
	return func(l *Locker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithLockWait sets how long Lock retries before returning ErrLockNotAcquired.
func WithLockWait(wait time.Duration) LockerOption {
	return func(l *Locker) {
		if wait >= 0 {
			l.wait = wait
		}
	}
}

// NewLocker creates a Locker. Panics if client is nil.
func NewLocker(client redis.UniversalClient, opts ...LockerOption) *Locker {
	if client == nil {
		panic("redis: client is required for locker")
	}
	l := &Locker{
		client: client,
		prefix: "lock:",
		ttl:    30 * time.Second,
		wait:   5 * time.Second,
		retry:  50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewLockerFromConfig applies the lock settings of cfg.
func NewLockerFromConfig(client redis.UniversalClient, cfg Config, opts ...LockerOption) *Locker {
	return NewLocker(client, append([]LockerOption{WithLockTTL(cfg.LockTTL), WithLockWait(cfg.LockWait)}, opts...)...)
}

// Lock acquires key and returns the function releasing it.
// The release function is safe to call after the lease expired.
func (l *Locker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	fullKey := l.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", fullKey, err)
		}
		if ok {
			return func(ctx context.Context) error {
				return l.release(ctx, fullKey, token)
			}, nil
		}

		if !time.Now().Add(l.retry).Before(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockNotAcquired, fullKey)
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrLockNotAcquired, ctx.Err())
		case <-time.After(l.retry):
		}
	}
}

func (l *Locker) release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}
