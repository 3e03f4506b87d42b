package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	appErrors "github.com/noah-isme/sma-records-api/pkg/errors"
)

const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// ReleaseFunc frees a previously acquired lock.
type ReleaseFunc func(ctx context.Context) error

// Locker hands out short-lived exclusive locks stored in Redis.
// A nil client yields a process-local no-op locker.
type Locker struct {
	client *redis.Client
	prefix string
}

// NewLocker constructs a Locker.
func NewLocker(client *redis.Client, prefix string) *Locker {
	if prefix == "" {
		prefix = "lock"
	}
	return &Locker{client: client, prefix: prefix}
}

// Acquire takes the named lock for ttl. It returns ErrLockNotAcquired when another holder owns it.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (ReleaseFunc, error) {
	if l == nil || l.client == nil {
		return func(context.Context) error { return nil }, nil
	}
	key := fmt.Sprintf("%s:%s", l.prefix, name)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrLockNotAcquired, fmt.Sprintf("lock %s held by another process", name))
	}
	return func(ctx context.Context) error {
		if err := l.client.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("redis release %s: %w", key, err)
		}
		return nil
	}, nil
}
