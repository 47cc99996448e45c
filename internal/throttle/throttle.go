// Package throttle provides the per-target scrape lock: a short-lived,
// best-effort mutual exclusion token backed by Redis SET NX EX.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cardstock/stockwatch/internal/monitor"
)

// ErrSkipped is returned when another run holds the target's lock.
var ErrSkipped = errors.New("throttle: lock held, skipped")

// RedisLocker implements monitor.Locker on a Redis client.
type RedisLocker struct {
	client redis.UniversalClient
}

// NewRedisLocker wraps a Redis client.
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

// TrySetIfAbsent issues SET lock:<key> 1 NX EX ttl. The lock is never
// explicitly released; the TTL bounds staleness.
func (l *RedisLocker) TrySetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, "lock:"+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return ok, nil
}

// Throttle wraps actions in the lock. When the backend is unreachable it
// fails open and runs the action anyway, unless strict mode is on.
type Throttle struct {
	locker monitor.Locker
	ttl    time.Duration
	strict bool
	logger *zap.Logger
}

// New builds a Throttle.
func New(locker monitor.Locker, ttl time.Duration, strict bool, logger *zap.Logger) *Throttle {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Throttle{locker: locker, ttl: ttl, strict: strict, logger: logger}
}

// With runs fn under the key's lock. A held lock skips with ErrSkipped; a
// backend failure runs fn anyway (or fails in strict mode).
func (t *Throttle) With(ctx context.Context, key string, fn func(context.Context) error) error {
	if t.locker == nil {
		return fn(ctx)
	}
	acquired, err := t.locker.TrySetIfAbsent(ctx, key, t.ttl)
	if err != nil {
		if t.strict {
			return fmt.Errorf("throttle lock %s: %w", key, err)
		}
		t.logger.Warn("lock backend unavailable, failing open",
			zap.String("key", key),
			zap.Error(err))
		return fn(ctx)
	}
	if !acquired {
		return ErrSkipped
	}
	return fn(ctx)
}
