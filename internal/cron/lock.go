package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-payouts/pkg/redis"
)

const defaultLockTTL = 25 * time.Minute

// Lock coordinates exclusive runs of one job across worker instances.
type Lock interface {
	Acquire(ctx context.Context, job, token string) (bool, error)
	Release(ctx context.Context, job, token string) error
}

// RedisLock implements Lock using Redis SETNX + TTL, one key per job.
type RedisLock struct {
	client redis.Locker
	env    string
	ttl    time.Duration
}

// NewRedisLock constructs a Redis-backed lock scoped to env.
func NewRedisLock(client redis.Locker, env string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if env == "" {
		return nil, errors.New("lock environment is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, env: env, ttl: ttl}, nil
}

// TTL is how long a held lock survives a crashed worker.
func (l *RedisLock) TTL() time.Duration {
	return l.ttl
}

// Acquire tries to own the job lock for the configured TTL.
func (l *RedisLock) Acquire(ctx context.Context, job, token string) (bool, error) {
	ok, err := l.client.Acquire(ctx, l.client.CronLockKey(l.env, job), token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s lock: %w", job, err)
	}
	return ok, nil
}

// Release frees the lock only if token still owns it.
func (l *RedisLock) Release(ctx context.Context, job, token string) error {
	if err := l.client.Release(ctx, l.client.CronLockKey(l.env, job), token); err != nil {
		return fmt.Errorf("release %s lock: %w", job, err)
	}
	return nil
}
