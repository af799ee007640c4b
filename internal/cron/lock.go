package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/stockledger-backend/pkg/instance"
)

const (
	defaultLockTTL = 25 * time.Hour
	lockKeyFormat  = "stockledger:cron-worker:lock:%s"
)

// Lock coordinates exclusive cron cycles across worker replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// holderReporter is implemented by locks that can name the current owner.
type holderReporter interface {
	Holder(ctx context.Context) (string, error)
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// LockKey scopes the cron lock to one environment so staging and production
// workers sharing a Redis do not block each other.
func LockKey(env string) string {
	env = strings.TrimSpace(env)
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}

// RedisLock holds the cycle lock as a SETNX key whose value names the owning
// instance.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration
	owner  string
}

func NewRedisLock(client redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := instance.GetID() + "/" + uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Holder returns the owner recorded in the lock, or "" when it is free.
func (l *RedisLock) Holder(ctx context.Context) (string, error) {
	value, err := l.client.Get(ctx, l.key)
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read lock owner: %w", err)
	}
	return value, nil
}

// Release deletes the key only while this instance still owns it. An expired
// lock taken over by another replica is left alone.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	defer func() { l.owner = "" }()

	holder, err := l.Holder(ctx)
	if err != nil {
		return err
	}
	if holder != l.owner {
		return nil
	}
	if err := l.client.Del(ctx, l.key); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	return nil
}
