package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// ErrNotInitialized is returned by every call on a zero Client.
var ErrNotInitialized = errors.New("redis client not initialized")

// commands is the slice of go-redis the services rely on.
type commands interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Incr(context.Context, string) *redis.IntCmd
	Expire(context.Context, string, time.Duration) *redis.BoolCmd
	TTL(context.Context, string) *redis.DurationCmd
	Del(context.Context, ...string) *redis.IntCmd
}

// IsMiss reports whether err is a cache miss.
func IsMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(context.Context) error
}

// IdempotencyStore is what the idempotency middleware and the analytics
// dedupe need.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(context.Context, ...string) error
}

// Client is shared by the API and the workers. Key builders come from the
// embedded Keyspace.
type Client struct {
	Keyspace
	store commands
	conn  *redis.Client
}

// New dials Redis and fails fast when the server does not answer PING.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := dialOptions(cfg)
	if err != nil {
		return nil, err
	}
	conn := redis.NewClient(opts)
	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{
			"addr":      opts.Addr,
			"db":        opts.DB,
			"pool_size": opts.PoolSize,
		})
		logg.Info(ctx, "redis connection established")
	}
	return &Client{
		Keyspace: Keyspace{Namespace: cfg.KeyNamespace},
		store:    conn,
		conn:     conn,
	}, nil
}

// dialOptions prefers the URL; explicit settings only fill what the URL
// leaves unset.
func dialOptions(cfg config.RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	case cfg.Address == "":
		return nil, errors.New("redis url or address is required")
	}
	fillInt(&opts.DB, cfg.DB)
	fillInt(&opts.PoolSize, cfg.PoolSize)
	fillInt(&opts.MinIdleConns, cfg.MinIdleConns)
	fillDuration(&opts.DialTimeout, cfg.DialTimeout)
	fillDuration(&opts.ReadTimeout, cfg.ReadTimeout)
	fillDuration(&opts.WriteTimeout, cfg.WriteTimeout)
	if opts.ClientName == "" {
		opts.ClientName = "stockledger"
	}
	return opts, nil
}

func fillInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}

func fillDuration(dst *time.Duration, v time.Duration) {
	if *dst == 0 {
		*dst = v
	}
}

func (c *Client) ready() (commands, error) {
	if c == nil || c.store == nil {
		return nil, ErrNotInitialized
	}
	return c.store, nil
}

// Get returns the string stored at key or a redis.Nil miss.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	s, err := c.ready()
	if err != nil {
		return "", err
	}
	return s.Get(ctx, key).Result()
}

// Set stores value at key. A zero ttl keeps the key forever.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	s, err := c.ready()
	if err != nil {
		return err
	}
	return s.Set(ctx, key, value, ttl).Err()
}

// SetNX reports whether this call created the key.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s, err := c.ready()
	if err != nil {
		return false, err
	}
	return s.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	s, err := c.ready()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.Del(ctx, keys...).Err()
}

// IncrWithTTL bumps a window counter. The expiry is set on the first hit and
// restored if a previous EXPIRE never landed, so a counter cannot outlive
// its window.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s, err := c.ready()
	if err != nil {
		return 0, err
	}
	count, err := s.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	if ttl <= 0 {
		return count, nil
	}
	if count > 1 {
		remaining, err := s.TTL(ctx, key).Result()
		if err != nil {
			return count, fmt.Errorf("ttl %s: %w", key, err)
		}
		if remaining >= 0 {
			return count, nil
		}
	}
	if err := s.Expire(ctx, key, ttl).Err(); err != nil {
		return count, fmt.Errorf("expire %s: %w", key, err)
	}
	return count, nil
}

func (c *Client) Ping(ctx context.Context) error {
	s, err := c.ready()
	if err != nil {
		return err
	}
	return s.Ping(ctx).Err()
}

// Close is a no-op for clients built without a connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
