package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/redis/go-redis/v9"
)

func TestIncrWithTTLSetsExpiryOnce(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.RateLimitKey("tenant:t-1:1700000000")

	for want := int64(1); want <= 3; want++ {
		count, err := client.IncrWithTTL(ctx, key, time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != want {
			t.Fatalf("expected counter %d got %d", want, count)
		}
	}
	if len(mock.expireCalls) != 1 || mock.expireCalls[0].ttl != time.Minute {
		t.Fatalf("expected a single expire, got %v", mock.expireCalls)
	}
}

func TestIncrWithTTLRepairsMissingExpiry(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.RateLimitKey("tenant:t-2:1700000000")
	mock.incr[key] = 4

	if _, err := client.IncrWithTTL(ctx, key, time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.expireCalls) != 1 {
		t.Fatalf("expected the lost expire to be restored")
	}
}

func TestIdempotencyClaimAndRelease(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.IdempotencyKey("POST /api/v1/sales", "abc")

	claimed, err := client.SetNX(ctx, key, "pending", time.Minute)
	if err != nil || !claimed {
		t.Fatalf("first claim should win, claimed=%v err=%v", claimed, err)
	}
	claimed, err = client.SetNX(ctx, key, "pending", time.Minute)
	if err != nil || claimed {
		t.Fatalf("second claim should lose, claimed=%v err=%v", claimed, err)
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); !IsMiss(err) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "sl:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.RateLimitKey("scope"); got != "sl:rate_limit:scope" {
		t.Fatalf("unexpected rate limit key %s", got)
	}
	if got := client.CatalogKey("ABC-1"); got != "sl:catalog:abc-1" {
		t.Fatalf("unexpected catalog key %s", got)
	}
	if got := client.IdempotencyKey("scope", ""); got != "sl:idempotency:scope" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestKeyspaceNamespace(t *testing.T) {
	keys := Keyspace{Namespace: "staging"}
	if got := keys.RateLimitKey("tenant:t-1"); got != "staging:rate_limit:tenant:t-1" {
		t.Fatalf("unexpected key %s", got)
	}
}

func TestDialOptions(t *testing.T) {
	opts, err := dialOptions(config.RedisConfig{
		URL:         "redis://:secret@cache.internal:6380/3",
		DB:          7,
		PoolSize:    25,
		DialTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache.internal:6380" || opts.Password != "secret" {
		t.Fatalf("url settings lost: %+v", opts)
	}
	if opts.DB != 3 {
		t.Fatalf("url db should win, got %d", opts.DB)
	}
	if opts.PoolSize != 25 || opts.DialTimeout != 2*time.Second {
		t.Fatalf("config should fill unset options: %+v", opts)
	}
	if opts.ClientName != "stockledger" {
		t.Fatalf("expected client name, got %q", opts.ClientName)
	}

	if _, err := dialOptions(config.RedisConfig{}); err == nil {
		t.Fatalf("expected error without url or address")
	}
}

func TestNilClientErrors(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close without connection should be a no-op, got %v", err)
	}
}

type mockCmdable struct {
	data        map[string]string
	incr        map[string]int64
	ttls        map[string]time.Duration
	expireCalls []expireCall
}

type expireCall struct {
	key string
	ttl time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		incr: make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	m.incr[key]++
	return redis.NewIntResult(m.incr[key], nil)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	m.expireCalls = append(m.expireCalls, expireCall{key: key, ttl: expiration})
	if m.ttls == nil {
		m.ttls = map[string]time.Duration{}
	}
	m.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) TTL(ctx context.Context, key string) *redis.DurationCmd {
	if ttl, ok := m.ttls[key]; ok {
		return redis.NewDurationResult(ttl, nil)
	}
	return redis.NewDurationResult(-1, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
