package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/experiences-backend/pkg/config"
	"github.com/redis/go-redis/v9"
)

func TestInFlightGuard(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.InFlightKey("0xABC", "7", "bookExperience")

	acquired, err := client.AcquireInFlight(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Fatalf("expected first acquire to succeed")
	}

	acquired, err = client.AcquireInFlight(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acquired {
		t.Fatalf("second acquire should be rejected while in flight")
	}

	if err := client.ReleaseInFlight(ctx, key); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	acquired, _ = client.AcquireInFlight(ctx, key, time.Minute)
	if !acquired {
		t.Fatalf("expected acquire after release")
	}
}

func TestIncrWithTTLSetsExpiryOnce(t *testing.T) {
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.RateLimitKey("provision:10.0.0.1")
	if key != "exp:rl:provision:10.0.0.1" {
		t.Fatalf("unexpected rate limit key %s", key)
	}

	for i := int64(1); i <= 3; i++ {
		count, err := client.IncrWithTTL(context.Background(), key, time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != i {
			t.Fatalf("expected count %d, got %d", i, count)
		}
	}
	if mock.ttls[key] != time.Minute {
		t.Fatalf("expected ttl to be set on first increment")
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	client := &Client{store: newMockCmdable()}
	if _, err := client.Get(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "exp:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.InFlightKey("0xABC", "7", "bookExperience"); got != "exp:inflight:0xabc:7:bookExperience" {
		t.Fatalf("unexpected in-flight key %s", got)
	}
	if got := client.WalletNameKey("exp-1"); got != "exp:wallet:name:exp-1" {
		t.Fatalf("unexpected wallet key %s", got)
	}
	if got := client.BookingSessionKey("7", "0xDEF"); got != "exp:booking:7:0xdef" {
		t.Fatalf("unexpected booking key %s", got)
	}
	if got := client.LockKey("maintenance", ""); got != "exp:lock:maintenance:local" {
		t.Fatalf("unexpected lock key %q", got)
	}
	if got := client.InFlightKey("0xabc", "", "createExperience"); got != "exp:inflight:0xabc:createExperience" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected missing url/address to fail")
	}
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.DB != 2 || opts.PoolSize != 7 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestOptionsFromAddressFillsDefaults(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 3, MinIdleConns: 2, ReadTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "cache:6379" || opts.DB != 3 || opts.MinIdleConns != 2 || opts.ReadTimeout != 2*time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestUninitializedClientFails(t *testing.T) {
	var client *Client
	if err := client.Ping(context.Background()); err != errNotInitialized {
		t.Fatalf("expected errNotInitialized, got %v", err)
	}
	if _, err := (&Client{}).IncrWithTTL(context.Background(), "k", time.Second); err != errNotInitialized {
		t.Fatalf("expected errNotInitialized, got %v", err)
	}
}

type mockCmdable struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *mockCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	var n int64
	if v, ok := m.data[key]; ok {
		fmt.Sscan(v, &n)
	}
	n++
	m.data[key] = fmt.Sprint(n)
	return redis.NewIntResult(n, nil)
}

func (m *mockCmdable) Expire(ctx context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	m.ttls[key] = ttl
	return redis.NewBoolResult(true, nil)
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

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
