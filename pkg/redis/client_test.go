package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestIncrWindow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.RateLimitKey("ip:invite:1.2.3.4")

	count, remaining, err := client.IncrWindow(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 || remaining != time.Minute {
		t.Fatalf("first hit: count=%d remaining=%s", count, remaining)
	}

	mock.elapse(key, 20*time.Second)
	count, remaining, err = client.IncrWindow(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 || remaining != 40*time.Second {
		t.Fatalf("second hit should keep the window: count=%d remaining=%s", count, remaining)
	}

	if _, _, err := client.IncrWindow(ctx, key, 0); err == nil {
		t.Fatal("expected error for empty window")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	key := client.SnapshotKey("monitoring")
	if err := client.Set(ctx, key, `{"records":[]}`, time.Hour); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	value, err := client.Get(ctx, key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if value != `{"records":[]}` {
		t.Fatalf("unexpected snapshot %q", value)
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); err != redis.Nil {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "portal:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.RateLimitKey("scope"); got != "portal:rate_limit:scope" {
		t.Fatalf("unexpected rate limit key %s", got)
	}
	if got := client.SnapshotKey("members"); got != "portal:snapshot:members" {
		t.Fatalf("unexpected snapshot key %s", got)
	}
	if got := client.IdempotencyKey("scope", ""); got != "portal:idempotency:scope" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestOwnedKeyScripts(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.LockKey("cron-worker:dev")
	if key != "portal:lock:cron-worker:dev" {
		t.Fatalf("unexpected lock key %s", key)
	}
	if ok, err := client.SetNX(ctx, key, "owner-a", time.Minute); err != nil || !ok {
		t.Fatalf("setnx: ok=%v err=%v", ok, err)
	}

	if ok, err := client.ExpireIfValue(ctx, key, "owner-b", time.Minute); err != nil || ok {
		t.Fatalf("foreign extend: ok=%v err=%v", ok, err)
	}
	if ok, err := client.ExpireIfValue(ctx, key, "owner-a", 2*time.Minute); err != nil || !ok {
		t.Fatalf("owner extend: ok=%v err=%v", ok, err)
	}
	if ok, err := client.DelIfValue(ctx, key, "owner-b"); err != nil || ok {
		t.Fatalf("foreign delete: ok=%v err=%v", ok, err)
	}
	if ok, err := client.DelIfValue(ctx, key, "owner-a"); err != nil || !ok {
		t.Fatalf("owner delete: ok=%v err=%v", ok, err)
	}
	if _, err := client.Get(ctx, key); err != redis.Nil {
		t.Fatalf("expected key removed, got %v", err)
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error for uninitialized client")
	}
	if _, err := client.DelIfValue(context.Background(), "k", "v"); err == nil {
		t.Fatal("expected script error for uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close without raw client should be a no-op, got %v", err)
	}
}

type mockCmdable struct {
	data        map[string]string
	incr        map[string]int64
	pttl        map[string]time.Duration
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
		pttl: make(map[string]time.Duration),
	}
}

func (m *mockCmdable) elapse(key string, d time.Duration) {
	m.pttl[key] -= d
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

func (m *mockCmdable) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if script == incrWindowScript {
		key := keys[0]
		m.incr[key]++
		if m.incr[key] == 1 {
			m.pttl[key] = time.Duration(args[0].(int64)) * time.Millisecond
		}
		return redis.NewCmdResult([]any{m.incr[key], m.pttl[key].Milliseconds()}, nil)
	}
	if len(keys) != 1 || len(args) == 0 || m.data[keys[0]] != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	switch script {
	case delIfValueScript:
		delete(m.data, keys[0])
	case expireIfValueScript:
		m.expireCalls = append(m.expireCalls, expireCall{key: keys[0], ttl: time.Duration(args[1].(int64)) * time.Millisecond})
	default:
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
	}
	return redis.NewCmdResult(int64(1), nil)
}
