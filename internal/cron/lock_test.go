package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type memoryRedis struct {
	values map[string]string
	ttl    map[string]time.Duration
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{values: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttl[key] = ttl
	return true, nil
}

func (m *memoryRedis) DelIfValue(_ context.Context, key, value string) (bool, error) {
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func (m *memoryRedis) ExpireIfValue(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	if v, ok := m.values[key]; !ok || v != value {
		return false, nil
	}
	m.ttl[key] = ttl
	return true, nil
}

func TestRedisLockIsExclusive(t *testing.T) {
	t.Setenv("PORTAL_INSTANCE_ID", "worker-1")
	store := newMemoryRedis()
	first, err := NewRedisLock(store, "portal:lock:cron", 0)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, _ := NewRedisLock(store, "portal:lock:cron", 0)

	if ok, err := first.Acquire(context.Background()); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if store.ttl["portal:lock:cron"] != defaultLockTTL {
		t.Fatalf("expected default ttl, got %s", store.ttl["portal:lock:cron"])
	}
	if !strings.HasPrefix(store.values["portal:lock:cron"], "worker-1:") {
		t.Fatalf("expected owner to name the instance, got %q", store.values["portal:lock:cron"])
	}
	if ok, _ := second.Acquire(context.Background()); ok {
		t.Fatal("second instance must not acquire a held lock")
	}
	if err := second.Release(context.Background()); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if _, held := store.values["portal:lock:cron"]; !held {
		t.Fatal("lock released by non-owner")
	}
	if err := first.Release(context.Background()); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if ok, _ := second.Acquire(context.Background()); !ok {
		t.Fatal("expected lock to be free after owner released it")
	}
}

func TestRedisLockExtend(t *testing.T) {
	store := newMemoryRedis()
	lock, _ := NewRedisLock(store, "k", time.Minute)
	if err := lock.Extend(context.Background()); !errors.Is(err, ErrLockLost) {
		t.Fatalf("extend before acquire: %v", err)
	}
	if ok, _ := lock.Acquire(context.Background()); !ok {
		t.Fatal("acquire failed")
	}
	store.ttl["k"] = time.Second
	if err := lock.Extend(context.Background()); err != nil {
		t.Fatalf("extend: %v", err)
	}
	if store.ttl["k"] != time.Minute {
		t.Fatalf("expected ttl renewed, got %s", store.ttl["k"])
	}

	// lease expired and another replica took it
	store.values["k"] = "other"
	if err := lock.Extend(context.Background()); !errors.Is(err, ErrLockLost) {
		t.Fatalf("expected ErrLockLost, got %v", err)
	}
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release after loss: %v", err)
	}
	if store.values["k"] != "other" {
		t.Fatal("release must not delete a foreign lease")
	}
}

func TestRedisLockReleaseToleratesExpiry(t *testing.T) {
	store := newMemoryRedis()
	lock, _ := NewRedisLock(store, "k", time.Minute)
	if ok, _ := lock.Acquire(context.Background()); !ok {
		t.Fatal("acquire failed")
	}
	delete(store.values, "k")
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release after expiry: %v", err)
	}
}
