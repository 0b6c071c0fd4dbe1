package cache_test

import (
	"context"
	"testing"
	"time"

	"algojudge/internal/common/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return c, mr
}

func TestRedisCacheGetMissingKey(t *testing.T) {
	c, _ := newTestCache(t)
	value, err := c.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if value != "" {
		t.Fatalf("expected empty value, got %q", value)
	}
}

func TestRedisCacheLockOwnership(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	ok, err := c.TryLock(ctx, "lock:pack", "owner-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first lock: ok=%v err=%v", ok, err)
	}
	ok, err = c.TryLock(ctx, "lock:pack", "owner-b", time.Minute)
	if err != nil || ok {
		t.Fatalf("second lock should fail: ok=%v err=%v", ok, err)
	}

	if err := c.Unlock(ctx, "lock:pack", "owner-b"); err != nil {
		t.Fatalf("foreign unlock: %v", err)
	}
	if !mr.Exists("lock:pack") {
		t.Fatal("lock released by non-owner")
	}

	extended, err := c.ExtendLock(ctx, "lock:pack", "owner-a", 2*time.Minute)
	if err != nil || !extended {
		t.Fatalf("extend: ok=%v err=%v", extended, err)
	}

	if err := c.Unlock(ctx, "lock:pack", "owner-a"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if mr.Exists("lock:pack") {
		t.Fatal("lock still held after owner unlock")
	}
}

func TestRedisCacheHashCounters(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.HSet(ctx, "progress", map[string]interface{}{"total": 3, "done": 0}); err != nil {
		t.Fatalf("hset: %v", err)
	}
	if _, err := c.HIncrBy(ctx, "progress", "done", 2); err != nil {
		t.Fatalf("hincrby: %v", err)
	}
	fields, err := c.HGetAll(ctx, "progress")
	if err != nil {
		t.Fatalf("hgetall: %v", err)
	}
	if fields["total"] != "3" || fields["done"] != "2" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestJitterTTL(t *testing.T) {
	ttl := 10 * time.Minute
	for i := 0; i < 20; i++ {
		got := cache.JitterTTL(ttl)
		if got > ttl || got < ttl-ttl/10 {
			t.Fatalf("jitter out of range: %v", got)
		}
	}
	if cache.JitterTTL(0) != 0 {
		t.Fatal("zero ttl should stay zero")
	}
}
