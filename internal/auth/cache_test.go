package auth

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
)

func TestCacheKeyHidesToken(t *testing.T) {
	key := cacheKey("tok-ana")
	if key == "tok-ana" || key == "principal:tok-ana" {
		t.Fatalf("cache key leaks the raw token: %q", key)
	}
	if key != cacheKey("tok-ana") {
		t.Fatal("cache key is not deterministic")
	}
	if key == cacheKey("tok-bob") {
		t.Fatal("distinct tokens collided")
	}
}

func TestRedisCacheRoundTrip(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cache := NewRedisCache(rdb)

	user := &User{ID: 7, Email: "ana@condoplex.org"}
	data, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	key := cacheKey("tok-ana")

	mock.ExpectSet(key, string(data), 30*time.Second).SetVal("OK")
	cache.Set(context.Background(), "tok-ana", user, 30*time.Second)

	mock.ExpectGet(key).SetVal(string(data))
	got, ok := cache.Get(context.Background(), "tok-ana")
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if got.ID != user.ID || got.Email != user.Email {
		t.Fatalf("got %+v, want %+v", got, user)
	}

	mock.ExpectDel(key).SetVal(1)
	cache.Delete(context.Background(), "tok-ana")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRedisCacheMissAndGarbage(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cache := NewRedisCache(rdb)

	mock.ExpectGet(cacheKey("missing")).RedisNil()
	if _, ok := cache.Get(context.Background(), "missing"); ok {
		t.Fatal("miss reported as hit")
	}

	mock.ExpectGet(cacheKey("mangled")).SetVal("{not json")
	if _, ok := cache.Get(context.Background(), "mangled"); ok {
		t.Fatal("unparseable entry reported as hit")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRedisCacheSkipsEmptyWrites(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cache := NewRedisCache(rdb)

	// Neither call may reach Redis: no expectations are registered.
	cache.Set(context.Background(), "tok", nil, time.Minute)
	cache.Set(context.Background(), "tok", &User{ID: 1}, 0)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected Redis traffic: %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Now()
	cache := NewMemoryCache()
	cache.now = func() time.Time { return now }

	user := &User{ID: 7, Email: "ana@condoplex.org"}
	cache.Set(context.Background(), "tok-ana", user, time.Minute)

	if got, ok := cache.Get(context.Background(), "tok-ana"); !ok || got.ID != 7 {
		t.Fatalf("fresh entry: got (%+v, %v)", got, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get(context.Background(), "tok-ana"); ok {
		t.Fatal("expired entry still served")
	}
	// Expired entries are dropped on read.
	if len(cache.entries) != 0 {
		t.Fatalf("entries left after expiry: %d", len(cache.entries))
	}
}

func TestMemoryCacheDelete(t *testing.T) {
	cache := NewMemoryCache()
	cache.Set(context.Background(), "tok-ana", &User{ID: 7}, time.Minute)
	cache.Delete(context.Background(), "tok-ana")
	if _, ok := cache.Get(context.Background(), "tok-ana"); ok {
		t.Fatal("deleted entry still served")
	}
}
