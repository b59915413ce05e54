package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores resolved principals keyed by session token so repeated
// session checks do not hammer the upstream. Entries are short-lived; a
// logout or failed check deletes them.
type Cache interface {
	Get(ctx context.Context, token string) (*User, bool)
	Set(ctx context.Context, token string, user *User, ttl time.Duration)
	Delete(ctx context.Context, token string)
}

// cacheKey hashes the raw session token so credential material never appears
// in cache keys.
func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "principal:" + hex.EncodeToString(sum[:])
}

// RedisCache keeps principals in Redis.
type RedisCache struct {
	rdb redis.Cmdable
}

// NewRedisCache wraps a Redis client as a principal cache.
func NewRedisCache(rdb redis.Cmdable) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, token string) (*User, bool) {
	raw, err := c.rdb.Get(ctx, cacheKey(token)).Result()
	if err != nil {
		return nil, false
	}
	var user User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, false
	}
	return &user, true
}

func (c *RedisCache) Set(ctx context.Context, token string, user *User, ttl time.Duration) {
	if user == nil || ttl <= 0 {
		return
	}
	data, err := json.Marshal(user)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, cacheKey(token), string(data), ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, token string) {
	_ = c.rdb.Del(ctx, cacheKey(token)).Err()
}

// MemoryCache is the in-process fallback used when no Redis is configured.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	user      *User
	expiresAt time.Time
}

// NewMemoryCache builds an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, token string) (*User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[cacheKey(token)]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, cacheKey(token))
		return nil, false
	}
	return entry.user, true
}

func (c *MemoryCache) Set(_ context.Context, token string, user *User, ttl time.Duration) {
	if user == nil || ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(token)] = memoryEntry{user: user, expiresAt: c.now().Add(ttl)}
}

func (c *MemoryCache) Delete(_ context.Context, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(token))
}
