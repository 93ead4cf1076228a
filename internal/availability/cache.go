package availability

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/hostel-bed-holds/internal/logger"
)

// Cache stores occupancy reports for a short time.  Errors are treated as
// misses; the cache is never part of correctness.
type Cache interface {
	Get(ctx context.Context, key string) (Report, bool)
	Set(ctx context.Context, key string, r Report)
}

const defaultCacheTTL = 30 * time.Second

// MemoryCache is an in-process TTL cache with a bounded entry count.
type MemoryCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]memoryEntry
}

type memoryEntry struct {
	report    Report
	expiresAt time.Time
}

// NewMemoryCache returns a cache; zero values pick a 30s TTL, 256 entries
// and time.Now.
func NewMemoryCache(ttl time.Duration, maxEntries int, now func() time.Time) *MemoryCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]memoryEntry),
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (Report, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Report{}, false
	}
	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return Report{}, false
	}
	return cloneReport(e.report), true
}

func (c *MemoryCache) Set(_ context.Context, key string, r Report) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = memoryEntry{report: cloneReport(r), expiresAt: now.Add(c.ttl)}
}

// Reset drops every entry.
func (c *MemoryCache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
}

// Len reports the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) evictOldestLocked() {
	var oldest string
	var at time.Time
	for k, e := range c.entries {
		if oldest == "" || e.expiresAt.Before(at) {
			oldest, at = k, e.expiresAt
		}
	}
	delete(c.entries, oldest)
}

func cloneReport(r Report) Report {
	r.Rooms = append([]RoomOccupancy(nil), r.Rooms...)
	return r
}

// RedisCache shares reports between instances.  Keys are namespaced by
// prefix and hashed, and entries expire on the redis side.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache returns nil when rdb is nil so callers can skip caching.
func NewRedisCache(rdb *redis.Client, prefix string, ttl time.Duration, l *zap.Logger) *RedisCache {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if prefix == "" {
		prefix = "availability"
	}
	return &RedisCache{rdb: rdb, prefix: prefix, ttl: ttl, logger: logger.OrNop(l)}
}

func (c *RedisCache) key(k string) string {
	sum := sha1.Sum([]byte(k))
	return fmt.Sprintf("%s:%x", c.prefix, sum[:])
}

func (c *RedisCache) Get(ctx context.Context, key string) (Report, bool) {
	bs, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("availability cache read failed", zap.Error(err))
		}
		return Report{}, false
	}
	var r Report
	if err := json.Unmarshal(bs, &r); err != nil {
		return Report{}, false
	}
	return r, true
}

func (c *RedisCache) Set(ctx context.Context, key string, r Report) {
	bs, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.key(key), bs, c.ttl).Err(); err != nil {
		c.logger.Debug("availability cache write failed", zap.Error(err))
	}
}
