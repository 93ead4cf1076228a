package config

import "time"

// Availability cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// CacheConfig controls the availability read cache.  The redis backend
// silently falls back to memory when no Redis client is available.
type CacheConfig struct {
	Enabled    bool
	Backend    string
	TTL        time.Duration
	Prefix     string
	MaxEntries int
}

func loadCacheConfig(r *reader) CacheConfig {
	c := CacheConfig{
		Enabled:    r.boolean("AVAILABILITY_CACHE_ENABLED", true),
		Backend:    r.str("AVAILABILITY_CACHE_BACKEND", CacheMemory),
		TTL:        r.duration("AVAILABILITY_CACHE_TTL", 30*time.Second),
		Prefix:     r.str("AVAILABILITY_CACHE_PREFIX", "avail"),
		MaxEntries: r.integer("AVAILABILITY_CACHE_MAX_ENTRIES", 1024),
	}
	if c.TTL <= 0 {
		c.Enabled = false
	}
	if c.MaxEntries < 1 {
		c.MaxEntries = 1
	}
	return c
}
