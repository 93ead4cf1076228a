package config

import "time"

// RateLimitConfig parameterises the Redis token bucket in front of the
// guest endpoints.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string // ip, ip_route, ip_user_route
	Prefix         string
	Debug          bool
}

func loadRateLimitConfig(r *reader) RateLimitConfig {
	c := RateLimitConfig{
		Enabled:        r.boolean("RATE_LIMIT_ENABLED", true),
		Capacity:       r.integer("RATE_LIMIT_CAPACITY", 60),
		RefillTokens:   r.integer("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: r.duration("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            r.duration("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    r.str("RATE_LIMIT_KEY_STRATEGY", "ip_route"),
		Prefix:         r.str("RATE_LIMIT_PREFIX", "rl"),
		Debug:          r.boolean("RATE_LIMIT_DEBUG", false),
	}
	if b := r.integer("RATE_LIMIT_BURST", -1); b > 0 {
		c.Capacity = b
	}
	if every := r.duration("RATE_LIMIT_REFILL_EVERY", 0); every > 0 {
		c.RefillTokens = 1
		c.RefillInterval = every
	}
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	// keep buckets alive for at least a few refills
	if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
		c.TTL = minTTL
	}
	return c
}
