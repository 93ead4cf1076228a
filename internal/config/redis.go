package config

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/hostel-bed-holds/internal/logger"
)

// RedisConfig describes the optional Redis server backing the availability
// cache and the rate limiter.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TLS      bool
}

// REDIS_HOST and REDIS_PORT take precedence over REDIS_ADDR.
func loadRedisConfig(r *reader) RedisConfig {
	addr := r.str("REDIS_ADDR", "localhost:6379")
	if host, ok := r.raw("REDIS_HOST"); ok {
		addr = net.JoinHostPort(host, r.str("REDIS_PORT", "6379"))
	}
	return RedisConfig{
		Enabled:  r.boolean("REDIS_ENABLED", false),
		Addr:     addr,
		Password: r.str("REDIS_PASSWORD", ""),
		DB:       r.integer("REDIS_DB", 0),
		TLS:      r.boolean("REDIS_TLS", false),
	}
}

// NewRedisClient connects and pings Redis.  It returns nil when Redis is
// disabled or unreachable; callers then fall back to in-process caching and
// skip rate limiting.
func NewRedisClient(cfg RedisConfig, l *zap.Logger) *redis.Client {
	l = logger.OrNop(l)
	if !cfg.Enabled {
		return nil
	}
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLS {
		host, _, _ := net.SplitHostPort(cfg.Addr)
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		l.Warn("redis unreachable; continuing without it", zap.String("addr", cfg.Addr), zap.Error(err))
		_ = client.Close()
		return nil
	}
	l.Info("redis connected", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return client
}
