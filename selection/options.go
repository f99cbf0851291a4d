package selection

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/creastat/consolesync/internal/clock"
)

// StoreOption is a functional option for configuring a selection store.
type StoreOption func(*storeConfig)

// storeConfig holds configuration for selection stores.
type storeConfig struct {
	redisClient *redis.Client
	redisTTL    time.Duration
	keyPrefix   string
	sqlitePath  string
	clock       clock.Clock
}

// WithRedisClient sets the Redis client for the Redis store.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithRedisTTL sets the TTL for Redis keys.
func WithRedisTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.redisTTL = ttl
	}
}

// WithKeyPrefix namespaces Redis keys, e.g. per deployment.
func WithKeyPrefix(prefix string) StoreOption {
	return func(c *storeConfig) {
		c.keyPrefix = prefix
	}
}

// WithSQLitePath sets the database file of the sqlite store.
func WithSQLitePath(path string) StoreOption {
	return func(c *storeConfig) {
		c.sqlitePath = path
	}
}

// WithClock overrides the time source used for CreatedAt and UpdatedAt.
func WithClock(c clock.Clock) StoreOption {
	return func(cfg *storeConfig) {
		cfg.clock = c
	}
}
