package selection

import (
	"github.com/creastat/consolesync"
	"github.com/creastat/consolesync/internal/clock"
)

// StoreType represents the type of selection store.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQLite StoreType = "sqlite"
)

// NewStore creates a new selection Store based on the given type.
// Supports "memory", "sqlite" and "redis" driver types.
// For Redis, requires WithRedisClient option; for SQLite, WithSQLitePath.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	config := &storeConfig{clock: clock.Real()}

	// Apply options
	for _, opt := range opts {
		opt(config)
	}

	switch storeType {
	case StoreTypeMemory, "":
		store := NewInMemoryStore()
		store.clock = config.clock
		return store, nil

	case StoreTypeSQLite:
		store, err := NewSQLiteStore(config.sqlitePath)
		if err != nil {
			return nil, err
		}
		store.clock = config.clock
		return store, nil

	case StoreTypeRedis:
		if config.redisClient == nil {
			return nil, consolesync.ErrInvalidConfig
		}
		store := NewRedisStore(config.redisClient, config.redisTTL)
		if config.keyPrefix != "" {
			store.prefix = config.keyPrefix
		}
		store.clock = config.clock
		return store, nil

	default:
		return nil, consolesync.ErrInvalidStoreType
	}
}
