package selection

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/creastat/consolesync"
	"github.com/creastat/consolesync/internal/clock"
)

const (
	// Redis key prefix for selections
	defaultKeyPrefix = "consolesync:selection:"
	// Default TTL for selection keys (30 days)
	defaultTTL = 30 * 24 * time.Hour
)

// RedisStore implements Store using Redis with optimistic locking.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	clock  clock.Clock
}

// NewRedisStore creates a new Redis-based selection store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		prefix: defaultKeyPrefix,
		clock:  clock.Real(),
	}
}

// Create implements Store.
// Creates a new selection with Version set to 1 and sets TTL.
func (s *RedisStore) Create(ctx context.Context, sel *Selection) error {
	if err := firstVersion(sel, s.clock.Now()); err != nil {
		return err
	}

	val, err := marshal(sel)
	if err != nil {
		return err
	}

	created, err := s.client.SetNX(ctx, s.key(sel.UserID), val, s.ttl).Result()
	if err != nil {
		return err
	}
	if !created {
		return consolesync.ErrAlreadyExists
	}
	return nil
}

// Get implements Store.
// Returns nil if the selection is not found (not an error).
// Refreshes TTL on every read.
func (s *RedisStore) Get(ctx context.Context, userID string) (*Selection, error) {
	key := s.key(userID)
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sel Selection
	if err := unmarshal(val, &sel); err != nil {
		return nil, err
	}

	// A failed TTL refresh only shortens retention.
	_ = s.client.Expire(ctx, key, s.ttl).Err()

	return &sel, nil
}

// Update implements Store.
// Implements optimistic locking using Redis WATCH/MULTI/EXEC on top of the
// Version check.
func (s *RedisStore) Update(ctx context.Context, sel *Selection) error {
	key := s.key(sel.UserID)

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return consolesync.ErrNotFound
		}
		if err != nil {
			return err
		}

		var stored Selection
		if err := unmarshal(val, &stored); err != nil {
			return err
		}

		next, err := nextVersion(stored, *sel, s.clock.Now())
		if err != nil {
			return err
		}

		newVal, err := marshal(&next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, s.ttl)
			return nil
		})
		if errors.Is(err, redis.TxFailedErr) {
			return consolesync.ErrVersionConflict
		}
		if err != nil {
			return err
		}
		*sel = next
		return nil
	}, key)
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	return s.client.Del(ctx, s.key(userID)).Err()
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// key constructs the Redis key for a user ID.
func (s *RedisStore) key(userID string) string {
	return s.prefix + userID
}
