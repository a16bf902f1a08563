// Package redis implements the Redis view cache of the campus attendance hub.
// Every successful refresh cycle publishes its recomputed aggregates here, so
// consumers read attendance progress without touching PostgreSQL or the
// upstream campus API.
//
// Key components:
//   - Cache: general-purpose JSON caching with TTL management
//   - ProgressCache: per-student summaries, event rollups, snapshot metadata
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	// Host is the Redis server hostname.
	Host string

	// Port is the Redis server port.
	Port int

	// Password is the Redis authentication password (empty if no auth).
	Password string

	// DB is the Redis database number (0-15).
	DB int

	// PoolSize is the maximum number of socket connections.
	PoolSize int

	// MinIdleConns is the minimum number of idle connections.
	MinIdleConns int

	// MaxRetries is the maximum number of retries before giving up.
	MaxRetries int

	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration

	// PoolTimeout is the timeout for getting a connection from the pool.
	PoolTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	}
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrCacheMiss is returned when the requested key is not found in cache.
	ErrCacheMiss = errors.New("cache: key not found")

	// ErrCacheConnection is returned when Redis connection fails.
	ErrCacheConnection = errors.New("cache: connection failed")

	// ErrCacheSerialization is returned when serialization/deserialization fails.
	ErrCacheSerialization = errors.New("cache: serialization failed")

	// ErrCacheInvalidTTL is returned when an invalid TTL is provided.
	ErrCacheInvalidTTL = errors.New("cache: invalid TTL")

	// ErrCacheKeyEmpty is returned when an empty key is provided.
	ErrCacheKeyEmpty = errors.New("cache: key cannot be empty")

	// ErrCacheNilValue is returned when attempting to cache a nil value.
	ErrCacheNilValue = errors.New("cache: value cannot be nil")
)

// ══════════════════════════════════════════════════════════════════════════════
// KEY PREFIXES
// ══════════════════════════════════════════════════════════════════════════════

// Key prefixes for namespacing Redis keys.
const (
	// PrefixProgress is the prefix for per-student progress keys.
	PrefixProgress = "progress:"

	// PrefixRollup is the prefix for event rollup keys.
	PrefixRollup = "rollup:"

	// PrefixMeta is the prefix for snapshot metadata keys.
	PrefixMeta = "meta:"

	// PrefixIndex is the prefix for per-event index sets. The index tracks
	// which student keys were published, so event-wide invalidation does not
	// need a SCAN.
	PrefixIndex = "index:"

	// PrefixRoster is the prefix for cached upstream rosters.
	PrefixRoster = "roster:"

	// PrefixLock is the prefix for cross-replica locks.
	PrefixLock = "lock:"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEFAULT TTLs
// ══════════════════════════════════════════════════════════════════════════════

// Default TTL values for different types of cached data. Entries outlive the
// refresh interval by a wide margin, so a brief upstream outage leaves a
// readable last-known-good view.
const (
	// TTLStudentProgress is the TTL for per-student progress entries.
	TTLStudentProgress = 10 * time.Minute

	// TTLEventRollup is the TTL for event rollup entries.
	TTLEventRollup = 10 * time.Minute

	// TTLSnapshotMeta is the TTL for snapshot metadata. Long on purpose: it
	// marks the last successfully published view across worker restarts.
	TTLSnapshotMeta = 24 * time.Hour

	// TTLRoster is the TTL for cached upstream rosters.
	TTLRoster = 5 * time.Minute

	// TTLRefreshLock is the TTL of the cross-replica refresh lock. Expiry is
	// the only release path, so a crashed holder stalls refreshes for at most
	// this long.
	TTLRefreshLock = 25 * time.Second
)

// ══════════════════════════════════════════════════════════════════════════════
// CACHE CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Cache provides general-purpose caching functionality with Redis.
// It handles serialization, TTL management, and error handling.
type Cache struct {
	client *redis.Client
	config Config
}

// NewCache creates a new Cache instance with the given configuration.
func NewCache(cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}

	return &Cache{
		client: client,
		config: cfg,
	}, nil
}

// Client returns the underlying Redis client for advanced operations.
// Use with caution - prefer using Cache methods when possible.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// BASIC OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Set stores a value with the given key and TTL.
// The value is serialized to JSON before storage.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	if value == nil {
		return ErrCacheNilValue
	}
	if ttl < 0 {
		return ErrCacheInvalidTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	return c.client.Set(ctx, key, data, ttl).Err()
}

// Get retrieves and deserializes a value by key.
// Returns ErrCacheMiss if the key doesn't exist.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	return nil
}

// Delete removes keys from the cache.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	return c.client.Del(ctx, keys...).Err()
}

// DeleteByPattern deletes all keys matching a pattern.
// Use with caution in production as SCAN can be slow on large datasets.
func (c *Cache) DeleteByPattern(ctx context.Context, pattern string) error {
	if pattern == "" {
		return ErrCacheKeyEmpty
	}

	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}

	if err := iter.Err(); err != nil {
		return err
	}

	if len(keys) > 0 {
		return c.client.Del(ctx, keys...).Err()
	}

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ATOMIC OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// SetNX sets a value only if the key doesn't exist (for distributed locks).
func (c *Cache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrCacheKeyEmpty
	}
	if ttl < 0 {
		return false, ErrCacheInvalidTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	return c.client.SetNX(ctx, key, data, ttl).Result()
}

// ══════════════════════════════════════════════════════════════════════════════
// SET OPERATIONS (for key indexes)
// ══════════════════════════════════════════════════════════════════════════════

// SAdd adds members to a set.
func (c *Cache) SAdd(ctx context.Context, key string, members ...interface{}) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}

	return c.client.SAdd(ctx, key, members...).Err()
}

// SRem removes members from a set.
func (c *Cache) SRem(ctx context.Context, key string, members ...interface{}) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}

	return c.client.SRem(ctx, key, members...).Err()
}

// SMembers returns all members of a set.
func (c *Cache) SMembers(ctx context.Context, key string) ([]string, error) {
	if key == "" {
		return nil, ErrCacheKeyEmpty
	}

	return c.client.SMembers(ctx, key).Result()
}

// ══════════════════════════════════════════════════════════════════════════════
// KEY BUILDERS
// ══════════════════════════════════════════════════════════════════════════════

// StudentProgressKey generates the key for one student's progress in an event.
func StudentProgressKey(eventID, registrationID string) string {
	return PrefixProgress + eventID + ":" + registrationID
}

// EventRollupKey generates the key for an event's rollup view.
func EventRollupKey(eventID string) string {
	return PrefixRollup + eventID
}

// SnapshotMetaKey generates the key for an event's snapshot metadata.
func SnapshotMetaKey(eventID string) string {
	return PrefixMeta + eventID
}

// EventIndexKey generates the key of the set indexing an event's student keys.
func EventIndexKey(eventID string) string {
	return PrefixIndex + eventID
}

// RosterKey generates the key for an event's cached roster.
func RosterKey(eventID string) string {
	return PrefixRoster + eventID
}

// RefreshLockKey generates the key of the cross-replica refresh lock.
func RefreshLockKey(eventID string) string {
	return PrefixLock + "refresh:" + eventID
}
