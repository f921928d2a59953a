package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/redbco/redb-sqlgateway/internal/database"
	"github.com/redbco/redb-sqlgateway/pkg/logger"
)

const keyPrefix = "sqlgw:query:"

// Config holds the Redis cache settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// QueryCache stores successful query results in Redis. Every failure to
// reach Redis degrades to a cache miss; callers never see a cache error.
type QueryCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config, log *logger.Logger) (*QueryCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &QueryCache{
		client: client,
		ttl:    ttl,
		logger: log,
	}, nil
}

// Key derives the cache key for one query execution.
func (c *QueryCache) Key(connection, databaseName, sql string, maxRows int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%d", connection, databaseName, sql, maxRows)
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached result for key, or a miss.
func (c *QueryCache) Get(ctx context.Context, key string) (*database.QueryResult, bool) {
	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		if c.logger != nil {
			c.logger.Warnf("Cache read failed, falling back to the engine: %v", err)
		}
		return nil, false
	}

	var result database.QueryResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		if c.logger != nil {
			c.logger.Warnf("Discarding unreadable cache entry %s: %v", key, err)
		}
		return nil, false
	}

	return &result, true
}

// Put stores a successful query result under key.
func (c *QueryCache) Put(ctx context.Context, key string, result *database.QueryResult) {
	data, err := json.Marshal(result)
	if err != nil {
		if c.logger != nil {
			c.logger.Warnf("Failed to marshal result for cache: %v", err)
		}
		return
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.Warnf("Cache write failed: %v", err)
	}
}

// Ping verifies the Redis connection is alive.
func (c *QueryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close shuts the Redis client down.
func (c *QueryCache) Close() error {
	return c.client.Close()
}
