package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opsvigil/vigil/pkg/model"
)

// ResultCache is an optional Redis-backed cache for detection results,
// keyed by incident id. The engine itself stays stateless; only the HTTP
// layer consults the cache.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResultCache connects a Redis client and verifies it with a ping.
func NewResultCache(ctx context.Context, addr string, ttl time.Duration) (*ResultCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &ResultCache{client: client, ttl: ttl}, nil
}

// Close releases the Redis connection.
func (c *ResultCache) Close() error {
	return c.client.Close()
}

func cacheKey(incidentID string) string {
	return "vigil:result:" + incidentID
}

// Get returns the cached result for the incident, or (nil, nil) on a miss.
func (c *ResultCache) Get(ctx context.Context, incidentID string) (*model.DetectionResult, error) {
	data, err := c.client.Get(ctx, cacheKey(incidentID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	var result model.DetectionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return &result, nil
}

// Set stores the result under the configured TTL.
func (c *ResultCache) Set(ctx context.Context, result *model.DetectionResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(result.IncidentID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}
