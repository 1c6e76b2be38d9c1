package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fortuna/janus/internal/participation"
	"github.com/fortuna/janus/internal/store"
)

const indexKeyPrefix = "janus:pindex:"

// RedisCache stores built Season Participation Index snapshots. Aggregates
// are immutable per built season, so snapshots carry no TTL and are safe to
// reuse across runs.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache connection
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisCache{
		client: client,
	}, nil
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Client returns the underlying Redis client
func (rc *RedisCache) Client() *redis.Client {
	return rc.client
}

// HealthCheck pings Redis to verify connection
func (rc *RedisCache) HealthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// StoreIndex snapshots a built participation index.
func (rc *RedisCache) StoreIndex(ctx context.Context, idx *participation.Index) error {
	payload, err := json.Marshal(idx.Records())
	if err != nil {
		return fmt.Errorf("encoding index snapshot: %w", err)
	}

	key := fmt.Sprintf("%s%d", indexKeyPrefix, idx.Season())
	if err := rc.client.Set(ctx, key, payload, 0).Err(); err != nil {
		return fmt.Errorf("storing index snapshot: %w", err)
	}
	return nil
}

// LoadIndex restores a cached participation index for a season. Returns
// (nil, nil) on a cache miss.
func (rc *RedisCache) LoadIndex(ctx context.Context, season int) (*participation.Index, error) {
	key := fmt.Sprintf("%s%d", indexKeyPrefix, season)
	payload, err := rc.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading index snapshot: %w", err)
	}

	var records []store.ParticipationRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("decoding index snapshot: %w", err)
	}

	return participation.NewIndex(season, records), nil
}

// InvalidateIndex drops a season's snapshot (used after upstream rebuilds).
func (rc *RedisCache) InvalidateIndex(ctx context.Context, season int) error {
	key := fmt.Sprintf("%s%d", indexKeyPrefix, season)
	return rc.client.Del(ctx, key).Err()
}
