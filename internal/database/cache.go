package database

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrCacheUnavailable is returned when Redis has not been connected.
var ErrCacheUnavailable = errors.New("cache not connected")

const (
	// Cache key prefixes
	CacheKeyBan      = "license:ban:"
	CacheKeyOverview = "license:admin:overview"

	// Cache TTLs
	CacheTTLBan      = 30 * time.Second
	CacheTTLOverview = 1 * time.Minute
)

// CacheGet retrieves a value from Redis cache and unmarshals it into dest
func CacheGet(key string, dest interface{}) error {
	if Redis == nil {
		return ErrCacheUnavailable
	}
	ctx := context.Background()
	data, err := Redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// CacheSet stores a value in Redis cache with TTL
func CacheSet(key string, value interface{}, ttl time.Duration) error {
	if Redis == nil {
		return ErrCacheUnavailable
	}
	ctx := context.Background()
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return Redis.Set(ctx, key, data, ttl).Err()
}

// CacheDelete removes keys from Redis cache
func CacheDelete(keys ...string) error {
	if Redis == nil || len(keys) == 0 {
		return nil
	}
	ctx := context.Background()
	return Redis.Del(ctx, keys...).Err()
}

// InvalidateBanCache clears the cached ban state for a machine
func InvalidateBanCache(machineID string) {
	CacheDelete(CacheKeyBan + machineID)
}

// InvalidateOverviewCache clears the cached admin overview
func InvalidateOverviewCache() {
	CacheDelete(CacheKeyOverview)
}
