package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cachePoolSize    = 10
	cacheDialTimeout = 5 * time.Second
	scanBatch        = 100
)

// Cache is a thin redis client for short-lived string values.
type Cache struct {
	client *redis.Client
}

// ConnectCache dials addr and pings it; the client is closed again when the
// ping fails.
func ConnectCache(ctx context.Context, addr string) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		PoolSize:    cachePoolSize,
		DialTimeout: cacheDialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cacheDialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return &Cache{client: client}, nil
}

func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Keys returns every key matching pattern. It walks the keyspace with SCAN
// so a large cache is not blocked.
func (c *Cache) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", pattern, err)
	}
	return keys, nil
}

// Values fetches keys in one round trip. Missing or expired keys are left
// out of the result.
func (c *Cache) Values(ctx context.Context, keys []string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return values, nil
	}

	raw, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget: %w", err)
	}
	for i, v := range raw {
		if s, ok := v.(string); ok {
			values[keys[i]] = s
		}
	}
	return values, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}
