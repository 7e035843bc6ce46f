// Package statuscache mirrors job execution state into Redis so other
// processes can read it without touching the task database. The cache is
// optional; a nil *Cache is safe to call and does nothing.
package statuscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mediapress/internal/config"
)

const (
	keyPrefix  = "mediapress:exec:"
	defaultTTL = 24 * time.Hour
)

// ErrNotFound reports that no state is cached for a handle.
var ErrNotFound = errors.New("statuscache: handle not found")

// Cache is a thin JSON key/value layer over Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis per configuration. Returns nil when the cache is
// disabled; callers use the nil receiver directly.
func New(ctx context.Context, cfg *config.Config) (*Cache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
	}
	return &Cache{client: client, ttl: defaultTTL}, nil
}

// Put stores value under the handle, replacing any previous state.
func (c *Cache) Put(ctx context.Context, handle string, value any) error {
	if c == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode state for %s: %w", handle, err)
	}
	return c.client.Set(ctx, keyPrefix+handle, payload, c.ttl).Err()
}

// Get loads the state for a handle into dest.
func (c *Cache) Get(ctx context.Context, handle string, dest any) error {
	if c == nil {
		return ErrNotFound
	}
	payload, err := c.client.Get(ctx, keyPrefix+handle).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load state for %s: %w", handle, err)
	}
	return json.Unmarshal(payload, dest)
}

// Close releases the connection pool.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
