package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prophezy/oracle-resolver/internal/domain"
)

var directoryKey = key("directory", "views")

// DirectoryCache implements domain.DirectoryCache. The whole merged directory
// is stored as one JSON string with a short TTL; resolutions invalidate it.
type DirectoryCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewDirectoryCache creates a DirectoryCache with the given TTL. A zero TTL
// defaults to 30 seconds.
func NewDirectoryCache(c *Client, ttl time.Duration) *DirectoryCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &DirectoryCache{rdb: c.Underlying(), ttl: ttl}
}

// SetViews replaces the cached directory.
func (dc *DirectoryCache) SetViews(ctx context.Context, views []domain.MarketView) error {
	data, err := json.Marshal(views)
	if err != nil {
		return fmt.Errorf("redis: marshal directory: %w", err)
	}
	if err := dc.rdb.Set(ctx, directoryKey, data, dc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set directory: %w", err)
	}
	return nil
}

// GetViews returns the cached directory or domain.ErrNotFound.
func (dc *DirectoryCache) GetViews(ctx context.Context) ([]domain.MarketView, error) {
	data, err := dc.rdb.Get(ctx, directoryKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get directory: %w", err)
	}

	var views []domain.MarketView
	if err := json.Unmarshal(data, &views); err != nil {
		return nil, fmt.Errorf("redis: unmarshal directory: %w", err)
	}
	return views, nil
}

// Invalidate drops the cached directory.
func (dc *DirectoryCache) Invalidate(ctx context.Context) error {
	if err := dc.rdb.Del(ctx, directoryKey).Err(); err != nil {
		return fmt.Errorf("redis: invalidate directory: %w", err)
	}
	return nil
}

var _ domain.DirectoryCache = (*DirectoryCache)(nil)
