package repositories

import (
	"context"
	"log"
	"time"

	"github.com/chukwumela909/taskhub-server/domain"

	"github.com/redis/go-redis/v9"
)

const (
	categoryActive   = "1"
	categoryInactive = "0"
)

// CachedCategoryDirectory answers category lookups from Redis and falls
// back to the wrapped directory on a miss. Redis failures are logged and
// bypass the cache.
type CachedCategoryDirectory struct {
	client *redis.Client
	next   domain.CategoryDirectory
	prefix string
	ttl    time.Duration
	logger *log.Logger
}

func NewCachedCategoryDirectory(client *redis.Client, next domain.CategoryDirectory, prefix string, ttl time.Duration, logger *log.Logger) *CachedCategoryDirectory {
	return &CachedCategoryDirectory{
		client: client,
		next:   next,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *CachedCategoryDirectory) ActiveCategories(ctx context.Context, ids []string) (map[string]struct{}, error) {
	if len(ids) == 0 {
		return map[string]struct{}{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.prefix + id
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Println("category cache unavailable:", err)
		return c.next.ActiveCategories(ctx, ids)
	}

	active := make(map[string]struct{}, len(ids))
	var misses []string
	for i, v := range values {
		switch v {
		case categoryActive:
			active[ids[i]] = struct{}{}
		case categoryInactive:
		default:
			misses = append(misses, ids[i])
		}
	}
	if len(misses) == 0 {
		return active, nil
	}

	loaded, err := c.next.ActiveCategories(ctx, misses)
	if err != nil {
		return nil, err
	}
	pipe := c.client.Pipeline()
	for _, id := range misses {
		state := categoryInactive
		if _, ok := loaded[id]; ok {
			active[id] = struct{}{}
			state = categoryActive
		}
		pipe.Set(ctx, c.prefix+id, state, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Println("failed to fill category cache:", err)
	}
	return active, nil
}

// Invalidate drops cached entries so the next lookup reads through.
func (c *CachedCategoryDirectory) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.prefix + id
	}
	return c.client.Del(ctx, keys...).Err()
}
