package repositories

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requires Redis on localhost:6379, skipped otherwise
const testRedisAddr = "localhost:6379"

type countingDirectory struct {
	mu     sync.Mutex
	active map[string]struct{}
	calls  [][]string
}

func (d *countingDirectory) ActiveCategories(_ context.Context, ids []string) (map[string]struct{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, append([]string(nil), ids...))
	out := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := d.active[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func setupTestCache(t *testing.T, next *countingDirectory) *CachedCategoryDirectory {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}
	prefix := "taskhub-test:" + t.Name() + ":"
	cache := NewCachedCategoryDirectory(client, next, prefix, time.Minute, log.New(io.Discard, "", 0))
	t.Cleanup(func() {
		_ = cache.Invalidate(ctx, "plumbing", "retired", "cleaning")
		client.Close()
	})
	return cache
}

func TestCachedCategoryDirectory_ReadThrough(t *testing.T) {
	next := &countingDirectory{active: map[string]struct{}{"plumbing": {}, "cleaning": {}}}
	cache := setupTestCache(t, next)
	ctx := context.Background()

	active, err := cache.ActiveCategories(ctx, []string{"plumbing", "retired"})
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"plumbing": {}}, active)

	active, err = cache.ActiveCategories(ctx, []string{"plumbing", "retired", "cleaning"})
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"plumbing": {}, "cleaning": {}}, active)

	require.Len(t, next.calls, 2)
	assert.Equal(t, []string{"cleaning"}, next.calls[1])

	require.NoError(t, cache.Invalidate(ctx, "plumbing"))
	_, err = cache.ActiveCategories(ctx, []string{"plumbing"})
	require.NoError(t, err)
	assert.Len(t, next.calls, 3)
}

func TestCachedCategoryDirectory_FallsBackWhenRedisDown(t *testing.T) {
	next := &countingDirectory{active: map[string]struct{}{"plumbing": {}}}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	cache := NewCachedCategoryDirectory(client, next, "x:", time.Minute, log.New(io.Discard, "", 0))

	active, err := cache.ActiveCategories(context.Background(), []string{"plumbing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"plumbing": {}}, active)
	assert.Len(t, next.calls, 1)
}
