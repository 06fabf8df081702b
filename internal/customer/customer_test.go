package customer

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathanyu/mini-ledger/internal/seed"
)

type fakeCache struct {
	mu      sync.Mutex
	names   map[int64]string
	getErr  error
	gets    int
	setCall int
}

func newFakeCache() *fakeCache { return &fakeCache{names: map[int64]string{}} }

func (c *fakeCache) Get(ctx context.Context, id int64) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return "", false, c.getErr
	}
	name, ok := c.names[id]
	return name, ok, nil
}

func (c *fakeCache) Set(ctx context.Context, id int64, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setCall++
	c.names[id] = name
	return nil
}

type countingDirectory struct {
	Directory
	calls int
}

func (d *countingDirectory) DisplayName(ctx context.Context, id int64) (string, error) {
	d.calls++
	return d.Directory.DisplayName(ctx, id)
}

func TestMemoryDirectory(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory(seed.Customers())

	ok, err := dir.Exists(ctx, 4)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = dir.Exists(ctx, 999)
	require.NoError(t, err)
	assert.False(t, ok)

	name, err := dir.DisplayName(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "Judah Parham", name)

	_, err = dir.DisplayName(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedDirectory_MissThenHit(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	origin := &countingDirectory{Directory: NewMemoryDirectory(seed.Customers())}
	dir := NewCachedDirectory(cache, origin, nil)

	name, err := dir.DisplayName(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Arisha Barron", name)
	assert.Equal(t, 1, origin.calls)
	assert.Equal(t, 1, cache.setCall)

	name, err = dir.DisplayName(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Arisha Barron", name)
	assert.Equal(t, 1, origin.calls, "second read is served from cache")
}

func TestCachedDirectory_UnknownIsNotCached(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	dir := NewCachedDirectory(cache, NewMemoryDirectory(seed.Customers()), nil)

	ok, err := dir.Exists(ctx, 999)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, cache.setCall)
}

func TestCachedDirectory_CacheErrorFallsBack(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	cache.getErr = errors.New("connection refused")
	dir := NewCachedDirectory(cache, NewMemoryDirectory(seed.Customers()), nil)

	ok, err := dir.Exists(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCachedDirectory_UnreachableRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	dir := NewCachedDirectory(NewRedisCache(client, time.Minute), NewMemoryDirectory(seed.Customers()), nil)

	name, err := dir.DisplayName(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "Rhonda Church", name)
}

func TestRedisCache_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	cache := NewRedisCache(client, time.Minute)
	id := time.Now().UnixNano()
	defer client.Del(ctx, customerKey(id))

	_, ok, err := cache.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, id, "Branden Gibson"))

	name, ok, err := cache.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Branden Gibson", name)
}
