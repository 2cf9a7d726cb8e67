package metacache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client, DefaultConfig())
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestNewRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	config := DefaultRedisConfig()
	config.Addr = mr.Addr()

	store, err := NewRedisStore(context.Background(), config)
	require.NoError(t, err)
	defer store.Close()
}

func TestNewRedisStore_ConnectionError(t *testing.T) {
	config := DefaultRedisConfig()
	config.Addr = "localhost:99999"

	_, err := NewRedisStore(context.Background(), config)
	assert.Error(t, err)
}

func TestRedisStore_SetAndGet(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, testRoot+"/", []byte("<edmx/>"), 0))
	assert.True(t, mr.Exists("odata:metadata:"+testRoot))

	doc, err := store.Get(ctx, testRoot)
	require.NoError(t, err)
	assert.Equal(t, []byte("<edmx/>"), doc)

	assert.Equal(t, 24*time.Hour, mr.TTL("odata:metadata:"+testRoot))
}

func TestRedisStore_Expiration(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, testRoot, []byte("doc"), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, testRoot)
	assert.True(t, IsCacheMiss(err))

	require.NoError(t, store.Set(ctx, testRoot, []byte("doc"), -1))
	assert.Zero(t, mr.TTL("odata:metadata:"+testRoot))
}

func TestRedisStore_DeleteAndClear(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("unrelated", "keep"))
	require.NoError(t, store.Set(ctx, "http://a.example.com", []byte("a"), 0))
	require.NoError(t, store.Set(ctx, "http://b.example.com", []byte("b"), 0))

	require.NoError(t, store.Delete(ctx, "http://a.example.com"))
	_, err := store.Get(ctx, "http://a.example.com")
	assert.True(t, IsCacheMiss(err))

	require.NoError(t, store.Clear(ctx))
	_, err = store.Get(ctx, "http://b.example.com")
	assert.True(t, IsCacheMiss(err))
	assert.True(t, mr.Exists("unrelated"))
}

func TestRedisStore_ServerError(t *testing.T) {
	store, mr := setupTestRedis(t)
	mr.SetError("LOADING")

	_, err := store.Get(context.Background(), testRoot)
	require.Error(t, err)
	assert.False(t, IsCacheMiss(err))
}
