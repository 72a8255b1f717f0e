package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	mr := miniredis.RunT(t)
	client := NewRedisClient(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStore(client, "lms:")
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr, store := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "course:1", []byte(`{"title":"Go"}`), time.Minute))
	assert.True(t, mr.Exists("lms:course:1"))

	val, ok, err := store.Get(ctx, "course:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"title":"Go"}`, string(val))

	require.NoError(t, store.Delete(ctx, "course:1"))
	_, ok, err = store.Get(ctx, "course:1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreExpiry(t *testing.T) {
	mr, store := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Second))
	mr.FastForward(2 * time.Second)

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	_, ok, _ := store.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = store.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryStoreInvalidate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Set(ctx, "cms:demo:1", []byte("a"), time.Minute)
	_ = store.Set(ctx, "cms:acme:1", []byte("b"), time.Minute)

	store.Invalidate("cms:demo:")

	_, ok, _ := store.Get(ctx, "cms:demo:1")
	assert.False(t, ok)
	_, ok, _ = store.Get(ctx, "cms:acme:1")
	assert.True(t, ok)
}

func TestTokenDenylist(t *testing.T) {
	_, store := setupRedisStore(t)
	denylist := NewTokenDenylist(store)
	ctx := context.Background()

	revoked, err := denylist.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, denylist.Revoke(ctx, "jti-1", time.Hour))
	revoked, err = denylist.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	require.NoError(t, denylist.Revoke(ctx, "jti-2", -time.Second))
	revoked, _ = denylist.IsRevoked(ctx, "jti-2")
	assert.False(t, revoked)
}
