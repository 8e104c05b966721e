package cartsync

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/avrach/go_storefront/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := NewRedisCache(client)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return cache, mr, cleanup
}

func TestCacheGet_Success(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	cart := &domain.Cart{
		OwnerID: "user-1",
		Items: []domain.CartItem{
			{ID: "item-1", ServiceID: "svc-lawn", Quantity: 2},
		},
		UpdatedAt: time.Now(),
	}
	cartJSON, _ := json.Marshal(cart)
	mr.Set(cacheKey("user-1"), string(cartJSON))

	result, err := cache.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", result.OwnerID)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "item-1", result.Items[0].ID)
}

func TestCacheGet_Miss(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()

	_, err := cache.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCacheGet_CorruptData(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	mr.Set(cacheKey("user-1"), "not json")

	_, err := cache.Get(context.Background(), "user-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestCacheSet_RoundTripsAndExpires(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	cart := &domain.Cart{OwnerID: "user-1", Items: []domain.CartItem{
		{ID: "item-1", ServiceID: "svc-lawn", Quantity: 1},
	}}
	require.NoError(t, cache.Set(context.Background(), "user-1", cart))

	got, err := cache.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, cart.OwnerID, got.OwnerID)

	// TTL is base plus jitter; it must be set and within the jitter band.
	ttl := mr.TTL(cacheKey("user-1"))
	assert.GreaterOrEqual(t, ttl, 15*time.Minute)
	assert.LessOrEqual(t, ttl, 20*time.Minute)
}

func TestCacheDelete_RemovesEntry(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()

	cart := &domain.Cart{OwnerID: "user-1"}
	require.NoError(t, cache.Set(context.Background(), "user-1", cart))
	require.NoError(t, cache.Delete(context.Background(), "user-1"))

	_, err := cache.Get(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCacheDelete_MissingKeyIsNotAnError(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()

	assert.NoError(t, cache.Delete(context.Background(), "nobody"))
}
