package cartsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/avrach/go_storefront/internal/domain"
	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cart not in cache")

// CartCache is the read-side cache in front of the cart repository.
type CartCache interface {
	Get(ctx context.Context, ownerID string) (*domain.Cart, error)
	Set(ctx context.Context, ownerID string, cart *domain.Cart) error
	Delete(ctx context.Context, ownerID string) error
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r RedisCache) Get(ctx context.Context, ownerID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(ownerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err2 := json.Unmarshal(data, &cart); err2 != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err2)
	}
	return &cart, nil
}

func (r RedisCache) Set(ctx context.Context, ownerID string, cart *domain.Cart) error {
	jsonCart, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	// Jitter spreads expiry so a burst of carts does not all miss at once.
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	if err := r.client.Set(ctx, cacheKey(ownerID), jsonCart, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r RedisCache) Delete(ctx context.Context, ownerID string) error {
	if err := r.client.Del(ctx, cacheKey(ownerID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(ownerID string) string {
	return fmt.Sprintf("cart:%s", ownerID)
}

// NoopCache keeps the service wiring uniform when no redis is configured.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (*domain.Cart, error) { return nil, ErrCacheMiss }
func (NoopCache) Set(context.Context, string, *domain.Cart) error   { return nil }
func (NoopCache) Delete(context.Context, string) error              { return nil }
