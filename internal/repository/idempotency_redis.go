package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avrach/go_storefront/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisIdempotencyStore remembers mutation results long enough to absorb
// client retry-after-timeout. The per-cart lock in the sync service
// serializes Put against Get for the same key.
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{
		client: client,
		ttl:    24 * time.Hour,
	}
}

func (r *RedisIdempotencyStore) Get(ctx context.Context, key string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, idempotencyKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err2 := json.Unmarshal(data, &cart); err2 != nil {
		return nil, fmt.Errorf("unmarshal stored result failed: %w", err2)
	}
	return &cart, nil
}

func (r *RedisIdempotencyStore) Put(ctx context.Context, key string, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal result failed: %w", err)
	}
	if err := r.client.Set(ctx, idempotencyKey(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idem:%s", key)
}
