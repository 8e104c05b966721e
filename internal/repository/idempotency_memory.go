package repository

import (
	"context"
	"sync"

	"github.com/avrach/go_storefront/internal/domain"
)

type MemoryIdempotencyStore struct {
	mu      sync.RWMutex
	results map[string]*domain.Cart
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{results: make(map[string]*domain.Cart)}
}

func (m *MemoryIdempotencyStore) Get(_ context.Context, key string) (*domain.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cart, ok := m.results[key]
	if !ok {
		return nil, ErrIdempotencyKeyNotFound
	}
	return cart.Clone(), nil
}

func (m *MemoryIdempotencyStore) Put(_ context.Context, key string, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[key] = cart.Clone()
	return nil
}
