package repository

import (
	"context"
	"sync"
	"time"

	"github.com/avrach/go_storefront/internal/domain"
	"github.com/google/uuid"
)

// MemoryCartRepository keeps carts in a map. It backs unit tests and the
// no-mongo development mode of cmd/server.
type MemoryCartRepository struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart
}

func NewMemoryCartRepository() *MemoryCartRepository {
	return &MemoryCartRepository{carts: make(map[string]*domain.Cart)}
}

func (m *MemoryCartRepository) GetCart(_ context.Context, ownerID string) (*domain.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cart, ok := m.carts[ownerID]
	if !ok {
		return nil, ErrCartNotFound
	}
	return cart.Clone(), nil
}

func (m *MemoryCartRepository) IncrementLine(_ context.Context, ownerID string, item domain.CartItem, delta int) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	cart, ok := m.carts[ownerID]
	if !ok {
		cart = &domain.Cart{
			ID:        uuid.NewString(),
			OwnerID:   ownerID,
			CreatedAt: now,
		}
		m.carts[ownerID] = cart
	}

	if line := cart.FindLine(item.ServiceID, item.OptionID); line != nil {
		line.Quantity += delta
		line.UnitPrice = item.UnitPrice
		if line.Quantity <= 0 {
			removeItemByID(cart, line.ID)
		}
	} else if delta > 0 {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:        uuid.NewString(),
			ServiceID: item.ServiceID,
			OptionID:  item.OptionID,
			Quantity:  delta,
			UnitPrice: item.UnitPrice,
			AddedAt:   now,
		})
	}
	cart.UpdatedAt = now
	return cart.Clone(), nil
}

func (m *MemoryCartRepository) SetItemQuantity(_ context.Context, ownerID, itemID string, quantity int) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[ownerID]
	if !ok {
		return nil, ErrCartNotFound
	}
	item := cart.FindItem(itemID)
	if item == nil {
		return nil, ErrItemNotFound
	}
	if quantity <= 0 {
		removeItemByID(cart, itemID)
	} else {
		item.Quantity = quantity
	}
	cart.UpdatedAt = time.Now()
	return cart.Clone(), nil
}

func (m *MemoryCartRepository) RemoveItem(_ context.Context, ownerID, itemID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[ownerID]
	if !ok {
		return nil, ErrCartNotFound
	}
	if cart.FindItem(itemID) == nil {
		return nil, ErrItemNotFound
	}
	removeItemByID(cart, itemID)
	cart.UpdatedAt = time.Now()
	return cart.Clone(), nil
}

func (m *MemoryCartRepository) DeleteCart(_ context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.carts[ownerID]; !ok {
		return ErrCartNotFound
	}
	delete(m.carts, ownerID)
	return nil
}
