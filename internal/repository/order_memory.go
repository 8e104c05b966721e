package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/avrach/go_storefront/internal/domain"
	"github.com/google/uuid"
)

// MemoryOrderRepository mirrors the postgres implementation's guarantees,
// including the compare-and-set in UpdateStatusGuarded, for tests and the
// no-postgres development mode.
type MemoryOrderRepository struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*domain.Order
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[uuid.UUID]*domain.Order)}
}

func (m *MemoryOrderRepository) CreateOrder(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.orders {
		if existing.OrderNumber == order.OrderNumber {
			return ErrDuplicateOrderNumber
		}
	}
	now := time.Now()
	stored := order.Clone()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.orders[order.ID] = stored
	order.CreatedAt = now
	order.UpdatedAt = now
	return nil
}

func (m *MemoryOrderRepository) GetOrder(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (m *MemoryOrderRepository) ListOrdersByOwner(_ context.Context, ownerID string) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orders []*domain.Order
	for _, order := range m.orders {
		if order.OwnerID == ownerID {
			orders = append(orders, order.Clone())
		}
	}
	sortOrdersNewestFirst(orders)
	return orders, nil
}

func (m *MemoryOrderRepository) ListOrders(_ context.Context) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := make([]*domain.Order, 0, len(m.orders))
	for _, order := range m.orders {
		orders = append(orders, order.Clone())
	}
	sortOrdersNewestFirst(orders)
	return orders, nil
}

func (m *MemoryOrderRepository) UpdateStatusGuarded(_ context.Context, id uuid.UUID, expected domain.OrderStatus, patch StatusPatch) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if order.Status != expected {
		return nil, ErrStaleOrderState
	}

	order.Status = patch.Status
	order.PaymentStatus = patch.PaymentStatus
	order.BankTransferStatus = patch.BankTransferStatus
	if patch.ReceiptRef != nil {
		order.ReceiptRef = *patch.ReceiptRef
	}
	if patch.AdminNotes != nil {
		order.AdminNotes = *patch.AdminNotes
	}
	if patch.AdminApprovedAt != nil {
		t := *patch.AdminApprovedAt
		order.AdminApprovedAt = &t
	}
	order.UpdatedAt = time.Now()
	return order.Clone(), nil
}

func sortOrdersNewestFirst(orders []*domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
