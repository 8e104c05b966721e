package repository

import (
	"context"
	"errors"
	"time"

	"github.com/avrach/go_storefront/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrCartNotFound           = errors.New("cart not found")
	ErrItemNotFound           = errors.New("item not found in cart")
	ErrOrderNotFound          = errors.New("order not found")
	ErrServiceNotFound        = errors.New("service not found")
	ErrStaleOrderState        = errors.New("order state changed since read")
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// CartRepository persists one mutable cart per owner. Every mutation
// returns the full resulting cart so the caller always hands a complete
// snapshot back to the client.
type CartRepository interface {
	GetCart(ctx context.Context, ownerID string) (*domain.Cart, error)
	// IncrementLine adds delta to the (service, option) line, creating the
	// cart and the line as needed. A resulting quantity <= 0 removes the line.
	IncrementLine(ctx context.Context, ownerID string, item domain.CartItem, delta int) (*domain.Cart, error)
	// SetItemQuantity overwrites an existing item's quantity; <= 0 removes it.
	SetItemQuantity(ctx context.Context, ownerID, itemID string, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, ownerID, itemID string) (*domain.Cart, error)
	DeleteCart(ctx context.Context, ownerID string) error
}

// StatusPatch carries the fields a state transition is allowed to touch.
// Order items and totals are immutable after creation.
type StatusPatch struct {
	Status             domain.OrderStatus
	PaymentStatus      domain.PaymentStatus
	BankTransferStatus domain.BankTransferStatus
	ReceiptRef         *string
	AdminNotes         *string
	AdminApprovedAt    *time.Time
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersByOwner(ctx context.Context, ownerID string) ([]*domain.Order, error)
	ListOrders(ctx context.Context) ([]*domain.Order, error)
	// UpdateStatusGuarded applies patch only if the row still carries
	// expected as its current status. Losers of a concurrent transition
	// get ErrStaleOrderState and must re-fetch.
	UpdateStatusGuarded(ctx context.Context, id uuid.UUID, expected domain.OrderStatus, patch StatusPatch) (*domain.Order, error)
}

type CatalogRepository interface {
	GetService(ctx context.Context, serviceID string) (*domain.Service, error)
	ListServices(ctx context.Context) ([]*domain.Service, error)
}

// IdempotencyStore remembers the cart snapshot a mutation produced so a
// redelivered request returns the prior result instead of re-applying.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*domain.Cart, error)
	Put(ctx context.Context, key string, cart *domain.Cart) error
}
