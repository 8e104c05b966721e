package notification

import (
	"context"
	"log"

	"github.com/avrach/go_storefront/internal/domain"
)

// Dispatcher receives order transition events. Delivery is best-effort:
// a dispatch failure is logged and never rolls back the transition that
// produced it.
type Dispatcher interface {
	OrderTransitioned(ctx context.Context, order *domain.Order, previous, next domain.OrderStatus)
}

// LogDispatcher is the fallback when no broker is configured.
type LogDispatcher struct{}

func (LogDispatcher) OrderTransitioned(_ context.Context, order *domain.Order, previous, next domain.OrderStatus) {
	log.Printf("order %s (%s): %s -> %s", order.OrderNumber, order.ID, previous, next)
}
