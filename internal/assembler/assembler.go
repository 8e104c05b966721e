package assembler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avrach/go_storefront/internal/domain"
	"github.com/avrach/go_storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyCart            = errors.New("cart is empty, nothing to order")
	ErrInvalidPaymentMethod = errors.New("unknown payment method")
	// Bank-transfer orders enter admin review only with a receipt attached.
	ErrReceiptRequired = errors.New("bank transfer requires a receipt reference")
)

// StaleCartItemError names the cart item whose service changed between
// add-to-cart and checkout, so the UI can prompt its removal.
type StaleCartItemError struct {
	ItemID    string
	ServiceID string
	Reason    string
}

func (e *StaleCartItemError) Error() string {
	return fmt.Sprintf("cart item %s (service %s) is stale: %s", e.ItemID, e.ServiceID, e.Reason)
}

// CartConsumer freezes and clears a cart under the per-cart lock.
// cartsync.Service provides it.
type CartConsumer interface {
	ConsumeCart(ctx context.Context, owner domain.Principal, fn func(cart *domain.Cart) error) error
}

// OrderCreator admits the frozen order into its lifecycle; the state
// machine provides it so creation emits a transition event like every
// other status change.
type OrderCreator interface {
	Create(ctx context.Context, order *domain.Order) error
}

type Request struct {
	Notes         string
	ScheduledDate *time.Time
	PaymentMethod domain.PaymentMethod
	ReceiptRef    string
}

// Assembler freezes a cart into an immutable order. Validation is
// all-or-nothing: one stale item aborts the whole assembly with no side
// effects, and on success order creation and cart clearing happen under
// the same cart lock with no mutation able to interleave.
type Assembler struct {
	carts   CartConsumer
	catalog repository.CatalogRepository
	orders  OrderCreator
}

func New(carts CartConsumer, catalog repository.CatalogRepository, orders OrderCreator) *Assembler {
	return &Assembler{
		carts:   carts,
		catalog: catalog,
		orders:  orders,
	}
}

func (a *Assembler) Assemble(ctx context.Context, owner domain.Principal, req Request) (*domain.Order, error) {
	if !req.PaymentMethod.Valid() {
		return nil, ErrInvalidPaymentMethod
	}
	if req.PaymentMethod == domain.PaymentMethodBankTransfer && req.ReceiptRef == "" {
		return nil, ErrReceiptRequired
	}

	var order *domain.Order
	err := a.carts.ConsumeCart(ctx, owner, func(cart *domain.Cart) error {
		if cart.IsEmpty() {
			return ErrEmptyCart
		}

		items, total, err := a.buildItems(ctx, cart)
		if err != nil {
			return err
		}

		now := time.Now()
		order = &domain.Order{
			ID:            uuid.New(),
			OrderNumber:   domain.NewOrderNumber(now),
			OwnerID:       owner.UserID,
			Items:         items,
			TotalAmount:   total,
			PaymentMethod: req.PaymentMethod,
			PaymentStatus: domain.PaymentStatusPending,
			Notes:         req.Notes,
			ScheduledDate: req.ScheduledDate,
		}

		switch req.PaymentMethod {
		case domain.PaymentMethodBankTransfer:
			order.Status = domain.OrderStatusPendingAdminApproval
			order.BankTransferStatus = domain.BankTransferPendingAdminApproval
			order.ReceiptRef = req.ReceiptRef
		default:
			order.Status = domain.OrderStatusPending
		}

		return a.orders.Create(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// buildItems re-validates every cart line against the catalog and snapshots
// prices as of assembly time. Prices a stale optimistic cart might carry
// are ignored; the catalog is the only price authority at checkout.
func (a *Assembler) buildItems(ctx context.Context, cart *domain.Cart) ([]domain.OrderItem, decimal.Decimal, error) {
	items := make([]domain.OrderItem, 0, len(cart.Items))
	total := decimal.Zero

	for _, cartItem := range cart.Items {
		svc, err := a.catalog.GetService(ctx, cartItem.ServiceID)
		if err != nil {
			if errors.Is(err, repository.ErrServiceNotFound) {
				return nil, decimal.Zero, &StaleCartItemError{
					ItemID:    cartItem.ID,
					ServiceID: cartItem.ServiceID,
					Reason:    "service no longer exists",
				}
			}
			return nil, decimal.Zero, err
		}
		if !svc.Sellable() {
			return nil, decimal.Zero, &StaleCartItemError{
				ItemID:    cartItem.ID,
				ServiceID: cartItem.ServiceID,
				Reason:    "service is no longer available",
			}
		}
		unitPrice, ok := svc.UnitPriceFor(cartItem.OptionID)
		if !ok {
			return nil, decimal.Zero, &StaleCartItemError{
				ItemID:    cartItem.ID,
				ServiceID: cartItem.ServiceID,
				Reason:    "selected option no longer exists",
			}
		}

		lineTotal := unitPrice.Mul(decimal.NewFromInt(int64(cartItem.Quantity)))
		items = append(items, domain.OrderItem{
			ServiceID:   cartItem.ServiceID,
			ServiceName: svc.Name,
			OptionID:    cartItem.OptionID,
			Quantity:    cartItem.Quantity,
			UnitPrice:   unitPrice,
			LineTotal:   lineTotal,
		})
		total = total.Add(lineTotal)
	}

	return items, total, nil
}
