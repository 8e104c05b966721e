package assembler

import (
	"context"
	"testing"
	"time"

	"github.com/avrach/go_storefront/internal/cartsync"
	"github.com/avrach/go_storefront/internal/domain"
	"github.com/avrach/go_storefront/internal/notification"
	"github.com/avrach/go_storefront/internal/payment"
	"github.com/avrach/go_storefront/internal/repository"
	"github.com/avrach/go_storefront/internal/statemachine"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var owner = domain.Principal{UserID: "user-1"}

type approveAll struct{}

func (approveAll) Outcome() (bool, string) { return true, "" }

type fixture struct {
	sut     *Assembler
	sync    *cartsync.Service
	catalog *repository.MemoryCatalogRepository
	orders  *repository.MemoryOrderRepository
}

func newFixture(services ...*domain.Service) *fixture {
	catalog := repository.NewMemoryCatalogRepository(services...)
	orders := repository.NewMemoryOrderRepository()
	sync := cartsync.NewService(
		repository.NewMemoryCartRepository(),
		catalog,
		repository.NewMemoryIdempotencyStore(),
		cartsync.NoopCache{},
	)
	machine := statemachine.New(orders, payment.NewStubGateway(approveAll{}), notification.LogDispatcher{})
	return &fixture{
		sut:     New(sync, catalog, machine),
		sync:    sync,
		catalog: catalog,
		orders:  orders,
	}
}

func lawnService() *domain.Service {
	return &domain.Service{
		ID:        "svc-lawn",
		Name:      "Lawn Mowing",
		Price:     decimal.NewFromInt(40),
		Active:    true,
		Available: true,
	}
}

func snowService() *domain.Service {
	return &domain.Service{
		ID:        "svc-snow",
		Name:      "Snow Removal",
		Price:     decimal.NewFromInt(60),
		Active:    true,
		Available: true,
	}
}

func (f *fixture) addToCart(t *testing.T, serviceID string, qty int) {
	t.Helper()
	intent := domain.NewAddIntent(serviceID, "", qty)
	_, err := f.sync.Mutate(context.Background(), owner, intent, intent.ID.String())
	require.NoError(t, err)
}

func TestAssemble_EmptyCartRejected(t *testing.T) {
	f := newFixture(lawnService())

	_, err := f.sut.Assemble(context.Background(), owner, Request{PaymentMethod: domain.PaymentMethodCard})

	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestAssemble_UnknownPaymentMethodRejected(t *testing.T) {
	f := newFixture(lawnService())
	f.addToCart(t, "svc-lawn", 1)

	_, err := f.sut.Assemble(context.Background(), owner, Request{PaymentMethod: "crypto"})

	assert.ErrorIs(t, err, ErrInvalidPaymentMethod)
}

func TestAssemble_CardOrderSnapshotsCartAndClearsIt(t *testing.T) {
	f := newFixture(lawnService(), snowService())
	f.addToCart(t, "svc-lawn", 2)
	f.addToCart(t, "svc-snow", 1)

	order, err := f.sut.Assemble(context.Background(), owner, Request{PaymentMethod: domain.PaymentMethodCard})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, domain.PaymentStatusPending, order.PaymentStatus)
	require.Len(t, order.Items, 2)
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(140)))
	assert.True(t, order.TotalAmount.Equal(order.ComputeTotal()))
	assert.Regexp(t, `^ORD-\d{8}-[0-9A-F]{8}$`, order.OrderNumber)

	cart, err := f.sync.GetCart(context.Background(), owner)
	require.NoError(t, err)
	assert.Empty(t, cart.Items, "a consumed cart must be empty")

	stored, err := f.orders.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, stored.OrderNumber)
}

func TestAssemble_PricesComeFromCatalogNotCart(t *testing.T) {
	f := newFixture(lawnService())
	f.addToCart(t, "svc-lawn", 1)

	// Price changed between add-to-cart and checkout; the order must carry
	// the current catalog price.
	updated := lawnService()
	updated.Price = decimal.NewFromInt(50)
	f.catalog.Put(updated)

	order, err := f.sut.Assemble(context.Background(), owner, Request{PaymentMethod: domain.PaymentMethodCard})
	require.NoError(t, err)

	require.Len(t, order.Items, 1)
	assert.True(t, order.Items[0].UnitPrice.Equal(decimal.NewFromInt(50)))
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(50)))
}

func TestAssemble_StaleItemAbortsWholeOrder(t *testing.T) {
	f := newFixture(lawnService(), snowService())
	f.addToCart(t, "svc-lawn", 1)
	f.addToCart(t, "svc-snow", 1)

	// One of the two services goes unavailable before checkout.
	gone := snowService()
	gone.Available = false
	f.catalog.Put(gone)

	_, err := f.sut.Assemble(context.Background(), owner, Request{PaymentMethod: domain.PaymentMethodCard})

	var stale *StaleCartItemError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, "svc-snow", stale.ServiceID)

	// All-or-nothing: no order exists and the cart is untouched.
	orders, listErr := f.orders.ListOrdersByOwner(context.Background(), owner.UserID)
	require.NoError(t, listErr)
	assert.Empty(t, orders)

	cart, cartErr := f.sync.GetCart(context.Background(), owner)
	require.NoError(t, cartErr)
	assert.Len(t, cart.Items, 2)
}

func TestAssemble_BankTransferWithoutReceiptRejected(t *testing.T) {
	f := newFixture(lawnService())
	f.addToCart(t, "svc-lawn", 1)

	_, err := f.sut.Assemble(context.Background(), owner, Request{
		PaymentMethod: domain.PaymentMethodBankTransfer,
	})

	assert.ErrorIs(t, err, ErrReceiptRequired)
}

func TestAssemble_BankTransferEntersAdminReview(t *testing.T) {
	f := newFixture(lawnService())
	f.addToCart(t, "svc-lawn", 1)

	order, err := f.sut.Assemble(context.Background(), owner, Request{
		PaymentMethod: domain.PaymentMethodBankTransfer,
		ReceiptRef:    "upload/receipt-77.pdf",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusPendingAdminApproval, order.Status)
	assert.Equal(t, domain.BankTransferPendingAdminApproval, order.BankTransferStatus)
	assert.Equal(t, domain.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, "upload/receipt-77.pdf", order.ReceiptRef)
}

func timePtr(t *testing.T) *time.Time {
	t.Helper()
	v := time.Date(2026, 9, 15, 9, 0, 0, 0, time.UTC)
	return &v
}

func TestAssemble_KeepsNotesAndSchedule(t *testing.T) {
	f := newFixture(lawnService())
	f.addToCart(t, "svc-lawn", 1)

	scheduled := timePtr(t)
	order, err := f.sut.Assemble(context.Background(), owner, Request{
		Notes:         "ring the back doorbell",
		ScheduledDate: scheduled,
		PaymentMethod: domain.PaymentMethodCard,
	})
	require.NoError(t, err)

	assert.Equal(t, "ring the back doorbell", order.Notes)
	require.NotNil(t, order.ScheduledDate)
	assert.True(t, order.ScheduledDate.Equal(*scheduled))
}
