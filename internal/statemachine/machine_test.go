package statemachine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avrach/go_storefront/internal/domain"
	"github.com/avrach/go_storefront/internal/payment"
	"github.com/avrach/go_storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	customer = domain.Principal{UserID: "user-1"}
	admin    = domain.Principal{UserID: "admin-1", Admin: true}
)

// scriptedGateway answers each Charge call with the next scripted result.
type scriptedGateway struct {
	mu      sync.Mutex
	results []payment.ChargeResult
	errs    []error
	calls   int
}

func (g *scriptedGateway) Charge(context.Context, *domain.Order) (payment.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	g.calls++
	var err error
	if i < len(g.errs) {
		err = g.errs[i]
	}
	var res payment.ChargeResult
	if i < len(g.results) {
		res = g.results[i]
	}
	return res, err
}

// recordingDispatcher captures transitions for assertion.
type recordingDispatcher struct {
	mu          sync.Mutex
	transitions []string
}

func (d *recordingDispatcher) OrderTransitioned(_ context.Context, _ *domain.Order, previous, next domain.OrderStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transitions = append(d.transitions, string(previous)+"->"+string(next))
}

func (d *recordingDispatcher) all() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.transitions...)
}

func newMachineForTest(gateway payment.Gateway) (*Machine, *repository.MemoryOrderRepository, *recordingDispatcher) {
	orders := repository.NewMemoryOrderRepository()
	dispatcher := &recordingDispatcher{}
	sut := New(orders, gateway, dispatcher)
	return sut, orders, dispatcher
}

func cardOrder() *domain.Order {
	price := decimal.NewFromInt(40)
	return &domain.Order{
		ID:          uuid.New(),
		OrderNumber: domain.NewOrderNumber(time.Now()),
		OwnerID:     customer.UserID,
		Items: []domain.OrderItem{
			{ServiceID: "svc-lawn", ServiceName: "Lawn Mowing", Quantity: 1, UnitPrice: price, LineTotal: price},
		},
		TotalAmount:   price,
		Status:        domain.OrderStatusPending,
		PaymentMethod: domain.PaymentMethodCard,
		PaymentStatus: domain.PaymentStatusPending,
	}
}

func bankOrder() *domain.Order {
	order := cardOrder()
	order.PaymentMethod = domain.PaymentMethodBankTransfer
	order.Status = domain.OrderStatusPendingAdminApproval
	order.BankTransferStatus = domain.BankTransferPendingAdminApproval
	order.ReceiptRef = "upload/receipt-1.pdf"
	return order
}

func TestCreate_TotalMustMatchLineTotals(t *testing.T) {
	sut, _, _ := newMachineForTest(&scriptedGateway{})

	order := cardOrder()
	order.TotalAmount = decimal.NewFromInt(999)

	err := sut.Create(context.Background(), order)
	assert.ErrorIs(t, err, ErrTotalMismatch)
}

func TestCreate_EmitsCreationTransition(t *testing.T) {
	sut, _, dispatcher := newMachineForTest(&scriptedGateway{})

	require.NoError(t, sut.Create(context.Background(), cardOrder()))

	assert.Equal(t, []string{"->PENDING"}, dispatcher.all())
}

func TestGet_OwnerCannotProbeOthersOrders(t *testing.T) {
	sut, _, _ := newMachineForTest(&scriptedGateway{})
	order := cardOrder()
	require.NoError(t, sut.Create(context.Background(), order))

	stranger := domain.Principal{UserID: "user-2"}
	_, err := sut.Get(context.Background(), stranger, order.ID)

	// Not-found, not forbidden: existence must not leak.
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)

	got, err := sut.Get(context.Background(), admin, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
}

func TestChargeCard_ApprovalConfirmsAndMarksPaid(t *testing.T) {
	gateway := &scriptedGateway{results: []payment.ChargeResult{{TransactionID: "TXN-1", Approved: true}}}
	sut, _, dispatcher := newMachineForTest(gateway)
	order := cardOrder()
	require.NoError(t, sut.Create(context.Background(), order))

	updated, err := sut.ChargeCard(context.Background(), customer, order.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusConfirmed, updated.Status)
	assert.Equal(t, domain.PaymentStatusPaid, updated.PaymentStatus)
	assert.Contains(t, dispatcher.all(), "PENDING->CONFIRMED")
}

func TestChargeCard_DeclineKeepsOrderRetryable(t *testing.T) {
	gateway := &scriptedGateway{results: []payment.ChargeResult{
		{Approved: false, DeclineReason: "card_declined"},
		{Approved: true},
	}}
	sut, _, _ := newMachineForTest(gateway)
	order := cardOrder()
	require.NoError(t, sut.Create(context.Background(), order))

	declined, err := sut.ChargeCard(context.Background(), customer, order.ID)
	require.ErrorIs(t, err, ErrChargeDeclined)
	assert.Equal(t, domain.OrderStatusPending, declined.Status)
	assert.Equal(t, domain.PaymentStatusFailed, declined.PaymentStatus)

	// The retry succeeds from the same PENDING state.
	retried, err := sut.ChargeCard(context.Background(), customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, retried.Status)
	assert.Equal(t, domain.PaymentStatusPaid, retried.PaymentStatus)
}

func TestChargeCard_TransportErrorChangesNothing(t *testing.T) {
	gateway := &scriptedGateway{errs: []error{errors.New("gateway unreachable")}}
	sut, orders, _ := newMachineForTest(gateway)
	order := cardOrder()
	require.NoError(t, sut.Create(context.Background(), order))

	_, err := sut.ChargeCard(context.Background(), customer, order.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrChargeDeclined)

	stored, getErr := orders.GetOrder(context.Background(), order.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.OrderStatusPending, stored.Status)
	assert.Equal(t, domain.PaymentStatusPending, stored.PaymentStatus)
}

func TestChargeCard_BankTransferOrderRejected(t *testing.T) {
	sut, _, _ := newMachineForTest(&scriptedGateway{})
	order := bankOrder()
	require.NoError(t, sut.Create(context.Background(), order))

	_, err := sut.ChargeCard(context.Background(), customer, order.ID)
	assert.ErrorIs(t, err, ErrNotCardPayment)
}

func TestAttachReceipt_ReplacesReceiptWhileUnderReview(t *testing.T) {
	sut, _, _ := newMachineForTest(&scriptedGateway{})
	order := bankOrder()
	require.NoError(t, sut.Create(context.Background(), order))

	updated, err := sut.AttachReceipt(context.Background(), customer, order.ID, "upload/receipt-2.pdf")
	require.NoError(t, err)

	assert.Equal(t, "upload/receipt-2.pdf", updated.ReceiptRef)
	assert.Equal(t, domain.OrderStatusPendingAdminApproval, updated.Status)
}

func TestAttachReceipt_EmptyRefRejected(t *testing.T) {
	sut, _, _ := newMachineForTest(&scriptedGateway{})
	order := bankOrder()
	require.NoError(t, sut.Create(context.Background(), order))

	_, err := sut.AttachReceipt(context.Background(), customer, order.ID, "")
	assert.ErrorIs(t, err, ErrReceiptRefRequired)
}

func TestAttachReceipt_CardOrderRejected(t *testing.T) {
	sut, _, _ := newMachineForTest(&scriptedGateway{})
	order := cardOrder()
	require.NoError(t, sut.Create(context.Background(), order))

	_, err := sut.AttachReceipt(context.Background(), customer, order.ID, "upload/receipt-1.pdf")
	assert.ErrorIs(t, err, ErrNotBankTransfer)
}

func TestApprove_ConfirmsAndMarksTransferPaid(t *testing.T) {
	sut, _, dispatcher := newMachineForTest(&scriptedGateway{})
	order := bankOrder()
	require.NoError(t, sut.Create(context.Background(), order))

	updated, err := sut.Approve(context.Background(), admin, order.ID, "matches wire ref 4411")
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusConfirmed, updated.Status)
	assert.Equal(t, domain.PaymentStatusPaid, updated.PaymentStatus)
	assert.Equal(t, domain.BankTransferApproved, updated.BankTransferStatus)
	assert.Equal(t, "matches wire ref 4411", updated.AdminNotes)
	require.NotNil(t, updated.AdminApprovedAt)
	assert.Contains(t, dispatcher.all(), "PENDING_ADMIN_APPROVAL->CONFIRMED")
}

func TestReject_RequiresNotes(t *testing.T) {
	sut, _, _ := newMachineForTest(&scriptedGateway{})
	order := bankOrder()
	require.NoError(t, sut.Create(context.Background(), order))

	_, err := sut.Reject(context.Background(), admin, order.ID, "")
	assert.ErrorIs(t, err, ErrAdminNotesRequired)
}

func TestReject_CancelsWithReason(t *testing.T) {
	sut, _, _ := newMachineForTest(&scriptedGateway{})
	order := bankOrder()
	require.NoError(t, sut.Create(context.Background(), order))

	updated, err := sut.Reject(context.Background(), admin, order.ID, "receipt does not match amount")
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusCancelled, updated.Status)
	assert.Equal(t, domain.BankTransferRejected, updated.BankTransferStatus)
	assert.Equal(t, domain.PaymentStatusPending, updated.PaymentStatus)
	assert.Equal(t, "receipt does not match amount", updated.AdminNotes)
}

func TestApproveAfterReject_SeesStaleState(t *testing.T) {
	sut, _, _ := newMachineForTest(&scriptedGateway{})
	order := bankOrder()
	require.NoError(t, sut.Create(context.Background(), order))

	_, err := sut.Reject(context.Background(), admin, order.ID, "duplicate payment")
	require.NoError(t, err)

	_, err = sut.Approve(context.Background(), admin, order.ID, "")
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestConcurrentApproveAndReject_ExactlyOneWins(t *testing.T) {
	sut, orders, _ := newMachineForTest(&scriptedGateway{})
	order := bankOrder()
	require.NoError(t, sut.Create(context.Background(), order))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = sut.Approve(context.Background(), admin, order.ID, "")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = sut.Reject(context.Background(), admin, order.ID, "looks forged")
	}()
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.True(t,
				errors.Is(err, repository.ErrStaleOrderState) || errors.Is(err, ErrIllegalTransition),
				"loser must see a conflict, got: %v", err)
		}
	}
	assert.Equal(t, 1, winners, "exactly one decision may commit")

	stored, err := orders.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Contains(t, []domain.OrderStatus{
		domain.OrderStatusConfirmed,
		domain.OrderStatusCancelled,
	}, stored.Status)
}

func TestSetStatus_FulfilmentProgression(t *testing.T) {
	gateway := &scriptedGateway{results: []payment.ChargeResult{{Approved: true}}}
	sut, _, _ := newMachineForTest(gateway)
	order := cardOrder()
	require.NoError(t, sut.Create(context.Background(), order))
	_, err := sut.ChargeCard(context.Background(), customer, order.ID)
	require.NoError(t, err)

	inProgress, err := sut.SetStatus(context.Background(), admin, order.ID, domain.OrderStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusInProgress, inProgress.Status)

	completed, err := sut.SetStatus(context.Background(), admin, order.ID, domain.OrderStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, completed.Status)

	refunded, err := sut.SetStatus(context.Background(), admin, order.ID, domain.OrderStatusRefunded)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusRefunded, refunded.Status)
}

func TestSetStatus_IllegalJumpRejected(t *testing.T) {
	sut, _, _ := newMachineForTest(&scriptedGateway{})
	order := cardOrder()
	require.NoError(t, sut.Create(context.Background(), order))

	_, err := sut.SetStatus(context.Background(), admin, order.ID, domain.OrderStatusCompleted)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestSetStatus_CancelTwiceIsIdempotent(t *testing.T) {
	sut, _, _ := newMachineForTest(&scriptedGateway{})
	order := cardOrder()
	require.NoError(t, sut.Create(context.Background(), order))

	first, err := sut.SetStatus(context.Background(), admin, order.ID, domain.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, first.Status)

	second, err := sut.SetStatus(context.Background(), admin, order.ID, domain.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, second.Status)
}

func TestSetStatus_CannotConfirmFailedPayment(t *testing.T) {
	gateway := &scriptedGateway{results: []payment.ChargeResult{{Approved: false, DeclineReason: "card_declined"}}}
	sut, _, _ := newMachineForTest(gateway)
	order := cardOrder()
	require.NoError(t, sut.Create(context.Background(), order))
	_, err := sut.ChargeCard(context.Background(), customer, order.ID)
	require.ErrorIs(t, err, ErrChargeDeclined)

	_, err = sut.SetStatus(context.Background(), admin, order.ID, domain.OrderStatusConfirmed)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestSetStatus_CannotCancelInProgressOrder(t *testing.T) {
	gateway := &scriptedGateway{results: []payment.ChargeResult{{Approved: true}}}
	sut, _, _ := newMachineForTest(gateway)
	order := cardOrder()
	require.NoError(t, sut.Create(context.Background(), order))
	_, err := sut.ChargeCard(context.Background(), customer, order.ID)
	require.NoError(t, err)
	_, err = sut.SetStatus(context.Background(), admin, order.ID, domain.OrderStatusInProgress)
	require.NoError(t, err)

	_, err = sut.SetStatus(context.Background(), admin, order.ID, domain.OrderStatusCancelled)
	assert.ErrorIs(t, err, ErrIllegalTransition)
}
