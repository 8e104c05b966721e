package statemachine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/avrach/go_storefront/internal/domain"
	"github.com/avrach/go_storefront/internal/notification"
	"github.com/avrach/go_storefront/internal/payment"
	"github.com/avrach/go_storefront/internal/repository"
	"github.com/google/uuid"
)

var (
	ErrIllegalTransition  = errors.New("illegal order status transition")
	ErrAdminNotesRequired = errors.New("rejection requires admin notes")
	ErrNotBankTransfer    = errors.New("order is not a bank transfer")
	ErrReceiptRefRequired = errors.New("receipt reference is required")
	ErrNotCardPayment     = errors.New("order is not a card payment")
	ErrNotOrderOwner      = errors.New("order belongs to a different user")
	ErrTotalMismatch      = errors.New("order total does not match line totals")
	// ErrChargeDeclined reports a provider decline; the order stays
	// PENDING with paymentStatus FAILED and may be retried.
	ErrChargeDeclined = errors.New("card charge declined")
)

// Machine drives every order status change. Each transition re-checks the
// status it read through a guarded compare-and-set; of two concurrent
// conflicting transitions exactly one commits and the other sees
// repository.ErrStaleOrderState.
type Machine struct {
	orders     repository.OrderRepository
	gateway    payment.Gateway
	dispatcher notification.Dispatcher
}

func New(orders repository.OrderRepository, gateway payment.Gateway, dispatcher notification.Dispatcher) *Machine {
	return &Machine{
		orders:     orders,
		gateway:    gateway,
		dispatcher: dispatcher,
	}
}

// Create admits a freshly assembled order into the lifecycle.
func (m *Machine) Create(ctx context.Context, order *domain.Order) error {
	switch order.Status {
	case domain.OrderStatusPending, domain.OrderStatusPendingAdminApproval:
	default:
		return ErrIllegalTransition
	}
	if order.PaymentStatus != domain.PaymentStatusPending {
		return ErrIllegalTransition
	}
	if !order.TotalAmount.Equal(order.ComputeTotal()) {
		return ErrTotalMismatch
	}

	if err := m.orders.CreateOrder(ctx, order); err != nil {
		return err
	}
	m.dispatch(ctx, order, "", order.Status)
	return nil
}

func (m *Machine) Get(ctx context.Context, caller domain.Principal, orderID uuid.UUID) (*domain.Order, error) {
	order, err := m.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !caller.Admin && order.OwnerID != caller.UserID {
		// Owners cannot see or even probe other users' orders.
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}

// ChargeCard runs the gateway charge for a PENDING card order. Success
// commits PAID and CONFIRMED in one guarded write so the two fields can
// never disagree. A decline records FAILED and leaves the order PENDING
// for retry; a transport failure changes nothing.
func (m *Machine) ChargeCard(ctx context.Context, caller domain.Principal, orderID uuid.UUID) (*domain.Order, error) {
	order, err := m.Get(ctx, caller, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != domain.PaymentMethodCard {
		return nil, ErrNotCardPayment
	}
	if order.Status != domain.OrderStatusPending {
		return nil, ErrIllegalTransition
	}

	result, err := m.gateway.Charge(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("charge failed: %w", err)
	}

	if !result.Approved {
		updated, updErr := m.orders.UpdateStatusGuarded(ctx, orderID, domain.OrderStatusPending, repository.StatusPatch{
			Status:             domain.OrderStatusPending,
			PaymentStatus:      domain.PaymentStatusFailed,
			BankTransferStatus: order.BankTransferStatus,
		})
		if updErr != nil {
			return nil, updErr
		}
		log.Printf("charge declined for order %s: %s", order.OrderNumber, result.DeclineReason)
		return updated, ErrChargeDeclined
	}

	updated, err := m.orders.UpdateStatusGuarded(ctx, orderID, domain.OrderStatusPending, repository.StatusPatch{
		Status:             domain.OrderStatusConfirmed,
		PaymentStatus:      domain.PaymentStatusPaid,
		BankTransferStatus: order.BankTransferStatus,
	})
	if err != nil {
		return nil, err
	}
	m.dispatch(ctx, updated, domain.OrderStatusPending, domain.OrderStatusConfirmed)
	return updated, nil
}

// AttachReceipt records a bank-transfer receipt and moves the order into
// admin review. Re-attaching while still under review replaces the
// receipt without changing status.
func (m *Machine) AttachReceipt(ctx context.Context, caller domain.Principal, orderID uuid.UUID, receiptRef string) (*domain.Order, error) {
	if receiptRef == "" {
		return nil, ErrReceiptRefRequired
	}
	order, err := m.Get(ctx, caller, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != domain.PaymentMethodBankTransfer {
		return nil, ErrNotBankTransfer
	}

	switch order.Status {
	case domain.OrderStatusPending, domain.OrderStatusPendingAdminApproval:
	default:
		return nil, ErrIllegalTransition
	}

	updated, err := m.orders.UpdateStatusGuarded(ctx, orderID, order.Status, repository.StatusPatch{
		Status:             domain.OrderStatusPendingAdminApproval,
		PaymentStatus:      order.PaymentStatus,
		BankTransferStatus: domain.BankTransferPendingAdminApproval,
		ReceiptRef:         &receiptRef,
	})
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderStatusPendingAdminApproval {
		m.dispatch(ctx, updated, order.Status, domain.OrderStatusPendingAdminApproval)
	}
	return updated, nil
}

// Approve confirms a bank-transfer order after the admin verified the
// receipt. Approval is what marks the transfer as paid.
func (m *Machine) Approve(ctx context.Context, admin domain.Principal, orderID uuid.UUID, notes string) (*domain.Order, error) {
	order, err := m.Get(ctx, admin, orderID)
	if err != nil {
		return nil, err
	}
	if err := requirePendingApproval(order); err != nil {
		return nil, err
	}

	now := time.Now()
	patch := repository.StatusPatch{
		Status:             domain.OrderStatusConfirmed,
		PaymentStatus:      domain.PaymentStatusPaid,
		BankTransferStatus: domain.BankTransferApproved,
		AdminApprovedAt:    &now,
	}
	if notes != "" {
		patch.AdminNotes = &notes
	}

	updated, err := m.orders.UpdateStatusGuarded(ctx, orderID, domain.OrderStatusPendingAdminApproval, patch)
	if err != nil {
		return nil, err
	}
	m.dispatch(ctx, updated, domain.OrderStatusPendingAdminApproval, domain.OrderStatusConfirmed)
	return updated, nil
}

// Reject cancels a bank-transfer order. The reason is mandatory: a
// rejection without an explanation is useless to the customer and to the
// audit trail.
func (m *Machine) Reject(ctx context.Context, admin domain.Principal, orderID uuid.UUID, notes string) (*domain.Order, error) {
	if notes == "" {
		return nil, ErrAdminNotesRequired
	}
	order, err := m.Get(ctx, admin, orderID)
	if err != nil {
		return nil, err
	}
	if err := requirePendingApproval(order); err != nil {
		return nil, err
	}

	updated, err := m.orders.UpdateStatusGuarded(ctx, orderID, domain.OrderStatusPendingAdminApproval, repository.StatusPatch{
		Status:             domain.OrderStatusCancelled,
		PaymentStatus:      order.PaymentStatus,
		BankTransferStatus: domain.BankTransferRejected,
		AdminNotes:         &notes,
	})
	if err != nil {
		return nil, err
	}
	m.dispatch(ctx, updated, domain.OrderStatusPendingAdminApproval, domain.OrderStatusCancelled)
	return updated, nil
}

// SetStatus drives the admin progression CONFIRMED -> IN_PROGRESS ->
// COMPLETED, cancellation, and the refund exception path.
func (m *Machine) SetStatus(ctx context.Context, admin domain.Principal, orderID uuid.UUID, next domain.OrderStatus) (*domain.Order, error) {
	order, err := m.Get(ctx, admin, orderID)
	if err != nil {
		return nil, err
	}

	// Cancelling an already-cancelled order tolerates duplicate admin
	// clicks: a no-op, not an error.
	if next == domain.OrderStatusCancelled && order.Status == domain.OrderStatusCancelled {
		return order, nil
	}

	if !order.Status.CanTransitionTo(next) {
		return nil, ErrIllegalTransition
	}
	// CONFIRMED implies the payment did not fail. Manual confirmation
	// ahead of capture is allowed; confirming a failed payment is not.
	if next == domain.OrderStatusConfirmed && order.PaymentStatus == domain.PaymentStatusFailed {
		return nil, ErrIllegalTransition
	}

	updated, err := m.orders.UpdateStatusGuarded(ctx, orderID, order.Status, repository.StatusPatch{
		Status:             next,
		PaymentStatus:      order.PaymentStatus,
		BankTransferStatus: order.BankTransferStatus,
	})
	if err != nil {
		return nil, err
	}
	m.dispatch(ctx, updated, order.Status, next)
	return updated, nil
}

func requirePendingApproval(order *domain.Order) error {
	if order.PaymentMethod != domain.PaymentMethodBankTransfer {
		return ErrNotBankTransfer
	}
	if order.Status != domain.OrderStatusPendingAdminApproval ||
		order.BankTransferStatus != domain.BankTransferPendingAdminApproval {
		return ErrIllegalTransition
	}
	return nil
}

// dispatch is fire-and-forget: the transition already committed and a
// notification failure must not undo it.
func (m *Machine) dispatch(ctx context.Context, order *domain.Order, previous, next domain.OrderStatus) {
	m.dispatcher.OrderTransitioned(ctx, order, previous, next)
}
