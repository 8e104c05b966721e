package domain

type OrderStatus string

const (
	OrderStatusPending              OrderStatus = "PENDING"
	OrderStatusPendingAdminApproval OrderStatus = "PENDING_ADMIN_APPROVAL"
	OrderStatusConfirmed            OrderStatus = "CONFIRMED"
	OrderStatusInProgress           OrderStatus = "IN_PROGRESS"
	OrderStatusCompleted            OrderStatus = "COMPLETED"
	OrderStatusCancelled            OrderStatus = "CANCELLED"
	OrderStatusRefunded             OrderStatus = "REFUNDED"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// BankTransferStatus is only meaningful when PaymentMethod is bank_transfer.
type BankTransferStatus string

const (
	BankTransferNone                 BankTransferStatus = ""
	BankTransferPendingAdminApproval BankTransferStatus = "PENDING_ADMIN_APPROVAL"
	BankTransferApproved             BankTransferStatus = "APPROVED"
	BankTransferRejected             BankTransferStatus = "REJECTED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:              {OrderStatusConfirmed, OrderStatusPendingAdminApproval, OrderStatusCancelled},
	OrderStatusPendingAdminApproval: {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:            {OrderStatusInProgress, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusInProgress:           {OrderStatusCompleted},
	OrderStatusCompleted:            {OrderStatusRefunded},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the order has finished its lifecycle.
// COMPLETED is terminal for operational purposes even though the refund
// exception path (COMPLETED -> REFUNDED) remains open.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled || s == OrderStatusRefunded
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCard || m == PaymentMethodBankTransfer
}
