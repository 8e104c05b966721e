package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderItem is a snapshot copied from a CartItem at order-creation time.
// Later catalog price changes must not alter existing orders.
type OrderItem struct {
	ServiceID   string          `json:"service_id"`
	ServiceName string          `json:"service_name"`
	OptionID    string          `json:"option_id,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type Order struct {
	ID                 uuid.UUID          `json:"id"`
	OrderNumber        string             `json:"order_number"`
	OwnerID            string             `json:"owner_id"`
	Items              []OrderItem        `json:"items"`
	TotalAmount        decimal.Decimal    `json:"total_amount"`
	Status             OrderStatus        `json:"status"`
	PaymentMethod      PaymentMethod      `json:"payment_method"`
	PaymentStatus      PaymentStatus      `json:"payment_status"`
	BankTransferStatus BankTransferStatus `json:"bank_transfer_status,omitempty"`
	ReceiptRef         string             `json:"receipt_ref,omitempty"`
	Notes              string             `json:"notes,omitempty"`
	AdminNotes         string             `json:"admin_notes,omitempty"`
	AdminApprovedAt    *time.Time         `json:"admin_approved_at,omitempty"`
	ScheduledDate      *time.Time         `json:"scheduled_date,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// NewOrderNumber builds a human-sortable unique order number. Uniqueness
// comes from the uuid suffix; numbers are not sequential and gaps are fine.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:8]
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix)
}

// ComputeTotal sums line totals; it must equal TotalAmount at all times.
func (o *Order) ComputeTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal)
	}
	return total
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Items = make([]OrderItem, len(o.Items))
	copy(cp.Items, o.Items)
	if o.AdminApprovedAt != nil {
		t := *o.AdminApprovedAt
		cp.AdminApprovedAt = &t
	}
	if o.ScheduledDate != nil {
		t := *o.ScheduledDate
		cp.ScheduledDate = &t
	}
	return &cp
}
