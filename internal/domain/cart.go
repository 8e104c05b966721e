package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID        string     `json:"id" bson:"_id,omitempty"`
	OwnerID   string     `json:"owner_id" bson:"owner_id"`
	Items     []CartItem `json:"items" bson:"items"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" bson:"updated_at"`
}

type CartItem struct {
	ID        string          `json:"id" bson:"item_id"`
	ServiceID string          `json:"service_id" bson:"service_id"`
	OptionID  string          `json:"option_id,omitempty" bson:"option_id,omitempty"`
	Quantity  int             `json:"quantity" bson:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price" bson:"unit_price"`
	AddedAt   time.Time       `json:"added_at" bson:"added_at"`
}

// LineKey identifies the unique (service, option) line within a cart.
// At most one persisted item may exist per key.
func LineKey(serviceID, optionID string) string {
	return fmt.Sprintf("%s|%s", serviceID, optionID)
}

func (i CartItem) LineKey() string {
	return LineKey(i.ServiceID, i.OptionID)
}

// Clone returns a deep copy so callers can hold a snapshot while the
// original keeps mutating.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Items = make([]CartItem, len(c.Items))
	copy(cp.Items, c.Items)
	return &cp
}

func (c *Cart) FindItem(itemID string) *CartItem {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return &c.Items[i]
		}
	}
	return nil
}

func (c *Cart) FindLine(serviceID, optionID string) *CartItem {
	key := LineKey(serviceID, optionID)
	for i := range c.Items {
		if c.Items[i].LineKey() == key {
			return &c.Items[i]
		}
	}
	return nil
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// Subtotal is the display total of the cart; order totals are computed
// separately at assembly time from re-validated catalog prices.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}
