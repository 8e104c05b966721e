package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Service is a catalog entry the storefront sells. Availability is
// re-checked at mutate and assemble time; a service deactivated mid-session
// must not end up on a new order.
type Service struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Active      bool            `json:"active"`
	Available   bool            `json:"available"`
	Options     []ServiceOption `json:"options,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type ServiceOption struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	PriceDelta decimal.Decimal `json:"price_delta"`
}

func (s *Service) Sellable() bool {
	return s.Active && s.Available
}

func (s *Service) Option(optionID string) (ServiceOption, bool) {
	for _, opt := range s.Options {
		if opt.ID == optionID {
			return opt, true
		}
	}
	return ServiceOption{}, false
}

// UnitPriceFor resolves the effective unit price for a (service, option)
// line. The bool is false when the option does not belong to the service.
func (s *Service) UnitPriceFor(optionID string) (decimal.Decimal, bool) {
	if optionID == "" {
		return s.Price, true
	}
	opt, ok := s.Option(optionID)
	if !ok {
		return decimal.Zero, false
	}
	return s.Price.Add(opt.PriceDelta), true
}
