package payment

import (
	"context"
	"log"
	"time"

	"github.com/avrach/go_storefront/internal/domain"
	"github.com/sony/gobreaker/v2"
)

// BreakerGateway wraps a Gateway with a circuit breaker so a flapping
// payment provider fails fast instead of stacking up 5s timeouts. Open
// circuit errors surface like any other transport failure: the order
// stays PENDING and retryable.
type BreakerGateway struct {
	inner Gateway
	cb    *gobreaker.CircuitBreaker[ChargeResult]
}

func NewBreakerGateway(inner Gateway) *BreakerGateway {
	settings := gobreaker.Settings{
		Name:    "payment-gateway",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("circuit breaker %s: %s -> %s", name, from, to)
		},
	}
	return &BreakerGateway{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[ChargeResult](settings),
	}
}

func (g *BreakerGateway) Charge(ctx context.Context, order *domain.Order) (ChargeResult, error) {
	return g.cb.Execute(func() (ChargeResult, error) {
		return g.inner.Charge(ctx, order)
	})
}
