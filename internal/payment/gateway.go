package payment

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/avrach/go_storefront/internal/domain"
)

// ChargeResult distinguishes a decline (Approved=false, no error) from a
// transport failure (error). Declines carry a reason; transport failures
// leave the order retryable.
type ChargeResult struct {
	TransactionID string
	Approved      bool
	DeclineReason string
}

type Gateway interface {
	Charge(ctx context.Context, order *domain.Order) (ChargeResult, error)
}

// ChargeOutcome is the seam tests use to force a deterministic result
// instead of the simulated success rate.
type ChargeOutcome interface {
	Outcome() (approved bool, declineReason string)
}

type RandomOutcome struct{}

func (RandomOutcome) Outcome() (bool, string) {
	if rand.Intn(100) < 95 {
		return true, ""
	}
	return false, "card_declined"
}

// StubGateway stands in for the real provider integration, which is an
// external collaborator here.
type StubGateway struct {
	outcome ChargeOutcome
}

func NewStubGateway(outcome ChargeOutcome) *StubGateway {
	return &StubGateway{outcome: outcome}
}

func (g *StubGateway) Charge(_ context.Context, order *domain.Order) (ChargeResult, error) {
	approved, reason := g.outcome.Outcome()
	return ChargeResult{
		TransactionID: fmt.Sprintf("TXN-%d", time.Now().UnixNano()),
		Approved:      approved,
		DeclineReason: reason,
	}, nil
}
