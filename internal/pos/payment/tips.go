package payment

import (
	"github.com/shopspring/decimal"

	"tablestack/internal/database/models"
)

// PoolPolicy decides how much of a tip goes to the house pool. Pooling rules
// vary per site, so the policy is pluggable and the default keeps the full
// amount with the server.
type PoolPolicy interface {
	Contribution(tip decimal.Decimal) decimal.Decimal
}

type NoPooling struct{}

func (NoPooling) Contribution(decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}

// FlatRatePool contributes a fixed fraction (0..1) of every tip.
type FlatRatePool struct {
	Rate decimal.Decimal
}

func (p FlatRatePool) Contribution(tip decimal.Decimal) decimal.Decimal {
	return tip.Mul(p.Rate).Round(2)
}

// Allocator turns the completed payments of a closing order into tip
// records, one per payment that carried a tip.
type Allocator struct {
	policy PoolPolicy
}

func NewAllocator(policy PoolPolicy) *Allocator {
	if policy == nil {
		policy = NoPooling{}
	}
	return &Allocator{policy: policy}
}

func (a *Allocator) Allocate(order *models.Order, payments []models.Payment) []models.Tip {
	tips := make([]models.Tip, 0, len(payments))
	for _, p := range payments {
		if p.Status != models.PaymentCompleted || !p.TipAmount.IsPositive() {
			continue
		}
		pool := a.policy.Contribution(p.TipAmount)
		tips = append(tips, models.Tip{
			OrderID:          order.ID,
			PaymentID:        p.ID,
			ServerID:         order.ServerID,
			Amount:           p.TipAmount,
			PoolContribution: pool,
			NetAmount:        p.TipAmount.Sub(pool),
		})
	}
	return tips
}
