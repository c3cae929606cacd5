package pricing

import (
	"github.com/shopspring/decimal"

	"tablestack/internal/database/models"
)

// Discount is the single order-level discount descriptor. A second apply
// replaces the first; discounts are not cumulative.
type Discount struct {
	Kind   models.DiscountKind
	Value  decimal.Decimal
	Reason string
}

// Totals holds the derived money fields of an order. Tip is deliberately
// excluded from Total; it is tracked separately on payments.
type Totals struct {
	Subtotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
}

// Engine computes order totals. It is a pure function of the item lines, the
// discount descriptor and the configured tax rate.
type Engine struct {
	taxRate decimal.Decimal
}

func New(taxRate decimal.Decimal) *Engine {
	return &Engine{taxRate: taxRate}
}

var hundred = decimal.NewFromInt(100)

// LineTotal computes (unit price + modifier deltas) x quantity.
func LineTotal(unitPrice decimal.Decimal, modifiers models.ModifierList, quantity int) decimal.Decimal {
	perUnit := unitPrice.Add(modifiers.DeltaSum())
	return perUnit.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// Compute derives subtotal, discount, tax and total from the given lines.
// Void items contribute nothing.
func (e *Engine) Compute(items []models.OrderItem, d Discount) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		if item.Status == models.ItemVoid {
			continue
		}
		subtotal = subtotal.Add(item.LineTotal)
	}

	discount := decimal.Zero
	switch d.Kind {
	case models.DiscountFixed:
		discount = d.Value
		if discount.GreaterThan(subtotal) {
			discount = subtotal
		}
		if discount.IsNegative() {
			discount = decimal.Zero
		}
	case models.DiscountPercentage:
		discount = subtotal.Mul(d.Value).Div(hundred).Round(2)
	}

	taxableBase := subtotal.Sub(discount)
	if taxableBase.IsNegative() {
		taxableBase = decimal.Zero
	}

	tax := taxableBase.Mul(e.taxRate).Round(2)

	return Totals{
		Subtotal:       subtotal.Round(2),
		DiscountAmount: discount.Round(2),
		TaxAmount:      tax,
		Total:          taxableBase.Add(tax).Round(2),
	}
}
