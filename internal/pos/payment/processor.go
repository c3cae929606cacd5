package payment

import (
	"context"

	"github.com/shopspring/decimal"

	"tablestack/internal/database/models"
	"tablestack/internal/pos/apperr"
)

// Request is one tender attempt against an order.
type Request struct {
	Amount       decimal.Decimal
	TipAmount    decimal.Decimal
	Method       models.PaymentMethod
	TenderedCash *decimal.Decimal
	Card         *CardInfo
}

// Result reports the outcome of a tender. Remaining is zero when the tender
// closed the order.
type Result struct {
	Paid      bool
	Change    decimal.Decimal
	Remaining decimal.Decimal
	Payment   models.Payment
}

// Processor accumulates tenders against an order and decides when it is
// fully paid. It builds the Payment record; the order store persists it and
// drives the close side effects.
type Processor struct {
	gateway CardGateway
}

func NewProcessor(gateway CardGateway) *Processor {
	return &Processor{gateway: gateway}
}

var validMethods = map[models.PaymentMethod]bool{
	models.PaymentCash:  true,
	models.PaymentCard:  true,
	models.PaymentSplit: true,
	models.PaymentComp:  true,
}

// Tender validates and applies one payment against the order's completed
// tenders. The credited amount is capped at what is still owed, so the sum
// of completed payments can never exceed the order total.
func (p *Processor) Tender(ctx context.Context, order *models.Order, req Request) (*Result, error) {
	if order.Closed() {
		return nil, apperr.State("order", string(order.Status), "pay")
	}
	if !validMethods[req.Method] {
		return nil, apperr.Validation("method", "unknown payment method")
	}
	if req.Amount.IsNegative() {
		return nil, apperr.Validation("amount", "must not be negative")
	}
	if req.TipAmount.IsNegative() {
		return nil, apperr.Validation("tip_amount", "must not be negative")
	}

	paid := decimal.Zero
	for _, prev := range order.CompletedPayments() {
		paid = paid.Add(prev.Amount)
	}
	remaining := order.Total.Sub(paid)
	if !remaining.IsPositive() {
		// A fully discounted check has nothing to collect; a comp tender
		// closes it instead of forcing a cancel.
		if req.Method != models.PaymentComp {
			return nil, apperr.State("order", string(order.Status), "pay an already covered")
		}
		return &Result{
			Paid:      true,
			Change:    decimal.Zero,
			Remaining: decimal.Zero,
			Payment: models.Payment{
				OrderID:      order.ID,
				Amount:       decimal.Zero,
				TipAmount:    req.TipAmount,
				TotalAmount:  req.TipAmount,
				Method:       req.Method,
				ChangeAmount: decimal.Zero,
				Status:       models.PaymentCompleted,
			},
		}, nil
	}
	if !req.Amount.IsPositive() {
		return nil, apperr.Validation("amount", "must be positive")
	}

	credited := req.Amount
	if credited.GreaterThan(remaining) {
		credited = remaining
	}

	record := models.Payment{
		OrderID:      order.ID,
		Amount:       credited,
		TipAmount:    req.TipAmount,
		TotalAmount:  credited.Add(req.TipAmount),
		Method:       req.Method,
		ChangeAmount: decimal.Zero,
		Status:       models.PaymentCompleted,
	}

	switch req.Method {
	case models.PaymentCash:
		if req.TenderedCash == nil {
			return nil, apperr.Validation("tendered_cash", "required for cash payments")
		}
		owed := credited.Add(req.TipAmount)
		if req.TenderedCash.LessThan(owed) {
			return nil, apperr.Validation("tendered_cash", "insufficient cash tendered")
		}
		record.TenderedCash = req.TenderedCash
		record.ChangeAmount = req.TenderedCash.Sub(owed)
	case models.PaymentCard, models.PaymentSplit:
		if req.Card == nil {
			return nil, apperr.Validation("card", "card details required")
		}
		ref, err := p.gateway.Authorize(ctx, credited.Add(req.TipAmount), *req.Card)
		if err != nil {
			return nil, apperr.External("card gateway", err)
		}
		record.CardRef = ref
	}

	remaining = remaining.Sub(credited)

	return &Result{
		Paid:      !remaining.IsPositive(),
		Change:    record.ChangeAmount,
		Remaining: remaining,
		Payment:   record,
	}, nil
}
