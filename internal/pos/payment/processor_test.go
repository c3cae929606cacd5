package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"tablestack/internal/database/models"
	"tablestack/internal/pos/apperr"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

type failingGateway struct{}

func (failingGateway) Authorize(ctx context.Context, amount decimal.Decimal, card CardInfo) (string, error) {
	return "", errors.New("declined")
}

func openOrder(total string, completed ...string) *models.Order {
	order := &models.Order{
		Status: models.OrderServed,
		Total:  dec(total),
	}
	order.ID = 1
	for _, amt := range completed {
		order.Payments = append(order.Payments, models.Payment{
			Amount: dec(amt),
			Status: models.PaymentCompleted,
		})
	}
	return order
}

func TestTenderCash(t *testing.T) {
	p := NewProcessor(SimulatedGateway{})

	// 18.36 due plus a 3.00 tip, 25.00 handed over.
	order := openOrder("18.36")
	result, err := p.Tender(context.Background(), order, Request{
		Amount:       dec("18.36"),
		TipAmount:    dec("3.00"),
		Method:       models.PaymentCash,
		TenderedCash: decPtr("25.00"),
	})
	if err != nil {
		t.Fatalf("Tender() error = %v", err)
	}
	if !result.Paid {
		t.Error("Tender() Paid = false, want true")
	}
	if !result.Change.Equal(dec("3.64")) {
		t.Errorf("Change = %s, want 3.64", result.Change)
	}
	if !result.Payment.TenderedCash.Equal(dec("25.00")) {
		t.Errorf("TenderedCash = %s, want 25.00", result.Payment.TenderedCash)
	}
}

func TestTenderCapsAtRemaining(t *testing.T) {
	p := NewProcessor(SimulatedGateway{})

	order := openOrder("20.00", "15.00")
	result, err := p.Tender(context.Background(), order, Request{
		Amount:       dec("10.00"),
		Method:       models.PaymentCash,
		TenderedCash: decPtr("10.00"),
	})
	if err != nil {
		t.Fatalf("Tender() error = %v", err)
	}
	if !result.Payment.Amount.Equal(dec("5.00")) {
		t.Errorf("credited = %s, want 5.00", result.Payment.Amount)
	}
	if !result.Paid {
		t.Error("Tender() Paid = false, want true")
	}
	if !result.Change.Equal(dec("5.00")) {
		t.Errorf("Change = %s, want 5.00", result.Change)
	}
}

func TestTenderSplitAccumulates(t *testing.T) {
	p := NewProcessor(SimulatedGateway{})

	order := openOrder("30.00")
	result, err := p.Tender(context.Background(), order, Request{
		Amount: dec("10.00"),
		Method: models.PaymentSplit,
		Card:   &CardInfo{Token: "tok-1"},
	})
	if err != nil {
		t.Fatalf("Tender() error = %v", err)
	}
	if result.Paid {
		t.Error("first split should not close the order")
	}
	if !result.Remaining.Equal(dec("20.00")) {
		t.Errorf("Remaining = %s, want 20.00", result.Remaining)
	}
	if result.Payment.CardRef == "" {
		t.Error("expected a card reference on split payment")
	}

	order.Payments = append(order.Payments, result.Payment)
	result, err = p.Tender(context.Background(), order, Request{
		Amount: dec("20.00"),
		Method: models.PaymentSplit,
		Card:   &CardInfo{Token: "tok-2"},
	})
	if err != nil {
		t.Fatalf("Tender() error = %v", err)
	}
	if !result.Paid {
		t.Error("second split should close the order")
	}
	if !result.Remaining.IsZero() {
		t.Errorf("Remaining = %s, want 0", result.Remaining)
	}
}

func TestTenderValidation(t *testing.T) {
	p := NewProcessor(SimulatedGateway{})

	closed := openOrder("10.00")
	closed.Status = models.OrderPaid

	tests := []struct {
		name  string
		order *models.Order
		req   Request
	}{
		{
			name:  "closed order",
			order: closed,
			req:   Request{Amount: dec("10.00"), Method: models.PaymentCash, TenderedCash: decPtr("10.00")},
		},
		{
			name:  "unknown method",
			order: openOrder("10.00"),
			req:   Request{Amount: dec("10.00"), Method: "iou"},
		},
		{
			name:  "non-positive amount",
			order: openOrder("10.00"),
			req:   Request{Amount: decimal.Zero, Method: models.PaymentCash, TenderedCash: decPtr("10.00")},
		},
		{
			name:  "negative tip",
			order: openOrder("10.00"),
			req:   Request{Amount: dec("10.00"), TipAmount: dec("-1.00"), Method: models.PaymentCash, TenderedCash: decPtr("10.00")},
		},
		{
			name:  "cash without tendered amount",
			order: openOrder("10.00"),
			req:   Request{Amount: dec("10.00"), Method: models.PaymentCash},
		},
		{
			name:  "insufficient cash",
			order: openOrder("10.00"),
			req:   Request{Amount: dec("10.00"), TipAmount: dec("2.00"), Method: models.PaymentCash, TenderedCash: decPtr("11.00")},
		},
		{
			name:  "card without details",
			order: openOrder("10.00"),
			req:   Request{Amount: dec("10.00"), Method: models.PaymentCard},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := p.Tender(context.Background(), tt.order, tt.req); err == nil {
				t.Error("Tender() error = nil, want error")
			}
		})
	}
}

func TestTenderZeroBalanceComp(t *testing.T) {
	p := NewProcessor(SimulatedGateway{})

	// A check fully wiped by a discount has nothing to collect.
	order := openOrder("0.00")
	result, err := p.Tender(context.Background(), order, Request{Method: models.PaymentComp})
	if err != nil {
		t.Fatalf("Tender() comp error = %v", err)
	}
	if !result.Paid {
		t.Error("comp tender should close a zero-balance check")
	}
	if !result.Payment.Amount.IsZero() {
		t.Errorf("credited = %s, want 0", result.Payment.Amount)
	}
	if result.Payment.Status != models.PaymentCompleted {
		t.Errorf("payment status = %s, want completed", result.Payment.Status)
	}

	// Any other method still has nothing to take.
	_, err = p.Tender(context.Background(), openOrder("0.00"), Request{
		Amount: dec("5.00"), Method: models.PaymentCash, TenderedCash: decPtr("5.00"),
	})
	var stateErr *apperr.StateError
	if !errors.As(err, &stateErr) {
		t.Errorf("cash tender on zero balance error = %v, want StateError", err)
	}
}

func TestTenderGatewayFailure(t *testing.T) {
	p := NewProcessor(failingGateway{})

	_, err := p.Tender(context.Background(), openOrder("10.00"), Request{
		Amount: dec("10.00"),
		Method: models.PaymentCard,
		Card:   &CardInfo{Token: "tok"},
	})
	var extErr *apperr.ExternalDependencyError
	if !errors.As(err, &extErr) {
		t.Errorf("Tender() error = %v, want ExternalDependencyError", err)
	}
}
