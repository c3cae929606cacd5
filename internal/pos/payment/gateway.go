package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CardInfo is the opaque card metadata forwarded to the gateway.
type CardInfo struct {
	Token string `json:"token"`
	Brand string `json:"brand,omitempty"`
	Last4 string `json:"last4,omitempty"`
}

// CardGateway is the external card processor. A timeout or refusal surfaces
// as an error and leaves no payment state behind, so the tender is safe to
// retry.
type CardGateway interface {
	Authorize(ctx context.Context, amount decimal.Decimal, card CardInfo) (ref string, err error)
}

// SimulatedGateway authorizes everything. It stands in for the real
// processor in development and tests.
type SimulatedGateway struct{}

func (SimulatedGateway) Authorize(_ context.Context, amount decimal.Decimal, card CardInfo) (string, error) {
	if card.Token == "" {
		return "", fmt.Errorf("missing card token")
	}
	return fmt.Sprintf("SIM-%d", time.Now().UnixNano()), nil
}
