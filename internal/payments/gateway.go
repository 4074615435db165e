// Package payments defines the payment gateway contract the order service
// charges against.
package payments

import (
	"context"
	"fmt"
)

// ChargeRequest carries everything the gateway needs to authorise a charge.
type ChargeRequest struct {
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	Method     string  `json:"method"`
	CardNumber string  `json:"card_number,omitempty"`
	CardExpiry string  `json:"card_expiry,omitempty"`
	CardCVV    string  `json:"card_cvv,omitempty"`
	Reference  string  `json:"reference"`
}

// ChargeResult is the gateway's confirmation of a successful charge.
type ChargeResult struct {
	GatewayTransactionID string         `json:"gateway_transaction_id"`
	Fees                 float64        `json:"fees"`
	Response             map[string]any `json:"response"`
}

// GatewayError reports a decline or failure from the gateway. A decline is a
// normal outcome, not an infrastructure fault, so it carries the gateway's
// own code and payload for the caller to surface.
type GatewayError struct {
	Code     string
	Message  string
	Response map[string]any
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment gateway: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("payment gateway: %s", e.Message)
}

// Gateway authorises and captures payments.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}
