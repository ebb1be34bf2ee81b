package services

import "context"

// GatewayStatusSuccess is the only verification status that confirms a payment.
const GatewayStatusSuccess = "success"

type InitializeParams struct {
	Email       string
	AmountMinor int64
	CallbackURL string
	Metadata    map[string]any
}

type InitializeResult struct {
	Reference        string
	AuthorizationURL string
	AccessCode       string
}

type Verification struct {
	Reference   string
	Status      string
	AmountMinor int64
	Currency    string
}

// PaymentGateway starts and verifies card transactions with the payment processor.
type PaymentGateway interface {
	Initialize(ctx context.Context, params InitializeParams) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*Verification, error)
}

// PayoutService releases held funds for a delivered escrow order.
// A false result carries the reason in message.
type PayoutService interface {
	ProcessOrderPayout(ctx context.Context, trackingID string) (success bool, message string)
}
