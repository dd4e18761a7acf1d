package ports

import (
	"context"
)

// VerifyResult is the gateway's report for a transaction reference
type VerifyResult struct {
	Reference               string
	Success                 bool
	ChargedAmountMinorUnits int64
	Currency                string
	Message                 string            // Gateway-supplied status text
	Metadata                map[string]string // orderId, runId, customerId, ...
}

// MetadataValue returns a metadata entry or "" when absent
func (r *VerifyResult) MetadataValue(key string) string {
	if r == nil || r.Metadata == nil {
		return ""
	}
	return r.Metadata[key]
}

// InitializeRequest asks the gateway to open a checkout for a staged order
type InitializeRequest struct {
	Reference        string
	Email            string
	AmountMinorUnits int64
	Currency         string
	CallbackURL      string
	Metadata         map[string]string
}

// InitializeResult carries the hosted-checkout URL for the customer
type InitializeResult struct {
	Reference        string
	AuthorizationURL string
	AccessCode       string
}

// PaymentVerifier confirms a transaction with the payment gateway.
// A declined or unknown reference is reported with Success=false; transport
// failures are returned as errors.
type PaymentVerifier interface {
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
}

// PaymentGateway is the full gateway surface used by checkout and reconciliation
type PaymentGateway interface {
	PaymentVerifier
	Initialize(ctx context.Context, req *InitializeRequest) (*InitializeResult, error)
	ValidateWebhookSignature(body []byte, signature string) bool
}
