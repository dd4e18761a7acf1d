package mocks

import (
	"context"
	"sync"

	"github.com/kevin07696/bakery-service/internal/domain/ports"
)

// MockPaymentGateway is a mock implementation of PaymentGateway for testing
type MockPaymentGateway struct {
	mu sync.Mutex

	verifyResults map[string]*ports.VerifyResult
	verifyErrors  map[string]error

	initializeResult *ports.InitializeResult
	initializeError  error

	// Secret accepted by ValidateWebhookSignature
	ValidSignature string

	VerifyCalls     []string
	InitializeCalls []*ports.InitializeRequest
}

var _ ports.PaymentGateway = (*MockPaymentGateway)(nil)

// NewMockPaymentGateway creates a new mock gateway
func NewMockPaymentGateway() *MockPaymentGateway {
	return &MockPaymentGateway{
		verifyResults: make(map[string]*ports.VerifyResult),
		verifyErrors:  make(map[string]error),
	}
}

// SetVerifyResponse sets what Verify returns for a reference
func (m *MockPaymentGateway) SetVerifyResponse(reference string, result *ports.VerifyResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifyResults[reference] = result
	m.verifyErrors[reference] = err
}

// SetChargeSuccess is a helper for a successful charge of amountMinor
func (m *MockPaymentGateway) SetChargeSuccess(reference string, amountMinor int64, metadata map[string]string) {
	m.SetVerifyResponse(reference, &ports.VerifyResult{
		Reference:               reference,
		Success:                 true,
		ChargedAmountMinorUnits: amountMinor,
		Currency:                "NGN",
		Message:                 "Approved",
		Metadata:                metadata,
	}, nil)
}

// SetInitializeResponse sets what Initialize returns
func (m *MockPaymentGateway) SetInitializeResponse(result *ports.InitializeResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initializeResult = result
	m.initializeError = err
}

func (m *MockPaymentGateway) Verify(ctx context.Context, reference string) (*ports.VerifyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.VerifyCalls = append(m.VerifyCalls, reference)

	if err := m.verifyErrors[reference]; err != nil {
		return nil, err
	}
	if result, ok := m.verifyResults[reference]; ok && result != nil {
		copied := *result
		return &copied, nil
	}
	return &ports.VerifyResult{Reference: reference, Success: false, Message: "Transaction reference not found"}, nil
}

func (m *MockPaymentGateway) Initialize(ctx context.Context, req *ports.InitializeRequest) (*ports.InitializeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InitializeCalls = append(m.InitializeCalls, req)

	if m.initializeError != nil {
		return nil, m.initializeError
	}
	if m.initializeResult != nil {
		return m.initializeResult, nil
	}
	return &ports.InitializeResult{
		Reference:        req.Reference,
		AuthorizationURL: "https://checkout.example.test/" + req.Reference,
		AccessCode:       "access-" + req.Reference,
	}, nil
}

func (m *MockPaymentGateway) ValidateWebhookSignature(body []byte, signature string) bool {
	return m.ValidSignature != "" && signature == m.ValidSignature
}

// VerifyCallCount returns how many times Verify was called
func (m *MockPaymentGateway) VerifyCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.VerifyCalls)
}
