package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kevin07696/bakery-service/internal/domain/ports"
	pkgerrors "github.com/kevin07696/bakery-service/pkg/errors"
	pkghttp "github.com/kevin07696/bakery-service/pkg/http"
)

const (
	DefaultBaseURL  = "https://api.paystack.co"
	DefaultCurrency = "NGN"

	statusSuccess = "success"

	maxResponseBytes = 1 << 20
)

// Config holds gateway credentials
type Config struct {
	BaseURL   string
	SecretKey string
	Currency  string
}

// Adapter talks to a Paystack-compatible REST gateway
type Adapter struct {
	config     Config
	httpClient ports.HTTPClient
	logger     ports.Logger
	breaker    *CircuitBreaker
}

var _ ports.PaymentGateway = (*Adapter)(nil)

// NewAdapter creates an adapter with an injected HTTP client
func NewAdapter(config Config, httpClient ports.HTTPClient, logger ports.Logger) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Currency == "" {
		config.Currency = DefaultCurrency
	}

	breakerCfg := DefaultCircuitBreakerConfig()
	breakerCfg.IsFailure = pkgerrors.IsRetriable

	return &Adapter{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
		breaker:    NewCircuitBreaker(breakerCfg),
	}
}

// NewAdapterWithDefaults creates an adapter using the pooled gateway HTTP client
func NewAdapterWithDefaults(config Config, timeout time.Duration, logger ports.Logger) *Adapter {
	client := pkghttp.NewHTTPClient(pkghttp.GatewayClientConfig(), timeout)
	return NewAdapter(config, client, logger)
}

// envelope is the common response wrapper
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type verifyData struct {
	Status          string          `json:"status"`
	Reference       string          `json:"reference"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	GatewayResponse string          `json:"gateway_response"`
	Metadata        json.RawMessage `json:"metadata"`
}

type initializeBody struct {
	Email       string            `json:"email"`
	Amount      string            `json:"amount"`
	Reference   string            `json:"reference"`
	Currency    string            `json:"currency,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Verify asks the gateway for the state of a transaction. Unknown references and
// non-success statuses come back as Success=false; only transport, auth and 5xx
// failures are errors.
func (a *Adapter) Verify(ctx context.Context, reference string) (*ports.VerifyResult, error) {
	endpoint := "/transaction/verify/" + url.PathEscape(reference)

	var env envelope
	status, err := a.makeRequest(ctx, http.MethodGet, endpoint, nil, &env)
	if err != nil {
		var pe *pkgerrors.PaymentError
		if errors.As(err, &pe) && (pe.Category == pkgerrors.CategoryNotFound || pe.Category == pkgerrors.CategoryInvalidRequest) && env.Message != "" {
			// Gateway answered with a well-formed rejection for this reference
			return &ports.VerifyResult{Reference: reference, Success: false, Message: env.Message}, nil
		}
		return nil, err
	}

	if !env.Status {
		return &ports.VerifyResult{Reference: reference, Success: false, Message: env.Message}, nil
	}

	var data verifyData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, pkgerrors.NewPaymentError("INVALID_RESPONSE", "Malformed verify response", pkgerrors.CategorySystemError, false).
			WithStatus(status).WithCause(err)
	}

	metadata, err := flattenMetadata(data.Metadata)
	if err != nil {
		a.logger.Warn("Ignoring unparseable transaction metadata",
			ports.String("reference", reference),
			ports.Err(err),
		)
	}

	message := data.GatewayResponse
	if message == "" {
		message = env.Message
	}

	result := &ports.VerifyResult{
		Reference:               reference,
		Success:                 data.Status == statusSuccess,
		ChargedAmountMinorUnits: data.Amount,
		Currency:                data.Currency,
		Message:                 message,
		Metadata:                metadata,
	}

	a.logger.Info("Gateway verify completed",
		ports.String("reference", reference),
		ports.String("gateway_status", data.Status),
		ports.Int64("amount_minor", data.Amount),
	)

	return result, nil
}

// Initialize opens a hosted checkout for a staged order
func (a *Adapter) Initialize(ctx context.Context, req *ports.InitializeRequest) (*ports.InitializeResult, error) {
	currency := req.Currency
	if currency == "" {
		currency = a.config.Currency
	}

	body := initializeBody{
		Email:       req.Email,
		Amount:      strconv.FormatInt(req.AmountMinorUnits, 10),
		Reference:   req.Reference,
		Currency:    currency,
		CallbackURL: req.CallbackURL,
		Metadata:    req.Metadata,
	}

	var env envelope
	status, err := a.makeRequest(ctx, http.MethodPost, "/transaction/initialize", body, &env)
	if err != nil {
		return nil, err
	}
	if !env.Status {
		return nil, pkgerrors.NewPaymentError("INITIALIZE_REJECTED", "Gateway rejected checkout", pkgerrors.CategoryDeclined, false).
			WithStatus(status).WithGatewayMessage(env.Message)
	}

	var data initializeData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.AuthorizationURL == "" {
		return nil, pkgerrors.NewPaymentError("INVALID_RESPONSE", "Malformed initialize response", pkgerrors.CategorySystemError, false).
			WithStatus(status).WithCause(err)
	}

	if data.Reference == "" {
		data.Reference = req.Reference
	}

	return &ports.InitializeResult{
		Reference:        data.Reference,
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
	}, nil
}

// ValidateWebhookSignature checks the HMAC-SHA512 signature of a webhook body
func (a *Adapter) ValidateWebhookSignature(body []byte, signature string) bool {
	return ValidateSignature(a.config.SecretKey, body, signature)
}

// BreakerState reports the circuit breaker state
func (a *Adapter) BreakerState() CircuitState {
	return a.breaker.State()
}

// makeRequest sends an authenticated JSON request and decodes the envelope into response.
// On non-2xx statuses the envelope is still decoded when possible so callers can read the message.
func (a *Adapter) makeRequest(ctx context.Context, method, endpoint string, request interface{}, response *envelope) (int, error) {
	var status int

	err := a.breaker.Call(func() error {
		var bodyReader io.Reader
		if request != nil {
			payload, err := json.Marshal(request)
			if err != nil {
				return fmt.Errorf("failed to marshal request: %w", err)
			}
			bodyReader = bytes.NewReader(payload)
		}

		httpReq, err := http.NewRequestWithContext(ctx, method, a.config.BaseURL+endpoint, bodyReader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+a.config.SecretKey)
		httpReq.Header.Set("Accept", "application/json")
		if request != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}

		a.logger.Debug("Making request to payment gateway",
			ports.String("method", method),
			ports.String("endpoint", endpoint),
		)

		httpResp, err := a.httpClient.Do(httpReq)
		if err != nil {
			return pkgerrors.NewPaymentError("NETWORK_ERROR", "Failed to connect to payment gateway", pkgerrors.CategoryNetworkError, true).
				WithCause(err)
		}
		defer httpResp.Body.Close()

		status = httpResp.StatusCode
		body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
		if err != nil {
			return pkgerrors.NewPaymentError("NETWORK_ERROR", "Failed to read gateway response", pkgerrors.CategoryNetworkError, true).
				WithStatus(status).WithCause(err)
		}

		decodeErr := json.Unmarshal(body, response)

		if status < 200 || status >= 300 {
			category, retriable := pkgerrors.CategoryForStatus(status)
			return pkgerrors.NewPaymentError("HTTP_"+strconv.Itoa(status), "Payment gateway returned an error", category, retriable).
				WithStatus(status).WithGatewayMessage(response.Message)
		}

		if decodeErr != nil {
			return pkgerrors.NewPaymentError("INVALID_RESPONSE", "Gateway response is not valid JSON", pkgerrors.CategorySystemError, true).
				WithStatus(status).WithCause(decodeErr)
		}
		return nil
	})

	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests) {
		a.logger.Warn("Payment gateway circuit open",
			ports.String("endpoint", endpoint),
			ports.String("state", a.breaker.State().String()),
		)
		return 0, pkgerrors.NewPaymentError("CIRCUIT_OPEN", "Payment gateway temporarily unavailable", pkgerrors.CategoryUnavailable, true).
			WithCause(err)
	}
	if err != nil {
		a.logger.Error("Payment gateway request failed",
			ports.String("method", method),
			ports.String("endpoint", endpoint),
			ports.Int("status", status),
			ports.Err(err),
		)
	}
	return status, err
}

// flattenMetadata turns the gateway's metadata object into string values.
// Gateways send an empty string or null when no metadata was attached.
func flattenMetadata(raw json.RawMessage) (map[string]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	out := make(map[string]string, len(fields))
	for k, v := range fields {
		v = bytes.TrimSpace(v)
		if bytes.Equal(v, []byte("null")) {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		out[k] = string(v)
	}
	return out, nil
}
