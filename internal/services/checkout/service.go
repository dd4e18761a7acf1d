// Package checkout stages orders and opens a hosted gateway checkout for them.
package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kevin07696/bakery-service/internal/domain"
	"github.com/kevin07696/bakery-service/internal/domain/ports"
	"github.com/kevin07696/bakery-service/pkg/observability"
	"github.com/kevin07696/bakery-service/pkg/resilience"
)

// Config holds checkout settings
type Config struct {
	// CallbackURL is where the gateway sends the customer after payment
	CallbackURL string
	Currency    string
}

// StageRequest describes an order about to be paid by card
type StageRequest struct {
	Reference     string                     `json:"reference,omitempty"`
	Email         string                     `json:"email"`
	Total         decimal.Decimal            `json:"total"`
	IsDebtPayment bool                       `json:"isDebtPayment"`
	RunID         string                     `json:"runId,omitempty"`
	CustomerID    string                     `json:"customerId,omitempty"`
	OrderID       string                     `json:"orderId,omitempty"`
	Payload       map[string]json.RawMessage `json:"payload,omitempty"`
}

// StageResult is returned to the caller so it can redirect the customer
type StageResult struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorizationUrl"`
	AccessCode       string `json:"accessCode,omitempty"`
}

// Service writes staged orders ahead of payment
type Service struct {
	gateway  ports.PaymentGateway
	store    ports.DocumentStore
	config   Config
	timeouts *resilience.TimeoutConfig
	logger   ports.Logger
	now      func() time.Time
}

// NewService creates a checkout stager
func NewService(gateway ports.PaymentGateway, store ports.DocumentStore, config Config, timeouts *resilience.TimeoutConfig, logger ports.Logger) *Service {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &Service{
		gateway:  gateway,
		store:    store,
		config:   config,
		timeouts: timeouts,
		logger:   logger,
		now:      time.Now,
	}
}

func validate(req *StageRequest) error {
	if !req.Total.IsPositive() {
		return domain.ErrAmountInvalid
	}
	if strings.TrimSpace(req.Email) == "" {
		return domain.NewDomainError(domain.ErrorCodeValidationMissingField, "email is required")
	}
	if req.IsDebtPayment && req.RunID == "" {
		return domain.NewDomainError(domain.ErrorCodeValidationMissingField, "runId is required for debt payments")
	}
	if domain.ToMinorUnits(req.Total) <= 0 {
		return domain.ErrAmountInvalid
	}
	return nil
}

func kind(isDebt bool) string {
	if isDebt {
		return string(domain.BranchDebtPayment)
	}
	return string(domain.BranchSale)
}

// StageOrder writes the staged order and asks the gateway for an authorization URL.
// When initialization fails the staged order is removed again.
func (s *Service) StageOrder(ctx context.Context, req *StageRequest) (*StageResult, error) {
	if err := validate(req); err != nil {
		observability.RecordStagedOrder(kind(req.IsDebtPayment), "invalid")
		return nil, err
	}

	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		reference = uuid.NewString()
	}

	staged := domain.StagedOrder{
		Reference:     reference,
		Total:         req.Total,
		IsDebtPayment: req.IsDebtPayment,
		RunID:         req.RunID,
		CustomerID:    req.CustomerID,
		OrderID:       req.OrderID,
		CreatedAt:     s.now().UTC(),
		Payload:       req.Payload,
	}

	// The existence check and the write commit together
	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx ports.DocumentTx) error {
		found, err := tx.Get(domain.CollectionPendingOrders, reference, &domain.StagedOrder{})
		if err != nil {
			return err
		}
		if found {
			return domain.NewDomainError(domain.ErrorCodeTxnInvalidState, "reference is already staged").
				WithDetail("reference", reference)
		}
		return tx.Set(domain.CollectionPendingOrders, reference, staged)
	})
	if err != nil {
		if domain.IsDomainError(err, domain.ErrorCodeTxnInvalidState) {
			observability.RecordStagedOrder(kind(req.IsDebtPayment), "duplicate")
			return nil, err
		}
		observability.RecordStagedOrder(kind(req.IsDebtPayment), "failed")
		return nil, fmt.Errorf("stage order: %w", err)
	}

	metadata := map[string]string{"isDebtPayment": strconv.FormatBool(req.IsDebtPayment)}
	for k, v := range map[string]string{"orderId": req.OrderID, "runId": req.RunID, "customerId": req.CustomerID} {
		if v != "" {
			metadata[k] = v
		}
	}

	result, err := s.gateway.Initialize(ctx, &ports.InitializeRequest{
		Reference:        reference,
		Email:            strings.TrimSpace(req.Email),
		AmountMinorUnits: staged.ExpectedAmountMinorUnits(),
		Currency:         s.config.Currency,
		CallbackURL:      s.config.CallbackURL,
		Metadata:         metadata,
	})
	if err != nil {
		s.logger.Error("Gateway initialization failed, removing staged order",
			ports.String("reference", reference),
			ports.Err(err),
		)
		s.compensate(reference)
		observability.RecordStagedOrder(kind(req.IsDebtPayment), "failed")
		return nil, fmt.Errorf("initialize payment: %w", err)
	}

	s.logger.Info("Order staged for payment",
		ports.String("reference", reference),
		ports.Bool("debt_payment", req.IsDebtPayment),
		ports.Int64("amount_minor", staged.ExpectedAmountMinorUnits()),
	)
	observability.RecordStagedOrder(kind(req.IsDebtPayment), "staged")

	return &StageResult{
		Reference:        reference,
		AuthorizationURL: result.AuthorizationURL,
		AccessCode:       result.AccessCode,
	}, nil
}

func (s *Service) compensate(reference string) {
	ctx, cancel := s.timeouts.CleanupContext()
	defer cancel()
	if err := s.store.Delete(ctx, domain.CollectionPendingOrders, reference); err != nil {
		s.logger.Error("Failed to remove staged order after initialization failure",
			ports.String("reference", reference),
			ports.Err(err),
		)
	}
}
