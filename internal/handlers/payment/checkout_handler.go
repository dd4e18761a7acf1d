package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kevin07696/bakery-service/internal/domain"
	"github.com/kevin07696/bakery-service/internal/services/checkout"
	pkgerrors "github.com/kevin07696/bakery-service/pkg/errors"
)

const maxCheckoutBody = 64 << 10

// Stager stages orders for card payment
type Stager interface {
	StageOrder(ctx context.Context, req *checkout.StageRequest) (*checkout.StageResult, error)
}

// CheckoutHandler exposes order staging over JSON
type CheckoutHandler struct {
	stager Stager
	logger *zap.Logger
}

func NewCheckoutHandler(stager Stager, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{stager: stager, logger: logger}
}

// ServeHTTP handles POST /api/v1/checkout
func (h *CheckoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req checkout.StageRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCheckoutBody))
	if err := decoder.Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid request body", domain.ErrorCodeValidationFailed)
		return
	}

	result, err := h.stager.StageOrder(r.Context(), &req)
	if err != nil {
		status, message := checkoutErrorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Checkout failed", zap.Error(err))
		}
		writeError(w, h.logger, status, message, domain.GetErrorCode(err))
		return
	}

	writeJSON(w, h.logger, http.StatusCreated, result)
}

func checkoutErrorStatus(err error) (int, string) {
	var de *domain.DomainError
	if errors.As(err, &de) {
		switch {
		case domain.IsValidationError(err):
			return http.StatusBadRequest, de.Message
		case de.Code == domain.ErrorCodeTxnInvalidState:
			return http.StatusConflict, de.Message
		}
	}

	var pe *pkgerrors.PaymentError
	if errors.As(err, &pe) {
		return http.StatusBadGateway, "payment gateway unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}
