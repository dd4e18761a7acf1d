package payment

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/kevin07696/bakery-service/internal/domain"
)

type errorResponse struct {
	Error string           `json:"error"`
	Code  domain.ErrorCode `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, message string, code domain.ErrorCode) {
	writeJSON(w, logger, status, errorResponse{Error: message, Code: code})
}

// outcomeStatus maps an outcome to the HTTP status used for JSON responses
func outcomeStatus(o *domain.Outcome) int {
	switch {
	case o.IsSuccess():
		return http.StatusOK
	case o.Retryable():
		return http.StatusServiceUnavailable
	case o.Code == domain.ErrorCodeValidationMissingField:
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}
