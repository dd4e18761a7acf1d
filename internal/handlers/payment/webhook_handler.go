package payment

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"
)

const (
	maxWebhookBody     = 1 << 20
	eventChargeSuccess = "charge.success"
)

// SignatureValidator checks a webhook body against its signature header
type SignatureValidator interface {
	ValidateWebhookSignature(body []byte, signature string) bool
}

type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
	} `json:"data"`
}

type webhookResponse struct {
	Received bool        `json:"received"`
	Ignored  bool        `json:"ignored,omitempty"`
	Outcome  interface{} `json:"outcome,omitempty"`
}

// WebhookHandler reconciles charges reported by the gateway's server-to-server webhook
type WebhookHandler struct {
	reconciler      Reconciler
	validator       SignatureValidator
	signatureHeader string
	logger          *zap.Logger
}

// NewWebhookHandler creates a webhook handler reading the signature from signatureHeader
func NewWebhookHandler(reconciler Reconciler, validator SignatureValidator, signatureHeader string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconciler:      reconciler,
		validator:       validator,
		signatureHeader: signatureHeader,
		logger:          logger,
	}
}

// ServeHTTP handles POST /api/v1/payments/webhook.
// A 503 asks the gateway to redeliver; everything else is acknowledged.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("Failed to read webhook body", zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, "unreadable body", "")
		return
	}

	if !h.validator.ValidateWebhookSignature(body, r.Header.Get(h.signatureHeader)) {
		h.logger.Warn("Rejected webhook with invalid signature",
			zap.String("remote_addr", r.RemoteAddr),
		)
		writeError(w, h.logger, http.StatusUnauthorized, "invalid signature", "")
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Warn("Malformed webhook payload", zap.Error(err))
		writeError(w, h.logger, http.StatusBadRequest, "malformed payload", "")
		return
	}

	if event.Event != eventChargeSuccess || event.Data.Reference == "" {
		h.logger.Debug("Ignoring webhook event",
			zap.String("event", event.Event),
			zap.String("reference", event.Data.Reference),
		)
		writeJSON(w, h.logger, http.StatusOK, webhookResponse{Received: true, Ignored: true})
		return
	}

	outcome := h.reconciler.Reconcile(r.Context(), event.Data.Reference)

	h.logger.Info("Webhook charge reconciled",
		zap.String("reference", event.Data.Reference),
		zap.String("status", string(outcome.Status)),
		zap.String("code", string(outcome.Code)),
	)

	status := http.StatusOK
	if outcome.Retryable() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, h.logger, status, webhookResponse{Received: true, Outcome: outcome})
}
