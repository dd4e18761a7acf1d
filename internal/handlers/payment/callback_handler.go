package payment

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/kevin07696/bakery-service/internal/domain"
)

// Reconciler finalizes a payment reference
type Reconciler interface {
	Reconcile(ctx context.Context, reference string) *domain.Outcome
}

// CallbackHandler handles the browser redirect back from the hosted checkout
type CallbackHandler struct {
	reconciler Reconciler
	uiBaseURL  string
	logger     *zap.Logger
}

// NewCallbackHandler creates a callback handler. With an empty uiBaseURL every
// response is JSON.
func NewCallbackHandler(reconciler Reconciler, uiBaseURL string, logger *zap.Logger) *CallbackHandler {
	return &CallbackHandler{
		reconciler: reconciler,
		uiBaseURL:  strings.TrimRight(uiBaseURL, "/"),
		logger:     logger,
	}
}

// ServeHTTP handles GET /payment/callback?reference=...
// Paystack also appends trxref, which is accepted when reference is absent.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	reference := query.Get("reference")
	if reference == "" {
		reference = query.Get("trxref")
	}

	outcome := h.reconciler.Reconcile(r.Context(), reference)

	h.logger.Info("Payment callback processed",
		zap.String("reference", reference),
		zap.String("status", string(outcome.Status)),
		zap.String("code", string(outcome.Code)),
	)

	if h.uiBaseURL == "" || wantsJSON(r) {
		writeJSON(w, h.logger, outcomeStatus(outcome), outcome)
		return
	}
	http.Redirect(w, r, h.redirectTarget(outcome), http.StatusSeeOther)
}

func wantsJSON(r *http.Request) bool {
	return r.URL.Query().Get("format") == "json" ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

// redirectTarget picks the receipt, delivery run or failure page
func (h *CallbackHandler) redirectTarget(o *domain.Outcome) string {
	switch {
	case !o.IsSuccess():
		return h.uiBaseURL + "/payment/failed?message=" + url.QueryEscape(o.Message)
	case o.RunID != "":
		return h.uiBaseURL + "/deliveries/" + url.PathEscape(o.RunID)
	case o.OrderID != "":
		return h.uiBaseURL + "/orders/" + url.PathEscape(o.OrderID)
	default:
		return h.uiBaseURL + "/orders"
	}
}
