package domain

// ReconcileStatus is the state of a single reconciliation attempt.
// Verifying is the entry state; Success and Failed are terminal.
type ReconcileStatus string

const (
	ReconcileStatusVerifying ReconcileStatus = "verifying"
	ReconcileStatusSuccess   ReconcileStatus = "success"
	ReconcileStatusFailed    ReconcileStatus = "failed"
)

// ReconcileBranch identifies which finalization was applied
type ReconcileBranch string

const (
	BranchNone        ReconcileBranch = ""
	BranchSale        ReconcileBranch = "sale"
	BranchDebtPayment ReconcileBranch = "debt_payment"
)

// Outcome is reported to the caller so the presentation layer can pick a redirect target
type Outcome struct {
	Status           ReconcileStatus `json:"status"`
	Message          string          `json:"message"`
	OrderID          string          `json:"orderId,omitempty"`
	RunID            string          `json:"runId,omitempty"`
	Code             ErrorCode       `json:"code,omitempty"`
	Branch           ReconcileBranch `json:"branch,omitempty"`
	AlreadyProcessed bool            `json:"alreadyProcessed,omitempty"`
}

// IsSuccess reports whether the attempt ended in Success
func (o *Outcome) IsSuccess() bool {
	return o.Status == ReconcileStatusSuccess
}

// IsTerminal reports whether the outcome can be handed to the caller
func (o *Outcome) IsTerminal() bool {
	return o.Status == ReconcileStatusSuccess || o.Status == ReconcileStatusFailed
}

// Retryable reports whether a redelivery of the same callback could succeed.
// Only store-level failures qualify; a mismatch or decline is final for the reference.
func (o *Outcome) Retryable() bool {
	return o.Status == ReconcileStatusFailed && o.Code == ErrorCodeDatabaseError
}

// FailedOutcome builds a Failed outcome from an error, keeping its domain code
func FailedOutcome(message string, err error) *Outcome {
	code := GetErrorCode(err)
	if code == "" && err != nil {
		code = ErrorCodeInternalError
	}
	return &Outcome{
		Status:  ReconcileStatusFailed,
		Message: message,
		Code:    code,
	}
}
