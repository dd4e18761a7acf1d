// Package reconcile finalizes staged orders once the payment gateway confirms the charge.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kevin07696/bakery-service/internal/domain"
	"github.com/kevin07696/bakery-service/internal/domain/ports"
	pkgerrors "github.com/kevin07696/bakery-service/pkg/errors"
	"github.com/kevin07696/bakery-service/pkg/observability"
	"github.com/kevin07696/bakery-service/pkg/resilience"
	"github.com/kevin07696/bakery-service/pkg/shutdown"
)

const (
	msgAlreadyProcessed = "Payment already processed"
	msgOrderCompleted   = "Payment verified and order completed"
	msgDebtRecorded     = "Payment verified and debt payment recorded"
	msgNotSuccessful    = "Payment was not successful"
)

// Service reconciles gateway transactions against staged orders
type Service struct {
	gateway   ports.PaymentVerifier
	store     ports.DocumentStore
	publisher ports.EventPublisher
	cleanups  *shutdown.InFlightTracker
	timeouts  *resilience.TimeoutConfig
	logger    ports.Logger
	now       func() time.Time
}

// Option customizes a Service
type Option func(*Service)

// WithClock overrides the clock used for completion timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPublisher sets the change event publisher
func WithPublisher(p ports.EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// NewService creates a reconciler. Background cleanups are registered with cleanups
// so shutdown can drain them.
func NewService(
	gateway ports.PaymentVerifier,
	store ports.DocumentStore,
	cleanups *shutdown.InFlightTracker,
	timeouts *resilience.TimeoutConfig,
	logger ports.Logger,
	opts ...Option,
) *Service {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	s := &Service{
		gateway:  gateway,
		store:    store,
		cleanups: cleanups,
		timeouts: timeouts,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// finalization records what a committed transaction applied
type finalization struct {
	branch      domain.ReconcileBranch
	orderID     string
	runID       string
	customerID  string
	amountMinor int64
}

// Reconcile verifies reference with the gateway and, when the charge succeeded,
// finalizes its staged order in one store transaction. The returned outcome is
// always terminal.
func (s *Service) Reconcile(ctx context.Context, reference string) *domain.Outcome {
	start := time.Now()
	outcome := s.reconcile(ctx, strings.TrimSpace(reference))
	observability.RecordReconciliation(string(outcome.Status), string(outcome.Branch), metricCode(outcome), time.Since(start).Seconds())
	return outcome
}

func metricCode(o *domain.Outcome) string {
	switch {
	case o.AlreadyProcessed:
		return "already_processed"
	case o.Code == "":
		return "ok"
	default:
		return string(o.Code)
	}
}

func (s *Service) reconcile(ctx context.Context, reference string) *domain.Outcome {
	if reference == "" {
		s.logger.Warn("Reconcile called without reference")
		return domain.FailedOutcome(domain.ErrReferenceRequired.Message, domain.ErrReferenceRequired)
	}

	ctx, cancel := s.timeouts.ReconcileContext(ctx)
	defer cancel()

	result, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		msg := gatewayMessage(err)
		s.logger.Warn("Gateway verification failed",
			ports.String("reference", reference),
			ports.Err(err),
		)
		s.cleanupStaged(reference)
		return domain.FailedOutcome(msg, domain.WrapError(domain.ErrorCodeGatewayError, msg, err))
	}
	if result == nil || !result.Success {
		msg := msgNotSuccessful
		if result != nil && result.Message != "" {
			msg = result.Message
		}
		s.logger.Info("Gateway reported unsuccessful payment",
			ports.String("reference", reference),
			ports.String("gateway_message", msg),
		)
		s.cleanupStaged(reference)
		return domain.FailedOutcome(msg, domain.ErrGatewayDeclined)
	}

	var applied *finalization
	err = s.store.RunTransaction(ctx, func(ctx context.Context, tx ports.DocumentTx) error {
		// fn may be replayed on conflict
		applied = nil
		f, err := s.finalize(tx, reference, result)
		if err != nil {
			return err
		}
		applied = f
		return nil
	})
	if err != nil {
		s.logger.Error("Reconciliation transaction failed",
			ports.String("reference", reference),
			ports.String("code", string(domain.GetErrorCode(err))),
			ports.Err(err),
		)
		return domain.FailedOutcome(failureMessage(err), err)
	}

	if applied == nil {
		s.logger.Info("Staged order already processed", ports.String("reference", reference))
		return &domain.Outcome{
			Status:           domain.ReconcileStatusSuccess,
			Message:          msgAlreadyProcessed,
			AlreadyProcessed: true,
		}
	}

	s.logger.Info("Payment reconciled",
		ports.String("reference", reference),
		ports.String("branch", string(applied.branch)),
		ports.String("order_id", applied.orderID),
		ports.String("run_id", applied.runID),
		ports.Int64("amount_minor", applied.amountMinor),
	)
	observability.RecordReconciledAmount(string(applied.branch), applied.amountMinor)
	s.publish(ctx, reference, applied)

	outcome := &domain.Outcome{
		Status:  domain.ReconcileStatusSuccess,
		Message: msgOrderCompleted,
		OrderID: applied.orderID,
		Branch:  applied.branch,
	}
	if applied.branch == domain.BranchDebtPayment {
		outcome.Message = msgDebtRecorded
		outcome.RunID = applied.runID
	}
	return outcome
}

// finalize runs inside the store transaction. A nil finalization with a nil error
// means the staged order no longer exists.
func (s *Service) finalize(tx ports.DocumentTx, reference string, result *ports.VerifyResult) (*finalization, error) {
	var staged domain.StagedOrder
	found, err := tx.Get(domain.CollectionPendingOrders, reference, &staged)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	if staged.Reference == "" {
		staged.Reference = reference
	}

	expected := staged.ExpectedAmountMinorUnits()
	if expected != result.ChargedAmountMinorUnits {
		return nil, domain.NewDomainError(domain.ErrorCodeTxnAmountMismatch,
			fmt.Sprintf("charged amount %d does not match expected %d", result.ChargedAmountMinorUnits, expected)).
			WithDetail("reference", reference).
			WithDetail("expected_minor", expected).
			WithDetail("charged_minor", result.ChargedAmountMinorUnits)
	}

	f := &finalization{
		orderID:     staged.ResolveOrderID(result.MetadataValue("orderId")),
		customerID:  staged.CustomerID,
		amountMinor: expected,
	}

	if staged.IsDebtPayment {
		if staged.RunID == "" {
			return nil, domain.ErrRunRequired
		}
		f.branch = domain.BranchDebtPayment
		f.runID = staged.RunID

		if err := tx.Increment(domain.CollectionDeliveryRuns, staged.RunID, domain.FieldTotalCollected, staged.Total); err != nil {
			return nil, ledgerError("delivery run", staged.RunID, err)
		}
		if staged.CustomerID != "" {
			if err := tx.Increment(domain.CollectionCustomers, staged.CustomerID, domain.FieldAmountPaid, staged.Total); err != nil {
				return nil, ledgerError("customer", staged.CustomerID, err)
			}
		}
	} else {
		f.branch = domain.BranchSale
		if err := tx.Set(domain.CollectionOrders, f.orderID, staged.Finalize(f.orderID, s.now().UTC())); err != nil {
			return nil, err
		}
	}

	if err := tx.Delete(domain.CollectionPendingOrders, reference); err != nil {
		return nil, err
	}
	return f, nil
}

func ledgerError(kind, id string, err error) error {
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return domain.WrapError(domain.ErrorCodeDocumentNotFound, fmt.Sprintf("%s %s not found", kind, id), err)
	}
	return err
}

// cleanupStaged deletes the staged order in the background. Failure is logged only.
func (s *Service) cleanupStaged(reference string) {
	started := s.cleanups.Go(func() {
		ctx, cancel := s.timeouts.CleanupContext()
		defer cancel()

		if err := s.store.Delete(ctx, domain.CollectionPendingOrders, reference); err != nil {
			s.logger.Warn("Failed to clean up staged order",
				ports.String("reference", reference),
				ports.Err(err),
			)
			return
		}
		s.logger.Debug("Staged order cleaned up", ports.String("reference", reference))
	})
	if !started {
		s.logger.Warn("Skipping staged order cleanup during shutdown", ports.String("reference", reference))
	}
}

func (s *Service) publish(ctx context.Context, reference string, f *finalization) {
	if s.publisher == nil {
		return
	}

	event := ports.ChangeEvent{
		ID:         uuid.NewString(),
		Type:       ports.EventOrderFinalized,
		Reference:  reference,
		Collection: domain.CollectionOrders,
		DocumentID: f.orderID,
		Attributes: map[string]string{
			"amountMinor": fmt.Sprintf("%d", f.amountMinor),
		},
		OccurredAt: s.now().UTC(),
	}
	if f.branch == domain.BranchDebtPayment {
		event.Type = ports.EventLedgerUpdated
		event.Collection = domain.CollectionDeliveryRuns
		event.DocumentID = f.runID
		if f.customerID != "" {
			event.Attributes["customerId"] = f.customerID
		}
	}

	pubCtx, cancel := s.timeouts.PublishContext(ctx)
	defer cancel()

	if err := s.publisher.Publish(pubCtx, event); err != nil {
		observability.RecordChangeEvent(event.Type, "failed")
		s.logger.Error("Failed to publish change event",
			ports.String("reference", reference),
			ports.String("type", event.Type),
			ports.Err(err),
		)
		return
	}
	observability.RecordChangeEvent(event.Type, "published")
}

func gatewayMessage(err error) string {
	var pe *pkgerrors.PaymentError
	if errors.As(err, &pe) {
		if pe.GatewayMessage != "" {
			return pe.GatewayMessage
		}
		return pe.Message
	}
	return err.Error()
}

func failureMessage(err error) string {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		return err.Error()
	}
	if de.Code == domain.ErrorCodeDatabaseError && de.Err != nil {
		return fmt.Sprintf("%s: %v", de.Message, de.Err)
	}
	return de.Message
}
