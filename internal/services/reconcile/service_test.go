package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kevin07696/bakery-service/internal/adapters/badger"
	"github.com/kevin07696/bakery-service/internal/domain"
	"github.com/kevin07696/bakery-service/internal/domain/ports"
	pkgerrors "github.com/kevin07696/bakery-service/pkg/errors"
	"github.com/kevin07696/bakery-service/pkg/resilience"
	"github.com/kevin07696/bakery-service/pkg/shutdown"
	"github.com/kevin07696/bakery-service/test/mocks"
)

var fixedNow = time.Date(2026, 6, 1, 10, 30, 0, 0, time.UTC)

type fixture struct {
	svc       *Service
	store     ports.DocumentStore
	gateway   *mocks.MockPaymentGateway
	publisher *mocks.MockEventPublisher
	logger    *mocks.MockLogger
	cleanups  *shutdown.InFlightTracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := mocks.NewMockLogger()
	store, err := badger.Open(badger.Config{InMemory: true}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return newFixtureWithStore(t, store, logger)
}

func newFixtureWithStore(t *testing.T, store ports.DocumentStore, logger *mocks.MockLogger) *fixture {
	t.Helper()
	f := &fixture{
		store:     store,
		gateway:   mocks.NewMockPaymentGateway(),
		publisher: mocks.NewMockEventPublisher(),
		logger:    logger,
		cleanups:  shutdown.NewInFlightTracker("test-cleanups", zaptest.NewLogger(t)),
	}
	f.svc = NewService(f.gateway, store, f.cleanups, resilience.TestTimeoutConfig(), logger,
		WithClock(func() time.Time { return fixedNow }),
		WithPublisher(f.publisher),
	)
	return f
}

func (f *fixture) stage(t *testing.T, order domain.StagedOrder) {
	t.Helper()
	require.NoError(t, f.store.Set(context.Background(), domain.CollectionPendingOrders, order.Reference, order))
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.cleanups.Wait(ctx))
}

func (f *fixture) stagedExists(t *testing.T, reference string) bool {
	t.Helper()
	var staged domain.StagedOrder
	err := f.store.Get(context.Background(), domain.CollectionPendingOrders, reference, &staged)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return false
	}
	require.NoError(t, err)
	return true
}

func (f *fixture) seedRun(t *testing.T, id string, collected string) {
	t.Helper()
	require.NoError(t, f.store.Set(context.Background(), domain.CollectionDeliveryRuns, id,
		domain.DeliveryRun{ID: id, TotalCollected: decimal.RequireFromString(collected)}))
}

func (f *fixture) seedCustomer(t *testing.T, id string, paid string) {
	t.Helper()
	require.NoError(t, f.store.Set(context.Background(), domain.CollectionCustomers, id,
		domain.Customer{ID: id, Name: "Bola", AmountPaid: decimal.RequireFromString(paid)}))
}

func (f *fixture) run(t *testing.T, id string) domain.DeliveryRun {
	t.Helper()
	var run domain.DeliveryRun
	require.NoError(t, f.store.Get(context.Background(), domain.CollectionDeliveryRuns, id, &run))
	return run
}

func (f *fixture) customer(t *testing.T, id string) domain.Customer {
	t.Helper()
	var c domain.Customer
	require.NoError(t, f.store.Get(context.Background(), domain.CollectionCustomers, id, &c))
	return c
}

func debtOrder() domain.StagedOrder {
	return domain.StagedOrder{
		Reference:     "R2",
		Total:         decimal.RequireFromString("20.00"),
		IsDebtPayment: true,
		RunID:         "RUN1",
		CustomerID:    "CUST1",
	}
}

func TestReconcile_EmptyReference(t *testing.T) {
	f := newFixture(t)

	outcome := f.svc.Reconcile(context.Background(), "   ")

	assert.Equal(t, domain.ReconcileStatusFailed, outcome.Status)
	assert.Equal(t, domain.ErrorCodeValidationMissingField, outcome.Code)
	assert.Equal(t, 0, f.gateway.VerifyCallCount(), "gateway must not be called")
}

func TestReconcile_NewSale(t *testing.T) {
	tests := []struct {
		name        string
		metadata    map[string]string
		stagedID    string
		wantOrderID string
	}{
		{name: "metadata order id", metadata: map[string]string{"orderId": "ORD-7"}, wantOrderID: "ORD-7"},
		{name: "staged order id", stagedID: "ORD-STAGED", wantOrderID: "ORD-STAGED"},
		{name: "falls back to reference", wantOrderID: "R1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.stage(t, domain.StagedOrder{
				Reference: "R1",
				Total:     decimal.RequireFromString("50.00"),
				OrderID:   tt.stagedID,
				Payload: map[string]json.RawMessage{
					"customerName": json.RawMessage(`"Ada"`),
					"items":        json.RawMessage(`[{"sku":"bread","qty":2}]`),
				},
			})
			f.gateway.SetChargeSuccess("R1", 5000, tt.metadata)

			outcome := f.svc.Reconcile(context.Background(), "R1")

			require.Equal(t, domain.ReconcileStatusSuccess, outcome.Status, outcome.Message)
			assert.Equal(t, tt.wantOrderID, outcome.OrderID)
			assert.Equal(t, domain.BranchSale, outcome.Branch)
			assert.Empty(t, outcome.RunID)
			assert.False(t, outcome.AlreadyProcessed)

			var order domain.FinalizedOrder
			require.NoError(t, f.store.Get(context.Background(), domain.CollectionOrders, tt.wantOrderID, &order))
			assert.Equal(t, tt.wantOrderID, order.ID)
			assert.Equal(t, "Completed", order.Status)
			assert.Equal(t, "Card", order.PaymentMethod)
			assert.Equal(t, "R1", order.Reference)
			assert.True(t, order.Total.Equal(decimal.NewFromInt(50)))
			assert.True(t, order.CompletedAt.Equal(fixedNow))
			assert.JSONEq(t, `"Ada"`, string(order.Payload["customerName"]))
			assert.JSONEq(t, `[{"sku":"bread","qty":2}]`, string(order.Payload["items"]))

			assert.False(t, f.stagedExists(t, "R1"))

			events := f.publisher.Published()
			require.Len(t, events, 1)
			assert.Equal(t, ports.EventOrderFinalized, events[0].Type)
			assert.Equal(t, tt.wantOrderID, events[0].DocumentID)
			assert.Equal(t, "5000", events[0].Attributes["amountMinor"])
		})
	}
}

func TestReconcile_DebtPayment(t *testing.T) {
	f := newFixture(t)
	f.seedRun(t, "RUN1", "100.50")
	f.seedCustomer(t, "CUST1", "5")
	f.stage(t, debtOrder())
	f.gateway.SetChargeSuccess("R2", 2000, nil)

	outcome := f.svc.Reconcile(context.Background(), "R2")

	require.Equal(t, domain.ReconcileStatusSuccess, outcome.Status, outcome.Message)
	assert.Equal(t, "RUN1", outcome.RunID)
	assert.Equal(t, domain.BranchDebtPayment, outcome.Branch)

	assert.True(t, f.run(t, "RUN1").TotalCollected.Equal(decimal.RequireFromString("120.50")))
	assert.True(t, f.customer(t, "CUST1").AmountPaid.Equal(decimal.RequireFromString("25")))
	assert.Equal(t, "Bola", f.customer(t, "CUST1").Name)

	orders, err := f.store.List(context.Background(), domain.CollectionOrders)
	require.NoError(t, err)
	assert.Empty(t, orders, "debt payments never create an order")
	assert.False(t, f.stagedExists(t, "R2"))

	events := f.publisher.Published()
	require.Len(t, events, 1)
	assert.Equal(t, ports.EventLedgerUpdated, events[0].Type)
	assert.Equal(t, "RUN1", events[0].DocumentID)
	assert.Equal(t, "CUST1", events[0].Attributes["customerId"])
}

func TestReconcile_DebtPaymentWithoutCustomer(t *testing.T) {
	f := newFixture(t)
	f.seedRun(t, "RUN1", "0")
	order := debtOrder()
	order.CustomerID = ""
	f.stage(t, order)
	f.gateway.SetChargeSuccess("R2", 2000, nil)

	outcome := f.svc.Reconcile(context.Background(), "R2")

	require.True(t, outcome.IsSuccess(), outcome.Message)
	assert.True(t, f.run(t, "RUN1").TotalCollected.Equal(decimal.RequireFromString("20")))
}

func TestReconcile_IdempotentRepeat(t *testing.T) {
	f := newFixture(t)
	f.seedRun(t, "RUN1", "0")
	f.seedCustomer(t, "CUST1", "0")
	f.stage(t, debtOrder())
	f.gateway.SetChargeSuccess("R2", 2000, nil)

	first := f.svc.Reconcile(context.Background(), "R2")
	second := f.svc.Reconcile(context.Background(), "R2")

	require.True(t, first.IsSuccess())
	require.True(t, second.IsSuccess())
	assert.False(t, first.AlreadyProcessed)
	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, "Payment already processed", second.Message)

	assert.True(t, f.run(t, "RUN1").TotalCollected.Equal(decimal.RequireFromString("20")), "incremented exactly once")
	assert.True(t, f.customer(t, "CUST1").AmountPaid.Equal(decimal.RequireFromString("20")))
	assert.Len(t, f.publisher.Published(), 1, "no event for the no-op")
}

func TestReconcile_AmountMismatchIsAtomic(t *testing.T) {
	f := newFixture(t)
	f.seedRun(t, "RUN1", "0")
	f.seedCustomer(t, "CUST1", "0")
	order := debtOrder()
	order.Total = decimal.RequireFromString("100.00")
	f.stage(t, order)
	f.gateway.SetChargeSuccess("R2", 9000, nil)

	outcome := f.svc.Reconcile(context.Background(), "R2")
	f.drain(t)

	assert.Equal(t, domain.ReconcileStatusFailed, outcome.Status)
	assert.Equal(t, domain.ErrorCodeTxnAmountMismatch, outcome.Code)
	assert.Contains(t, outcome.Message, "9000")
	assert.Contains(t, outcome.Message, "10000")
	assert.False(t, outcome.Retryable())

	assert.True(t, f.stagedExists(t, "R2"), "staged record is retained for investigation")
	assert.True(t, f.run(t, "RUN1").TotalCollected.IsZero())
	assert.True(t, f.customer(t, "CUST1").AmountPaid.IsZero())
	assert.Empty(t, f.publisher.Published())
}

func TestReconcile_AmountRoundsHalfAwayFromZero(t *testing.T) {
	f := newFixture(t)
	f.stage(t, domain.StagedOrder{Reference: "R5", Total: decimal.RequireFromString("10.005")})
	f.gateway.SetChargeSuccess("R5", 1001, nil)

	outcome := f.svc.Reconcile(context.Background(), "R5")

	assert.True(t, outcome.IsSuccess(), outcome.Message)
}

func TestReconcile_MissingStagedRecord(t *testing.T) {
	f := newFixture(t)
	f.seedRun(t, "RUN1", "3")
	f.gateway.SetChargeSuccess("GONE", 2000, map[string]string{"runId": "RUN1"})

	outcome := f.svc.Reconcile(context.Background(), "GONE")

	assert.True(t, outcome.IsSuccess())
	assert.True(t, outcome.AlreadyProcessed)
	assert.Empty(t, outcome.OrderID)
	assert.True(t, f.run(t, "RUN1").TotalCollected.Equal(decimal.NewFromInt(3)))
	orders, err := f.store.List(context.Background(), domain.CollectionOrders)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestReconcile_GatewayDeclined(t *testing.T) {
	f := newFixture(t)
	f.stage(t, domain.StagedOrder{Reference: "R3", Total: decimal.NewFromInt(10)})
	f.gateway.SetVerifyResponse("R3", &ports.VerifyResult{Reference: "R3", Success: false, Message: "Declined by issuer"}, nil)

	outcome := f.svc.Reconcile(context.Background(), "R3")
	f.drain(t)

	assert.Equal(t, domain.ReconcileStatusFailed, outcome.Status)
	assert.Equal(t, domain.ErrorCodeGatewayDeclined, outcome.Code)
	assert.Equal(t, "Declined by issuer", outcome.Message)
	assert.False(t, f.stagedExists(t, "R3"), "staged record cleaned up")

	orders, err := f.store.List(context.Background(), domain.CollectionOrders)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestReconcile_GatewayUnreachable(t *testing.T) {
	f := newFixture(t)
	f.stage(t, domain.StagedOrder{Reference: "R3", Total: decimal.NewFromInt(10)})
	gwErr := pkgerrors.NewPaymentError("NETWORK_ERROR", "connection refused", pkgerrors.CategoryNetworkError, true)
	f.gateway.SetVerifyResponse("R3", nil, gwErr)

	outcome := f.svc.Reconcile(context.Background(), "R3")
	f.drain(t)

	assert.Equal(t, domain.ReconcileStatusFailed, outcome.Status)
	assert.Equal(t, domain.ErrorCodeGatewayError, outcome.Code)
	assert.Equal(t, "connection refused", outcome.Message)
	assert.False(t, f.stagedExists(t, "R3"))
}

func TestReconcile_UnknownReference(t *testing.T) {
	f := newFixture(t)

	outcome := f.svc.Reconcile(context.Background(), "NOPE")
	f.drain(t)

	assert.Equal(t, domain.ReconcileStatusFailed, outcome.Status)
	assert.Equal(t, "Transaction reference not found", outcome.Message)
}

// deleteFailingStore fails point deletes so cleanup errors can be observed
type deleteFailingStore struct {
	ports.DocumentStore
}

func (s deleteFailingStore) Delete(ctx context.Context, collection, id string) error {
	return domain.WrapError(domain.ErrorCodeDatabaseError, "delete document", errors.New("disk full"))
}

func TestReconcile_CleanupFailureIsLoggedOnly(t *testing.T) {
	logger := mocks.NewMockLogger()
	inner, err := badger.Open(badger.Config{InMemory: true}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = inner.Close() })

	f := newFixtureWithStore(t, deleteFailingStore{inner}, logger)
	f.stage(t, domain.StagedOrder{Reference: "R3", Total: decimal.NewFromInt(10)})

	outcome := f.svc.Reconcile(context.Background(), "R3")
	f.drain(t)

	assert.Equal(t, domain.ReconcileStatusFailed, outcome.Status)
	assert.Equal(t, domain.ErrorCodeGatewayDeclined, outcome.Code)
	assert.True(t, logger.HasMessage("Failed to clean up staged order"))
	assert.True(t, f.stagedExists(t, "R3"))
}

func TestReconcile_CleanupSkippedDuringShutdown(t *testing.T) {
	f := newFixture(t)
	f.stage(t, domain.StagedOrder{Reference: "R3", Total: decimal.NewFromInt(10)})
	require.NoError(t, f.cleanups.Shutdown(context.Background()))

	outcome := f.svc.Reconcile(context.Background(), "R3")

	assert.Equal(t, domain.ReconcileStatusFailed, outcome.Status)
	assert.True(t, f.logger.HasMessage("Skipping staged order cleanup during shutdown"))
}

func TestReconcile_MissingRunAbortsDebtPayment(t *testing.T) {
	f := newFixture(t)
	f.seedCustomer(t, "CUST1", "0")
	f.stage(t, debtOrder())
	f.gateway.SetChargeSuccess("R2", 2000, nil)

	outcome := f.svc.Reconcile(context.Background(), "R2")

	assert.Equal(t, domain.ReconcileStatusFailed, outcome.Status)
	assert.Equal(t, domain.ErrorCodeDocumentNotFound, outcome.Code)
	assert.Equal(t, "delivery run RUN1 not found", outcome.Message)
	assert.True(t, f.stagedExists(t, "R2"))
	assert.True(t, f.customer(t, "CUST1").AmountPaid.IsZero())
}

func TestReconcile_MissingCustomerRollsBackRun(t *testing.T) {
	f := newFixture(t)
	f.seedRun(t, "RUN1", "7")
	f.stage(t, debtOrder())
	f.gateway.SetChargeSuccess("R2", 2000, nil)

	outcome := f.svc.Reconcile(context.Background(), "R2")

	assert.Equal(t, domain.ErrorCodeDocumentNotFound, outcome.Code)
	assert.True(t, f.run(t, "RUN1").TotalCollected.Equal(decimal.NewFromInt(7)), "run increment rolled back")
	assert.True(t, f.stagedExists(t, "R2"))
}

func TestReconcile_DebtPaymentWithoutRun(t *testing.T) {
	f := newFixture(t)
	order := debtOrder()
	order.RunID = ""
	f.stage(t, order)
	f.gateway.SetChargeSuccess("R2", 2000, nil)

	outcome := f.svc.Reconcile(context.Background(), "R2")

	assert.Equal(t, domain.ErrorCodeTxnInvalidState, outcome.Code)
	assert.True(t, f.stagedExists(t, "R2"))
}

// txFailingStore fails every transaction at the store level
type txFailingStore struct {
	ports.DocumentStore
}

func (s txFailingStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx ports.DocumentTx) error) error {
	return domain.WrapError(domain.ErrorCodeDatabaseError, "transaction conflict", errors.New("too many retries"))
}

func TestReconcile_StoreFailureIsRetryable(t *testing.T) {
	logger := mocks.NewMockLogger()
	inner, err := badger.Open(badger.Config{InMemory: true}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = inner.Close() })

	f := newFixtureWithStore(t, txFailingStore{inner}, logger)
	f.gateway.SetChargeSuccess("R1", 5000, nil)

	outcome := f.svc.Reconcile(context.Background(), "R1")

	assert.Equal(t, domain.ReconcileStatusFailed, outcome.Status)
	assert.Equal(t, domain.ErrorCodeDatabaseError, outcome.Code)
	assert.Equal(t, "transaction conflict: too many retries", outcome.Message)
	assert.True(t, outcome.Retryable())
	assert.NotEmpty(t, logger.Errors())
}

func TestReconcile_PublishFailureKeepsSuccess(t *testing.T) {
	f := newFixture(t)
	f.publisher.Err = errors.New("broker unavailable")
	f.stage(t, domain.StagedOrder{Reference: "R1", Total: decimal.NewFromInt(50)})
	f.gateway.SetChargeSuccess("R1", 5000, nil)

	outcome := f.svc.Reconcile(context.Background(), "R1")

	assert.True(t, outcome.IsSuccess())
	assert.Equal(t, 1, f.publisher.FailedAttempts())
	assert.True(t, f.logger.HasMessage("Failed to publish change event"))
}

func TestReconcile_ConcurrentDuplicatesFinalizeOnce(t *testing.T) {
	f := newFixture(t)
	f.seedRun(t, "RUN1", "0")
	f.seedCustomer(t, "CUST1", "0")
	f.stage(t, debtOrder())
	f.gateway.SetChargeSuccess("R2", 2000, nil)

	const callers = 8
	outcomes := make([]*domain.Outcome, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = f.svc.Reconcile(context.Background(), "R2")
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, o := range outcomes {
		require.True(t, o.IsSuccess(), o.Message)
		if !o.AlreadyProcessed {
			applied++
		}
	}
	assert.Equal(t, 1, applied)
	assert.True(t, f.run(t, "RUN1").TotalCollected.Equal(decimal.NewFromInt(20)))
	assert.True(t, f.customer(t, "CUST1").AmountPaid.Equal(decimal.NewFromInt(20)))
	assert.Len(t, f.publisher.Published(), 1)
}
