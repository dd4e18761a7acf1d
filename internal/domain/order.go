package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Collection names used in the document store
const (
	CollectionPendingOrders = "pendingOrders"
	CollectionOrders        = "orders"
	CollectionDeliveryRuns  = "deliveryRuns"
	CollectionCustomers     = "customers"
)

// Ledger fields incremented by debt payments
const (
	FieldTotalCollected = "totalCollected"
	FieldAmountPaid     = "amountPaid"
)

const (
	PaymentMethodCard    = "Card"
	OrderStatusCompleted = "Completed"
)

// StagedOrder is the temporary record written by checkout before the customer is sent
// to the payment gateway. It is keyed by the gateway reference and consumed exactly once.
type StagedOrder struct {
	Reference     string          `json:"reference"`
	Total         decimal.Decimal `json:"total"`
	IsDebtPayment bool            `json:"isDebtPayment"`
	RunID         string          `json:"runId,omitempty"`
	CustomerID    string          `json:"customerId,omitempty"`
	OrderID       string          `json:"orderId,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`

	// Payload holds every other key of the staged document (line items,
	// customer name, ...). It is carried verbatim into the finalized order.
	Payload map[string]json.RawMessage `json:"-"`
}

var stagedOrderKeys = map[string]bool{
	"reference":     true,
	"total":         true,
	"isDebtPayment": true,
	"runId":         true,
	"customerId":    true,
	"orderId":       true,
	"createdAt":     true,
}

type stagedOrderFields StagedOrder

// MarshalJSON flattens Payload next to the known fields
func (o StagedOrder) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(stagedOrderFields(o))
	if err != nil {
		return nil, err
	}
	return mergePayload(known, o.Payload, stagedOrderKeys)
}

// UnmarshalJSON splits unknown keys into Payload
func (o *StagedOrder) UnmarshalJSON(data []byte) error {
	var fields stagedOrderFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	payload, err := extractPayload(data, stagedOrderKeys)
	if err != nil {
		return err
	}
	*o = StagedOrder(fields)
	o.Payload = payload
	return nil
}

// ResolveOrderID picks the id under which a sale is finalized: the gateway metadata
// value first, then the one stored at checkout, then the reference itself.
func (o *StagedOrder) ResolveOrderID(metadataOrderID string) string {
	if metadataOrderID != "" {
		return metadataOrderID
	}
	if o.OrderID != "" {
		return o.OrderID
	}
	return o.Reference
}

// ExpectedAmountMinorUnits returns the amount the gateway should have charged
func (o *StagedOrder) ExpectedAmountMinorUnits() int64 {
	return ToMinorUnits(o.Total)
}

// FinalizedOrder is the durable sale record created by a non-debt reconciliation
type FinalizedOrder struct {
	ID            string          `json:"id"`
	Reference     string          `json:"reference"`
	Total         decimal.Decimal `json:"total"`
	CustomerID    string          `json:"customerId,omitempty"`
	RunID         string          `json:"runId,omitempty"`
	PaymentMethod string          `json:"paymentMethod"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	CompletedAt   time.Time       `json:"completedAt"`

	Payload map[string]json.RawMessage `json:"-"`
}

var finalizedOrderKeys = map[string]bool{
	"id":            true,
	"reference":     true,
	"total":         true,
	"customerId":    true,
	"runId":         true,
	"paymentMethod": true,
	"status":        true,
	"createdAt":     true,
	"completedAt":   true,
}

type finalizedOrderFields FinalizedOrder

// MarshalJSON flattens Payload next to the known fields
func (o FinalizedOrder) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(finalizedOrderFields(o))
	if err != nil {
		return nil, err
	}
	return mergePayload(known, o.Payload, finalizedOrderKeys)
}

// UnmarshalJSON splits unknown keys into Payload
func (o *FinalizedOrder) UnmarshalJSON(data []byte) error {
	var fields finalizedOrderFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	payload, err := extractPayload(data, finalizedOrderKeys)
	if err != nil {
		return err
	}
	*o = FinalizedOrder(fields)
	o.Payload = payload
	return nil
}

// Finalize builds the completed sale for a staged order. The staged createdAt
// and runId travel with it.
func (o *StagedOrder) Finalize(orderID string, completedAt time.Time) *FinalizedOrder {
	payload := make(map[string]json.RawMessage, len(o.Payload))
	for k, v := range o.Payload {
		payload[k] = v
	}
	return &FinalizedOrder{
		ID:            orderID,
		Reference:     o.Reference,
		Total:         o.Total,
		CustomerID:    o.CustomerID,
		RunID:         o.RunID,
		PaymentMethod: PaymentMethodCard,
		Status:        OrderStatusCompleted,
		CreatedAt:     o.CreatedAt,
		CompletedAt:   completedAt,
		Payload:       payload,
	}
}

// DeliveryRun is the subset of a delivery run record the reconciler reads back
type DeliveryRun struct {
	ID             string          `json:"id"`
	TotalCollected decimal.Decimal `json:"totalCollected"`
}

// Customer is the subset of a customer record the reconciler reads back
type Customer struct {
	ID         string          `json:"id"`
	Name       string          `json:"name,omitempty"`
	AmountPaid decimal.Decimal `json:"amountPaid"`
}

func mergePayload(known []byte, payload map[string]json.RawMessage, reserved map[string]bool) ([]byte, error) {
	if len(payload) == 0 {
		return known, nil
	}
	merged := make(map[string]json.RawMessage, len(payload)+len(reserved))
	for k, v := range payload {
		if reserved[k] {
			continue
		}
		merged[k] = v
	}
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, fmt.Errorf("merge order payload: %w", err)
	}
	return json.Marshal(merged)
}

func extractPayload(data []byte, reserved map[string]bool) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for k := range reserved {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}
