package ports

import (
	"context"
	"time"
)

// Change event types emitted after a committed reconciliation
const (
	EventOrderFinalized = "order.finalized"
	EventLedgerUpdated  = "ledger.updated"
)

// ChangeEvent tells subscribers which records changed so they can invalidate caches
type ChangeEvent struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Reference  string            `json:"reference"`
	Collection string            `json:"collection"`
	DocumentID string            `json:"documentId"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// EventPublisher delivers change events to subscribers
type EventPublisher interface {
	Publish(ctx context.Context, event ChangeEvent) error
	Close() error
}
