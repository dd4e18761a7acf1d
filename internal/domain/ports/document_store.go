package ports

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// DocumentTx is the view of the store inside an atomic read-modify-write transaction.
// Writes become visible only when the transaction function returns nil.
type DocumentTx interface {
	// Get decodes the document into dst; found is false when it does not exist
	Get(collection, id string, dst interface{}) (found bool, err error)
	Set(collection, id string, doc interface{}) error
	Delete(collection, id string) error
	// Increment adds delta to a numeric field. The document must exist.
	Increment(collection, id, field string, delta decimal.Decimal) error
}

// DocumentStore provides point CRUD by collection and id plus atomic transactions.
// Conflict detection and retry belong to the implementation.
type DocumentStore interface {
	// Get returns domain.ErrDocumentNotFound when the document does not exist
	Get(ctx context.Context, collection, id string, dst interface{}) error
	Set(ctx context.Context, collection, id string, doc interface{}) error
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, collection string) ([]json.RawMessage, error)
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx DocumentTx) error) error
	Ping(ctx context.Context) error
	Close() error
}
