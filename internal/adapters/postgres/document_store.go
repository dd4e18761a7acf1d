package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/bakery-service/internal/domain"
	"github.com/kevin07696/bakery-service/internal/domain/ports"
	"github.com/kevin07696/bakery-service/pkg/resilience"
	"github.com/shopspring/decimal"
)

const (
	sqlGetDocument = `SELECT data FROM documents WHERE collection = $1 AND id = $2`

	sqlGetDocumentForUpdate = sqlGetDocument + ` FOR UPDATE`

	sqlUpsertDocument = `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = now()`

	sqlDeleteDocument = `DELETE FROM documents WHERE collection = $1 AND id = $2`

	sqlListDocuments = `SELECT data FROM documents WHERE collection = $1 ORDER BY id`

	// jsonb numbers are numeric, so the sum keeps full decimal precision
	sqlIncrementField = `
		UPDATE documents
		SET data = jsonb_set(
				data,
				ARRAY[$3::text],
				to_jsonb(COALESCE(NULLIF(data->>$3, ''), '0')::numeric + $4::numeric),
				true),
			updated_at = now()
		WHERE collection = $1 AND id = $2`
)

// Postgres error codes the store reacts to
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgInvalidTextRepr      = "22P02"
)

// DocumentStore keeps documents in a single jsonb table. Transactions run at
// SERIALIZABLE with row locks on reads and are replayed on serialization failures.
type DocumentStore struct {
	db          *DBExecutor
	logger      ports.Logger
	maxAttempts int
	backoff     resilience.BackoffStrategy
}

var _ ports.DocumentStore = (*DocumentStore)(nil)

// NewDocumentStore creates a store over an existing pool
func NewDocumentStore(pool *pgxpool.Pool, logger ports.Logger) *DocumentStore {
	return &DocumentStore{
		db:          NewDBExecutor(pool),
		logger:      logger,
		maxAttempts: 8,
		backoff:     resilience.TransactionBackoff(),
	}
}

func storeError(op string, err error) error {
	return domain.WrapError(domain.ErrorCodeDatabaseError, op, err)
}

// Get decodes collection/id into dst
func (s *DocumentStore) Get(ctx context.Context, collection, id string, dst interface{}) error {
	found, err := queryDocument(ctx, s.db.Pool(), sqlGetDocument, collection, id, dst)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrDocumentNotFound)
	}
	return nil
}

// Set upserts collection/id
func (s *DocumentStore) Set(ctx context.Context, collection, id string, doc interface{}) error {
	return upsertDocument(ctx, s.db.Pool(), collection, id, doc)
}

// Delete removes collection/id. Deleting a missing document is not an error.
func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.Pool().Exec(ctx, sqlDeleteDocument, collection, id); err != nil {
		return storeError("delete document", err)
	}
	return nil
}

// List returns every document of a collection ordered by id
func (s *DocumentStore) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	rows, err := s.db.Pool().Query(ctx, sqlListDocuments, collection)
	if err != nil {
		return nil, storeError("list documents", err)
	}
	defer rows.Close()

	var docs []json.RawMessage
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, storeError("scan document", err)
		}
		docs = append(docs, json.RawMessage(data))
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list documents", err)
	}
	return docs, nil
}

// RunTransaction runs fn at SERIALIZABLE isolation, replaying it when Postgres
// reports a serialization failure or deadlock. fn may run more than once.
func (s *DocumentStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx ports.DocumentTx) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.Serializable}

	var fnErr error
	err := resilience.Retry(ctx, s.maxAttempts, s.backoff, isRetryable, func(attempt int) error {
		if attempt > 0 {
			s.logger.Debug("Retrying serialization failure", ports.Int("attempt", attempt))
		}
		fnErr = nil
		return s.db.WithTransaction(ctx, opts, func(ctx context.Context, tx pgx.Tx) error {
			fnErr = fn(ctx, &documentTx{ctx: ctx, tx: tx})
			return fnErr
		})
	})

	switch {
	case err == nil:
		return nil
	case isRetryable(err):
		s.logger.Warn("Serialization retries exhausted", ports.Int("attempts", s.maxAttempts))
		return storeError("transaction conflict", err)
	case fnErr != nil && errors.Is(err, fnErr):
		return fnErr
	case domain.GetErrorCode(err) != "":
		return err
	default:
		return storeError("transaction failed", err)
	}
}

// Ping checks database connectivity
func (s *DocumentStore) Ping(ctx context.Context) error {
	if err := s.db.Pool().Ping(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}

// Close closes the connection pool
func (s *DocumentStore) Close() error {
	s.logger.Info("Closing PostgreSQL connection pool")
	s.db.Pool().Close()
	return nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return false
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func queryDocument(ctx context.Context, q querier, query, collection, id string, dst interface{}) (bool, error) {
	var data []byte
	err := q.QueryRow(ctx, query, collection, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storeError("get document", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return true, nil
}

func upsertDocument(ctx context.Context, q querier, collection, id string, doc interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	if _, err := q.Exec(ctx, sqlUpsertDocument, collection, id, data); err != nil {
		return storeError("set document", err)
	}
	return nil
}

type documentTx struct {
	ctx context.Context
	tx  pgx.Tx
}

func (t *documentTx) Get(collection, id string, dst interface{}) (bool, error) {
	return queryDocument(t.ctx, t.tx, sqlGetDocumentForUpdate, collection, id, dst)
}

func (t *documentTx) Set(collection, id string, doc interface{}) error {
	return upsertDocument(t.ctx, t.tx, collection, id, doc)
}

func (t *documentTx) Delete(collection, id string) error {
	if _, err := t.tx.Exec(t.ctx, sqlDeleteDocument, collection, id); err != nil {
		return storeError("delete document", err)
	}
	return nil
}

func (t *documentTx) Increment(collection, id, field string, delta decimal.Decimal) error {
	tag, err := t.tx.Exec(t.ctx, sqlIncrementField, collection, id, field, delta.String())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgInvalidTextRepr {
			return domain.WrapError(domain.ErrorCodeTxnInvalidState,
				fmt.Sprintf("field %s of %s/%s is not numeric", field, collection, id), err)
		}
		return storeError("increment field", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("increment %s on %s/%s: %w", field, collection, id, domain.ErrDocumentNotFound)
	}
	return nil
}
