package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/kevin07696/bakery-service/internal/domain"
	"github.com/kevin07696/bakery-service/internal/domain/ports"
	"github.com/kevin07696/bakery-service/pkg/resilience"
	"github.com/shopspring/decimal"
)

// Config controls where Badger keeps its files
type Config struct {
	Dir      string
	InMemory bool

	// MaxTxAttempts bounds retries after a commit conflict
	MaxTxAttempts int
}

// DocumentStore is an embedded document store. Keys are "collection/id" and
// values are JSON. Transactions are optimistic: conflicting commits fail with
// badger.ErrConflict and the whole function is replayed.
type DocumentStore struct {
	db          *badger.DB
	logger      ports.Logger
	maxAttempts int
	backoff     resilience.BackoffStrategy
}

var _ ports.DocumentStore = (*DocumentStore)(nil)

// Open opens (or creates) the store
func Open(cfg Config, logger ports.Logger) (*DocumentStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(filepath.Clean(cfg.Dir))
	}
	opts = opts.WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger open: %w", err)
	}

	attempts := cfg.MaxTxAttempts
	if attempts <= 0 {
		attempts = 8
	}

	logger.Info("Badger document store opened",
		ports.String("dir", cfg.Dir),
		ports.Bool("in_memory", cfg.InMemory),
	)

	return &DocumentStore{
		db:          db,
		logger:      logger,
		maxAttempts: attempts,
		backoff:     resilience.TransactionBackoff(),
	}, nil
}

func key(collection, id string) []byte {
	return []byte(collection + "/" + id)
}

func storeError(op string, err error) error {
	return domain.WrapError(domain.ErrorCodeDatabaseError, op, err)
}

// Get decodes collection/id into dst
func (s *DocumentStore) Get(ctx context.Context, collection, id string, dst interface{}) error {
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = readInto(txn, collection, id, dst)
		return err
	})
	if err != nil {
		return storeError("get document", err)
	}
	if !found {
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrDocumentNotFound)
	}
	return nil
}

// Set replaces collection/id with doc
func (s *DocumentStore) Set(ctx context.Context, collection, id string, doc interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(collection, id), data)
	}); err != nil {
		return storeError("set document", err)
	}
	return nil
}

// Delete removes collection/id. Deleting a missing document is not an error.
func (s *DocumentStore) Delete(ctx context.Context, collection, id string) error {
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(collection, id))
	}); err != nil {
		return storeError("delete document", err)
	}
	return nil
}

// List returns every document of a collection in key order
func (s *DocumentStore) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	prefix := []byte(collection + "/")
	var docs []json.RawMessage

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			docs = append(docs, json.RawMessage(v))
		}
		return nil
	})
	if err != nil {
		return nil, storeError("list documents", err)
	}
	return docs, nil
}

// RunTransaction runs fn inside a read-write transaction, replaying it on commit conflicts.
// fn may run more than once and must not keep state between attempts.
func (s *DocumentStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx ports.DocumentTx) error) error {
	err := resilience.Retry(ctx, s.maxAttempts, s.backoff, isConflict, func(attempt int) error {
		if attempt > 0 {
			s.logger.Debug("Retrying conflicted transaction", ports.Int("attempt", attempt))
		}
		return s.db.Update(func(txn *badger.Txn) error {
			return fn(ctx, &documentTx{txn: txn})
		})
	})
	if err == nil {
		return nil
	}
	if isConflict(err) {
		s.logger.Warn("Transaction conflict retries exhausted", ports.Int("attempts", s.maxAttempts))
		return storeError("transaction conflict", err)
	}
	if isBadgerError(err) {
		return storeError("transaction failed", err)
	}
	return err
}

// Ping reports whether the database is open
func (s *DocumentStore) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return storeError("ping", badger.ErrDBClosed)
	}
	return nil
}

// Close flushes and closes the database
func (s *DocumentStore) Close() error {
	s.logger.Info("Closing badger document store")
	return s.db.Close()
}

func isConflict(err error) bool {
	return errors.Is(err, badger.ErrConflict)
}

func isBadgerError(err error) bool {
	return errors.Is(err, badger.ErrTxnTooBig) ||
		errors.Is(err, badger.ErrDBClosed) ||
		errors.Is(err, badger.ErrReadOnlyTxn) ||
		errors.Is(err, badger.ErrDiscardedTxn)
}

func readInto(txn *badger.Txn, collection, id string, dst interface{}) (bool, error) {
	item, err := txn.Get(key(collection, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, dst)
	})
	if err != nil {
		return false, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return true, nil
}

type documentTx struct {
	txn *badger.Txn
}

func (t *documentTx) Get(collection, id string, dst interface{}) (bool, error) {
	return readInto(t.txn, collection, id, dst)
}

func (t *documentTx) Set(collection, id string, doc interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	return t.txn.Set(key(collection, id), data)
}

func (t *documentTx) Delete(collection, id string) error {
	return t.txn.Delete(key(collection, id))
}

func (t *documentTx) Increment(collection, id, field string, delta decimal.Decimal) error {
	var doc map[string]json.RawMessage
	found, err := readInto(t.txn, collection, id, &doc)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("increment %s on %s/%s: %w", field, collection, id, domain.ErrDocumentNotFound)
	}
	if doc == nil {
		doc = make(map[string]json.RawMessage)
	}

	current := decimal.Zero
	if raw, ok := doc[field]; ok && string(raw) != "null" {
		if err := current.UnmarshalJSON(raw); err != nil {
			return domain.WrapError(domain.ErrorCodeTxnInvalidState,
				fmt.Sprintf("field %s of %s/%s is not numeric", field, collection, id), err)
		}
	}

	// Stored as a JSON number
	doc[field] = json.RawMessage(current.Add(delta).String())
	return t.Set(collection, id, doc)
}

// badgerLogger routes Badger's printf-style logs into the service logger
type badgerLogger struct {
	logger ports.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(trim(format, args...), ports.String("component", "badger"))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(trim(format, args...), ports.String("component", "badger"))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(trim(format, args...), ports.String("component", "badger"))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(trim(format, args...), ports.String("component", "badger"))
}

func trim(format string, args ...interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
