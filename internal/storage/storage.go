// Package storage defines the narrow durable-persistence interface of the
// record store, together with its row types. The core never manages its own
// durability; it only orders calls to a Store correctly relative to staging
// and mining.
//
// Three implementations are provided:
//   - MemoryStore: in-process, for tests and throwaway sessions.
//   - SQLiteStore: a single embedded database file, the default.
//   - PostgresStore: for deployments that already run PostgreSQL.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicate is returned when an insert violates a primary key,
	// e.g. defining a model under a name that is already taken.
	ErrDuplicate = errors.New("storage: duplicate key")
)

// ModelRow is a persisted model definition. Schema holds the serialized
// model document; models are immutable, so there is no update operation.
type ModelRow struct {
	Name      string
	Schema    []byte
	CreatedAt float64
	Version   string
}

// RecordRow is a persisted record. TransactionID and BlockIndex stay nil
// until the record's staging transaction is created and later committed in
// a mined block.
type RecordRow struct {
	ID            string
	ModelName     string
	Data          []byte
	CreatedAt     float64
	UpdatedAt     float64
	TransactionID *string
	BlockIndex    *int
}

// TransactionRow is a persisted ledger-transaction log entry. RecordID and
// ModelName are nil for entries that are not tied to a record.
type TransactionRow struct {
	ID         string
	Type       string
	RecordID   *string
	ModelName  *string
	Payload    []byte
	Timestamp  float64
	BlockIndex *int
}

// BlockRow is a sealed block's persisted form; Transactions holds the
// serialized transaction set.
type BlockRow struct {
	Index        int
	Hash         string
	PreviousHash string
	Timestamp    float64
	Nonce        uint64
	Transactions []byte
}

// Store is the persistence adapter the record store orders its writes
// through. List operations return rows in creation order (models and
// records by created_at, blocks by index).
type Store interface {
	SaveModel(ctx context.Context, row *ModelRow) error
	ListModels(ctx context.Context) ([]*ModelRow, error)

	SaveRecord(ctx context.Context, row *RecordRow) error
	GetRecord(ctx context.Context, id string) (*RecordRow, error)
	// ListRecords returns all records, or only those of modelName when it
	// is non-empty.
	ListRecords(ctx context.Context, modelName string) ([]*RecordRow, error)
	UpdateRecordData(ctx context.Context, id string, data []byte, updatedAt float64) error
	SetRecordTransaction(ctx context.Context, id, transactionID string) error
	SetRecordBlock(ctx context.Context, id string, blockIndex int) error

	SaveTransaction(ctx context.Context, row *TransactionRow) error
	SetTransactionBlock(ctx context.Context, transactionID string, blockIndex int) error

	SaveBlock(ctx context.Context, row *BlockRow) error
	ListBlocks(ctx context.Context) ([]*BlockRow, error)

	Close() error
}
