package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique-constraint error.
const uniqueViolation = "23505"

// PostgresStore is a Store backed by a pgx connection pool.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore over an existing pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the schema. All statements are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS data_models (
			name        TEXT PRIMARY KEY,
			schema_blob BYTEA NOT NULL,
			created_at  DOUBLE PRECISION NOT NULL,
			version     TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS data_records (
			id                    TEXT PRIMARY KEY,
			model_name            TEXT NOT NULL REFERENCES data_models (name),
			data_blob             BYTEA NOT NULL,
			created_at            DOUBLE PRECISION NOT NULL,
			updated_at            DOUBLE PRECISION NOT NULL,
			ledger_transaction_id TEXT,
			ledger_block_index    INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_transactions (
			id           TEXT PRIMARY KEY,
			type         TEXT NOT NULL,
			record_id    TEXT,
			model_name   TEXT,
			payload_blob BYTEA NOT NULL,
			timestamp    DOUBLE PRECISION NOT NULL,
			block_index  INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_blocks (
			block_index       INTEGER PRIMARY KEY,
			hash              TEXT NOT NULL,
			previous_hash     TEXT NOT NULL,
			timestamp         DOUBLE PRECISION NOT NULL,
			nonce             BIGINT NOT NULL,
			transactions_blob BYTEA NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_data_records_model ON data_records (model_name)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// SaveModel implements Store.
func (s *PostgresStore) SaveModel(ctx context.Context, row *ModelRow) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO data_models (name, schema_blob, created_at, version)
		 VALUES ($1, $2, $3, $4)`,
		row.Name, row.Schema, row.CreatedAt, row.Version,
	)
	return mapPgError(err)
}

// ListModels implements Store.
func (s *PostgresStore) ListModels(ctx context.Context) ([]*ModelRow, error) {
	rows, err := s.db.Query(ctx,
		`SELECT name, schema_blob, created_at, version
		 FROM data_models ORDER BY created_at`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ModelRow
	for rows.Next() {
		m := &ModelRow{}
		if err := rows.Scan(&m.Name, &m.Schema, &m.CreatedAt, &m.Version); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveRecord implements Store.
func (s *PostgresStore) SaveRecord(ctx context.Context, row *RecordRow) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO data_records
		   (id, model_name, data_blob, created_at, updated_at, ledger_transaction_id, ledger_block_index)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		row.ID, row.ModelName, row.Data, row.CreatedAt, row.UpdatedAt,
		row.TransactionID, row.BlockIndex,
	)
	return mapPgError(err)
}

// GetRecord implements Store.
func (s *PostgresStore) GetRecord(ctx context.Context, id string) (*RecordRow, error) {
	row := &RecordRow{}
	err := s.db.QueryRow(ctx,
		`SELECT id, model_name, data_blob, created_at, updated_at,
		        ledger_transaction_id, ledger_block_index
		 FROM data_records WHERE id = $1`, id,
	).Scan(
		&row.ID, &row.ModelName, &row.Data, &row.CreatedAt, &row.UpdatedAt,
		&row.TransactionID, &row.BlockIndex,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: record %q", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

// ListRecords implements Store.
func (s *PostgresStore) ListRecords(ctx context.Context, modelName string) ([]*RecordRow, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, model_name, data_blob, created_at, updated_at,
		        ledger_transaction_id, ledger_block_index
		 FROM data_records
		 WHERE ($1 = '' OR model_name = $1)
		 ORDER BY created_at`, modelName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*RecordRow
	for rows.Next() {
		r := &RecordRow{}
		if err := rows.Scan(
			&r.ID, &r.ModelName, &r.Data, &r.CreatedAt, &r.UpdatedAt,
			&r.TransactionID, &r.BlockIndex,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateRecordData implements Store.
func (s *PostgresStore) UpdateRecordData(ctx context.Context, id string, data []byte, updatedAt float64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE data_records SET data_blob = $2, updated_at = $3 WHERE id = $1`,
		id, data, updatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: record %q", ErrNotFound, id)
	}
	return nil
}

// SetRecordTransaction implements Store.
func (s *PostgresStore) SetRecordTransaction(ctx context.Context, id, transactionID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE data_records SET ledger_transaction_id = $2 WHERE id = $1`,
		id, transactionID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: record %q", ErrNotFound, id)
	}
	return nil
}

// SetRecordBlock implements Store.
func (s *PostgresStore) SetRecordBlock(ctx context.Context, id string, blockIndex int) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE data_records SET ledger_block_index = $2 WHERE id = $1`,
		id, blockIndex,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: record %q", ErrNotFound, id)
	}
	return nil
}

// SaveTransaction implements Store.
func (s *PostgresStore) SaveTransaction(ctx context.Context, row *TransactionRow) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO ledger_transactions
		   (id, type, record_id, model_name, payload_blob, timestamp, block_index)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		row.ID, row.Type, row.RecordID, row.ModelName,
		row.Payload, row.Timestamp, row.BlockIndex,
	)
	return mapPgError(err)
}

// SetTransactionBlock implements Store.
func (s *PostgresStore) SetTransactionBlock(ctx context.Context, transactionID string, blockIndex int) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE ledger_transactions SET block_index = $2 WHERE id = $1`,
		transactionID, blockIndex,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: transaction %q", ErrNotFound, transactionID)
	}
	return nil
}

// SaveBlock implements Store.
func (s *PostgresStore) SaveBlock(ctx context.Context, row *BlockRow) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO ledger_blocks
		   (block_index, hash, previous_hash, timestamp, nonce, transactions_blob)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		row.Index, row.Hash, row.PreviousHash, row.Timestamp,
		int64(row.Nonce), row.Transactions,
	)
	return mapPgError(err)
}

// ListBlocks implements Store.
func (s *PostgresStore) ListBlocks(ctx context.Context) ([]*BlockRow, error) {
	rows, err := s.db.Query(ctx,
		`SELECT block_index, hash, previous_hash, timestamp, nonce, transactions_blob
		 FROM ledger_blocks ORDER BY block_index`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*BlockRow
	for rows.Next() {
		b := &BlockRow{}
		var nonce int64
		if err := rows.Scan(
			&b.Index, &b.Hash, &b.PreviousHash, &b.Timestamp, &nonce, &b.Transactions,
		); err != nil {
			return nil, err
		}
		b.Nonce = uint64(nonce)
		out = append(out, b)
	}
	return out, rows.Err()
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

// mapPgError translates a unique-constraint violation into ErrDuplicate.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
