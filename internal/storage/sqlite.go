package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteStore is a Store backed by a single embedded database file. It is
// the default adapter; the whole store lives in one file on disk.
type SQLiteStore struct {
	db *gorm.DB
}

// Field names deliberately avoid gorm's auto-managed CreatedAt/UpdatedAt
// conventions; the orchestrator owns every timestamp.

type modelRow struct {
	Name    string  `gorm:"column:name;primaryKey"`
	Schema  []byte  `gorm:"column:schema_blob;not null"`
	Created float64 `gorm:"column:created_at;not null"`
	Version string  `gorm:"column:version;not null"`
}

func (modelRow) TableName() string { return "data_models" }

type recordRow struct {
	ID            string  `gorm:"column:id;primaryKey"`
	ModelName     string  `gorm:"column:model_name;not null;index"`
	Data          []byte  `gorm:"column:data_blob;not null"`
	Created       float64 `gorm:"column:created_at;not null"`
	Updated       float64 `gorm:"column:updated_at;not null"`
	TransactionID *string `gorm:"column:ledger_transaction_id"`
	BlockIndex    *int    `gorm:"column:ledger_block_index"`
}

func (recordRow) TableName() string { return "data_records" }

type transactionRow struct {
	ID         string  `gorm:"column:id;primaryKey"`
	Type       string  `gorm:"column:type;not null"`
	RecordID   *string `gorm:"column:record_id"`
	ModelName  *string `gorm:"column:model_name"`
	Payload    []byte  `gorm:"column:payload_blob;not null"`
	Timestamp  float64 `gorm:"column:timestamp;not null"`
	BlockIndex *int    `gorm:"column:block_index"`
}

func (transactionRow) TableName() string { return "ledger_transactions" }

type blockRow struct {
	Index        int     `gorm:"column:block_index;primaryKey;autoIncrement:false"`
	Hash         string  `gorm:"column:hash;not null"`
	PreviousHash string  `gorm:"column:previous_hash;not null"`
	Timestamp    float64 `gorm:"column:timestamp;not null"`
	Nonce        int64   `gorm:"column:nonce;not null"`
	Transactions []byte  `gorm:"column:transactions_blob;not null"`
}

func (blockRow) TableName() string { return "ledger_blocks" }

// NewSQLiteStore opens (creating if necessary) the database file at path
// and applies the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if err := db.AutoMigrate(&modelRow{}, &recordRow{}, &transactionRow{}, &blockRow{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite %q: %w", path, err)
	}
	return &SQLiteStore{db: db}, nil
}

// SaveModel implements Store.
func (s *SQLiteStore) SaveModel(ctx context.Context, row *ModelRow) error {
	rec := modelRow{Name: row.Name, Schema: row.Schema, Created: row.CreatedAt, Version: row.Version}
	return mapGormError(s.db.WithContext(ctx).Create(&rec).Error)
}

// ListModels implements Store.
func (s *SQLiteStore) ListModels(ctx context.Context) ([]*ModelRow, error) {
	var recs []modelRow
	if err := s.db.WithContext(ctx).Order("created_at").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*ModelRow, 0, len(recs))
	for _, r := range recs {
		out = append(out, &ModelRow{Name: r.Name, Schema: r.Schema, CreatedAt: r.Created, Version: r.Version})
	}
	return out, nil
}

// SaveRecord implements Store.
func (s *SQLiteStore) SaveRecord(ctx context.Context, row *RecordRow) error {
	rec := recordRow{
		ID: row.ID, ModelName: row.ModelName, Data: row.Data,
		Created: row.CreatedAt, Updated: row.UpdatedAt,
		TransactionID: row.TransactionID, BlockIndex: row.BlockIndex,
	}
	return mapGormError(s.db.WithContext(ctx).Create(&rec).Error)
}

// GetRecord implements Store.
func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*RecordRow, error) {
	var rec recordRow
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: record %q", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return recordRowOut(&rec), nil
}

// ListRecords implements Store.
func (s *SQLiteStore) ListRecords(ctx context.Context, modelName string) ([]*RecordRow, error) {
	q := s.db.WithContext(ctx).Order("created_at")
	if modelName != "" {
		q = q.Where("model_name = ?", modelName)
	}
	var recs []recordRow
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*RecordRow, 0, len(recs))
	for i := range recs {
		out = append(out, recordRowOut(&recs[i]))
	}
	return out, nil
}

// UpdateRecordData implements Store.
func (s *SQLiteStore) UpdateRecordData(ctx context.Context, id string, data []byte, updatedAt float64) error {
	res := s.db.WithContext(ctx).Model(&recordRow{}).Where("id = ?", id).
		Updates(map[string]any{"data_blob": data, "updated_at": updatedAt})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: record %q", ErrNotFound, id)
	}
	return nil
}

// SetRecordTransaction implements Store.
func (s *SQLiteStore) SetRecordTransaction(ctx context.Context, id, transactionID string) error {
	return s.updateRecordColumn(ctx, id, "ledger_transaction_id", transactionID)
}

// SetRecordBlock implements Store.
func (s *SQLiteStore) SetRecordBlock(ctx context.Context, id string, blockIndex int) error {
	return s.updateRecordColumn(ctx, id, "ledger_block_index", blockIndex)
}

func (s *SQLiteStore) updateRecordColumn(ctx context.Context, id, column string, value any) error {
	res := s.db.WithContext(ctx).Model(&recordRow{}).Where("id = ?", id).
		Update(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: record %q", ErrNotFound, id)
	}
	return nil
}

// SaveTransaction implements Store.
func (s *SQLiteStore) SaveTransaction(ctx context.Context, row *TransactionRow) error {
	rec := transactionRow{
		ID: row.ID, Type: row.Type, RecordID: row.RecordID, ModelName: row.ModelName,
		Payload: row.Payload, Timestamp: row.Timestamp, BlockIndex: row.BlockIndex,
	}
	return mapGormError(s.db.WithContext(ctx).Create(&rec).Error)
}

// SetTransactionBlock implements Store.
func (s *SQLiteStore) SetTransactionBlock(ctx context.Context, transactionID string, blockIndex int) error {
	res := s.db.WithContext(ctx).Model(&transactionRow{}).Where("id = ?", transactionID).
		Update("block_index", blockIndex)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: transaction %q", ErrNotFound, transactionID)
	}
	return nil
}

// SaveBlock implements Store.
func (s *SQLiteStore) SaveBlock(ctx context.Context, row *BlockRow) error {
	rec := blockRow{
		Index: row.Index, Hash: row.Hash, PreviousHash: row.PreviousHash,
		Timestamp: row.Timestamp, Nonce: int64(row.Nonce), Transactions: row.Transactions,
	}
	return mapGormError(s.db.WithContext(ctx).Create(&rec).Error)
}

// ListBlocks implements Store.
func (s *SQLiteStore) ListBlocks(ctx context.Context) ([]*BlockRow, error) {
	var recs []blockRow
	if err := s.db.WithContext(ctx).Order("block_index").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*BlockRow, 0, len(recs))
	for _, r := range recs {
		out = append(out, &BlockRow{
			Index: r.Index, Hash: r.Hash, PreviousHash: r.PreviousHash,
			Timestamp: r.Timestamp, Nonce: uint64(r.Nonce), Transactions: r.Transactions,
		})
	}
	return out, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func recordRowOut(r *recordRow) *RecordRow {
	return &RecordRow{
		ID: r.ID, ModelName: r.ModelName, Data: r.Data,
		CreatedAt: r.Created, UpdatedAt: r.Updated,
		TransactionID: r.TransactionID, BlockIndex: r.BlockIndex,
	}
}

// mapGormError translates a unique-constraint violation into ErrDuplicate.
func mapGormError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
