package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store implementation. State is lost when the
// process exits; it exists for tests and for sessions that do not need
// durability.
type MemoryStore struct {
	mu          sync.RWMutex
	models      map[string]*ModelRow
	modelOrder  []string
	records     map[string]*RecordRow
	recordOrder []string
	txs         map[string]*TransactionRow
	blocks      []*BlockRow
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		models:  make(map[string]*ModelRow),
		records: make(map[string]*RecordRow),
		txs:     make(map[string]*TransactionRow),
	}
}

// SaveModel implements Store.
func (s *MemoryStore) SaveModel(_ context.Context, row *ModelRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.models[row.Name]; exists {
		return fmt.Errorf("%w: model %q", ErrDuplicate, row.Name)
	}
	cp := *row
	s.models[row.Name] = &cp
	s.modelOrder = append(s.modelOrder, row.Name)
	return nil
}

// ListModels implements Store.
func (s *MemoryStore) ListModels(_ context.Context) ([]*ModelRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ModelRow, 0, len(s.modelOrder))
	for _, name := range s.modelOrder {
		cp := *s.models[name]
		out = append(out, &cp)
	}
	return out, nil
}

// SaveRecord implements Store.
func (s *MemoryStore) SaveRecord(_ context.Context, row *RecordRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[row.ID]; exists {
		return fmt.Errorf("%w: record %q", ErrDuplicate, row.ID)
	}
	cp := *row
	s.records[row.ID] = &cp
	s.recordOrder = append(s.recordOrder, row.ID)
	return nil
}

// GetRecord implements Store.
func (s *MemoryStore) GetRecord(_ context.Context, id string) (*RecordRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: record %q", ErrNotFound, id)
	}
	cp := *row
	return &cp, nil
}

// ListRecords implements Store.
func (s *MemoryStore) ListRecords(_ context.Context, modelName string) ([]*RecordRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*RecordRow
	for _, id := range s.recordOrder {
		row := s.records[id]
		if modelName != "" && row.ModelName != modelName {
			continue
		}
		cp := *row
		out = append(out, &cp)
	}
	return out, nil
}

// UpdateRecordData implements Store.
func (s *MemoryStore) UpdateRecordData(_ context.Context, id string, data []byte, updatedAt float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: record %q", ErrNotFound, id)
	}
	row.Data = data
	row.UpdatedAt = updatedAt
	return nil
}

// SetRecordTransaction implements Store.
func (s *MemoryStore) SetRecordTransaction(_ context.Context, id, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: record %q", ErrNotFound, id)
	}
	row.TransactionID = &transactionID
	return nil
}

// SetRecordBlock implements Store.
func (s *MemoryStore) SetRecordBlock(_ context.Context, id string, blockIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.records[id]
	if !ok {
		return fmt.Errorf("%w: record %q", ErrNotFound, id)
	}
	row.BlockIndex = &blockIndex
	return nil
}

// SaveTransaction implements Store.
func (s *MemoryStore) SaveTransaction(_ context.Context, row *TransactionRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.txs[row.ID]; exists {
		return fmt.Errorf("%w: transaction %q", ErrDuplicate, row.ID)
	}
	cp := *row
	s.txs[row.ID] = &cp
	return nil
}

// SetTransactionBlock implements Store.
func (s *MemoryStore) SetTransactionBlock(_ context.Context, transactionID string, blockIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.txs[transactionID]
	if !ok {
		return fmt.Errorf("%w: transaction %q", ErrNotFound, transactionID)
	}
	row.BlockIndex = &blockIndex
	return nil
}

// SaveBlock implements Store.
func (s *MemoryStore) SaveBlock(_ context.Context, row *BlockRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.blocks {
		if b.Index == row.Index {
			return fmt.Errorf("%w: block %d", ErrDuplicate, row.Index)
		}
	}
	cp := *row
	s.blocks = append(s.blocks, &cp)
	return nil
}

// ListBlocks implements Store.
func (s *MemoryStore) ListBlocks(_ context.Context) ([]*BlockRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*BlockRow, 0, len(s.blocks))
	for _, b := range s.blocks {
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

// GetTransaction returns a transaction-log row; used by tests to inspect
// back-fill results.
func (s *MemoryStore) GetTransaction(id string) (*TransactionRow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.txs[id]
	if !ok {
		return nil, false
	}
	cp := *row
	return &cp, true
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
