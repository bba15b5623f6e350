package store

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperdb/hyperdb/internal/ledger"
	"github.com/hyperdb/hyperdb/internal/storage"
)

// BlockSummary describes a freshly mined block.
type BlockSummary struct {
	Index            int     `json:"index"`
	Hash             string  `json:"hash"`
	Timestamp        float64 `json:"timestamp"`
	TransactionCount int     `json:"transaction_count"`
}

// BlockHeader identifies a block without its transaction set.
type BlockHeader struct {
	Index     int     `json:"index"`
	Hash      string  `json:"hash"`
	Timestamp float64 `json:"timestamp"`
}

// Info is the ledger-state summary of the session.
type Info struct {
	ChainLength  int          `json:"chain_length"`
	PendingCount int          `json:"pending_count"`
	Difficulty   int          `json:"difficulty"`
	Valid        bool         `json:"valid"`
	LatestBlock  *BlockHeader `json:"latest_block"`
}

// Mine seals the pending transactions into a new block, persists it, and
// back-fills the block index onto every persisted row and transaction-log
// entry the block's transactions reference. With nothing pending it returns
// (nil, nil). Back-fill is best-effort per transaction: an entry without an
// embedded record id (the reward transaction) is skipped, and a failed row
// update is logged without failing the mine.
func (s *RecordStore) Mine(ctx context.Context) (*BlockSummary, error) {
	if s.chain.PendingCount() == 0 {
		s.logger.Info("nothing to mine")
		return nil, nil
	}

	block, err := s.chain.Seal(ctx, s.miner)
	if err != nil {
		return nil, s.fail("mine", failure(KindMiningAborted, err))
	}

	blob, err := json.Marshal(block.Transactions)
	if err != nil {
		return nil, s.fail("mine", failure(KindWriteFailed, fmt.Errorf("encode block transactions: %w", err)))
	}
	if err := s.storage.SaveBlock(ctx, &storage.BlockRow{
		Index:        block.Index,
		Hash:         block.Hash,
		PreviousHash: block.PreviousHash,
		Timestamp:    block.Timestamp,
		Nonce:        block.Nonce,
		Transactions: blob,
	}); err != nil {
		return nil, s.fail("mine", failure(KindWriteFailed, err))
	}

	s.backfill(ctx, block)

	s.logger.Info("block mined",
		zap.Int("index", block.Index),
		zap.String("hash", block.Hash),
		zap.Uint64("nonce", block.Nonce),
		zap.Int("transactions", len(block.Transactions)),
	)
	return &BlockSummary{
		Index:            block.Index,
		Hash:             block.Hash,
		Timestamp:        block.Timestamp,
		TransactionCount: len(block.Transactions),
	}, nil
}

// backfill writes block.Index onto the transaction-log entries and record
// rows referenced by the block's transactions.
func (s *RecordStore) backfill(ctx context.Context, block *ledger.Block) {
	for _, tx := range block.Transactions {
		txID, _ := tx.Data["id"].(string)
		if txID == "" {
			continue
		}
		if err := s.storage.SetTransactionBlock(ctx, txID, block.Index); err != nil {
			s.logger.Warn("back-fill transaction failed",
				zap.String("transaction_id", txID),
				zap.Error(err),
			)
		}

		data, _ := tx.Data["data"].(map[string]any)
		recordID, _ := data["record_id"].(string)
		if recordID == "" {
			continue
		}
		if err := s.storage.SetRecordBlock(ctx, recordID, block.Index); err != nil {
			s.logger.Warn("back-fill record failed",
				zap.String("record_id", recordID),
				zap.Error(err),
			)
		}
	}
}

// Info summarizes the chain: length, pending count, difficulty, integrity,
// and the latest block's header.
func (s *RecordStore) Info() Info {
	latest := s.chain.Latest()
	return Info{
		ChainLength:  s.chain.Length(),
		PendingCount: s.chain.PendingCount(),
		Difficulty:   s.chain.Difficulty(),
		Valid:        s.chain.Verify() == nil,
		LatestBlock: &BlockHeader{
			Index:     latest.Index,
			Hash:      latest.Hash,
			Timestamp: latest.Timestamp,
		},
	}
}

// VerifyChain re-checks the hash chain; nil means intact.
func (s *RecordStore) VerifyChain() error { return s.chain.Verify() }

// ChainBlock returns the in-memory block at index.
func (s *RecordStore) ChainBlock(index int) (*ledger.Block, bool) {
	return s.chain.Block(index)
}

// BalanceOf reports the ledger-native token balance of address.
func (s *RecordStore) BalanceOf(address string) float64 {
	return s.chain.BalanceOf(address)
}

// PendingCount exposes the staged-transaction count.
func (s *RecordStore) PendingCount() int { return s.chain.PendingCount() }
