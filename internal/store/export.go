package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/hyperdb/hyperdb/internal/schema"
)

// BlockExport is a raw persisted block row as it appears in the export
// document.
type BlockExport struct {
	Index        int             `json:"block_index"`
	Hash         string          `json:"hash"`
	PreviousHash string          `json:"previous_hash"`
	Timestamp    float64         `json:"timestamp"`
	Nonce        uint64          `json:"nonce"`
	Transactions json.RawMessage `json:"transactions"`
}

// ExportDocument is the full-session export artifact.
type ExportDocument struct {
	Models        []*schema.Model `json:"models"`
	Records       []*Record       `json:"records"`
	LedgerSummary Info            `json:"ledger_summary"`
	Blocks        []BlockExport   `json:"blocks"`
}

// Export assembles the export document from the live registry, the record
// rows, the chain summary, and the raw persisted block rows.
func (s *RecordStore) Export(ctx context.Context) (*ExportDocument, error) {
	records, err := s.ListRecords(ctx, "")
	if err != nil {
		return nil, err
	}

	rows, err := s.storage.ListBlocks(ctx)
	if err != nil {
		return nil, s.fail("export", failure(KindReadFailed, err))
	}
	blocks := make([]BlockExport, 0, len(rows))
	for _, row := range rows {
		txs := row.Transactions
		if len(txs) == 0 {
			txs = json.RawMessage("[]")
		}
		blocks = append(blocks, BlockExport{
			Index:        row.Index,
			Hash:         row.Hash,
			PreviousHash: row.PreviousHash,
			Timestamp:    row.Timestamp,
			Nonce:        row.Nonce,
			Transactions: txs,
		})
	}

	return &ExportDocument{
		Models:        s.registry.List(),
		Records:       records,
		LedgerSummary: s.Info(),
		Blocks:        blocks,
	}, nil
}

// WriteExport writes the export document to path as indented JSON.
func (s *RecordStore) WriteExport(ctx context.Context, path string) error {
	doc, err := s.Export(ctx)
	if err != nil {
		return err
	}
	blob, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return s.fail("export", failure(KindWriteFailed, fmt.Errorf("encode export: %w", err)))
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return s.fail("export", failure(KindWriteFailed, err))
	}
	s.logger.Info("data exported", zap.String("path", path))
	return nil
}
