package store

import (
	"encoding/json"
	"fmt"

	"github.com/hyperdb/hyperdb/internal/storage"
)

// Record is a schema-validated payload with lifecycle metadata and optional
// ledger linkage. TransactionID is empty until the record's audit
// transaction is staged; BlockIndex is nil until that transaction is
// committed in a mined block.
type Record struct {
	ID            string         `json:"id"`
	ModelName     string         `json:"model_name"`
	Data          map[string]any `json:"data"`
	CreatedAt     float64        `json:"created_at"`
	UpdatedAt     float64        `json:"updated_at"`
	TransactionID string         `json:"ledger_transaction_id,omitempty"`
	BlockIndex    *int           `json:"ledger_block_index,omitempty"`
}

// recordFromRow decodes a persisted row into its domain form.
func recordFromRow(row *storage.RecordRow) (*Record, error) {
	var data map[string]any
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &data); err != nil {
			return nil, fmt.Errorf("decode record %s payload: %w", row.ID, err)
		}
	}
	rec := &Record{
		ID:         row.ID,
		ModelName:  row.ModelName,
		Data:       data,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
		BlockIndex: row.BlockIndex,
	}
	if row.TransactionID != nil {
		rec.TransactionID = *row.TransactionID
	}
	return rec, nil
}
