// Package store composes the schema registry, the ledger, and the
// persistence adapter into the record store: every schema-governed mutation
// is validated, persisted, and staged as an audit transaction; explicit
// mine requests seal pending transactions into a block and back-fill block
// positions onto persisted rows.
//
// All failures are caught at this boundary and reported as *Error values
// with a discriminated kind plus a zap diagnostic; nothing panics through
// the public surface. A RecordStore serves one logical session and is not
// safe for concurrent use.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperdb/hyperdb/internal/ledger"
	"github.com/hyperdb/hyperdb/internal/schema"
	"github.com/hyperdb/hyperdb/internal/storage"
)

// Audit transaction types embedded in the chain.
const (
	TxModelCreation = "model_creation"
	TxDataCreation  = "data_creation"
	TxDataUpdate    = "data_update"
)

// DefaultMiner is the identity credited by Mine when none is configured.
const DefaultMiner = "system"

// RecordStore orchestrates schema validation, row persistence, and ledger
// staging for one session.
type RecordStore struct {
	storage  storage.Store
	chain    *ledger.Chain
	registry *schema.Registry
	miner    string
	logger   *zap.Logger
}

// Option configures a RecordStore at construction time.
type Option func(*RecordStore)

// WithMiner sets the identity credited with mining rewards.
func WithMiner(id string) Option {
	return func(s *RecordStore) { s.miner = id }
}

// New opens a record store over st at the given proof-of-work difficulty,
// reloading any models and blocks an earlier session persisted. chainOpts
// are forwarded to the underlying chain (nonce caps for tests, reward
// overrides).
func New(ctx context.Context, st storage.Store, difficulty int, logger *zap.Logger, opts ...Option) (*RecordStore, error) {
	return NewWithChainOptions(ctx, st, difficulty, logger, nil, opts...)
}

// NewWithChainOptions is New with explicit ledger options.
func NewWithChainOptions(ctx context.Context, st storage.Store, difficulty int, logger *zap.Logger, chainOpts []ledger.Option, opts ...Option) (*RecordStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &RecordStore{
		storage:  st,
		chain:    ledger.New(difficulty, chainOpts...),
		registry: schema.NewRegistry(),
		miner:    DefaultMiner,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.reload(ctx, difficulty, chainOpts); err != nil {
		return nil, err
	}
	return s, nil
}

// reload restores persisted models into the registry and rebuilds the chain
// from persisted blocks, trusting stored hashes as-is. A brand-new session
// persists its genesis block so later sessions restore the same chain
// instead of growing a second genesis.
func (s *RecordStore) reload(ctx context.Context, difficulty int, chainOpts []ledger.Option) error {
	models, err := s.storage.ListModels(ctx)
	if err != nil {
		return failure(KindReadFailed, fmt.Errorf("load models: %w", err))
	}
	for _, row := range models {
		var m schema.Model
		if err := json.Unmarshal(row.Schema, &m); err != nil {
			return failure(KindReadFailed, fmt.Errorf("decode model %q: %w", row.Name, err))
		}
		if err := s.registry.Register(&m); err != nil {
			return failure(KindReadFailed, err)
		}
	}

	rows, err := s.storage.ListBlocks(ctx)
	if err != nil {
		return failure(KindReadFailed, fmt.Errorf("load blocks: %w", err))
	}

	if len(rows) == 0 {
		genesis := s.chain.Latest()
		if err := s.storage.SaveBlock(ctx, &storage.BlockRow{
			Index:        genesis.Index,
			Hash:         genesis.Hash,
			PreviousHash: genesis.PreviousHash,
			Timestamp:    genesis.Timestamp,
			Nonce:        genesis.Nonce,
			Transactions: []byte("[]"),
		}); err != nil {
			return failure(KindWriteFailed, fmt.Errorf("persist genesis: %w", err))
		}
		return nil
	}

	blocks := make([]*ledger.Block, 0, len(rows))
	for _, row := range rows {
		var txs []ledger.Transaction
		if len(row.Transactions) > 0 {
			if err := json.Unmarshal(row.Transactions, &txs); err != nil {
				return failure(KindReadFailed, fmt.Errorf("decode block %d transactions: %w", row.Index, err))
			}
		}
		blocks = append(blocks, &ledger.Block{
			Index:        row.Index,
			Transactions: txs,
			Timestamp:    row.Timestamp,
			PreviousHash: row.PreviousHash,
			Nonce:        row.Nonce,
			Hash:         row.Hash,
		})
	}
	chain, err := ledger.Load(difficulty, blocks, chainOpts...)
	if err != nil {
		return failure(KindReadFailed, err)
	}
	s.chain = chain

	s.logger.Info("session restored",
		zap.Int("models", len(models)),
		zap.Int("blocks", len(blocks)),
	)
	return nil
}

// CreateModel defines a new immutable model and gives the definition the
// same audit trail as data: a model_creation transaction carrying the full
// schema is staged alongside the persisted row. On failure nothing is
// staged or persisted.
func (s *RecordStore) CreateModel(ctx context.Context, name string, fields []schema.FieldSpec, description string) error {
	if _, exists := s.registry.Get(name); exists {
		return s.fail("create model", failure(KindModelExists, fmt.Errorf("model %q already defined", name)))
	}

	model, err := schema.NewModel(name, fields, description)
	if err != nil {
		return s.fail("create model", failure(KindInvalidModel, err))
	}

	blob, err := json.Marshal(model)
	if err != nil {
		return s.fail("create model", failure(KindInvalidModel, fmt.Errorf("encode schema: %w", err)))
	}
	row := &storage.ModelRow{
		Name:      model.Name,
		Schema:    blob,
		CreatedAt: model.CreatedAt,
		Version:   model.Version,
	}
	if err := s.storage.SaveModel(ctx, row); err != nil {
		return s.fail("create model", translateWrite(err))
	}

	// The row insert is the arbiter of uniqueness; the registry only learns
	// about the model after persistence accepted it, so the two can never
	// disagree.
	if err := s.registry.Register(model); err != nil {
		return s.fail("create model", failure(KindModelExists, err))
	}

	if _, err := s.stageAudit(ctx, TxModelCreation, "", model.Name, map[string]any{
		"model_name":  model.Name,
		"schema":      asMap(model),
		"description": description,
	}); err != nil {
		return s.fail("create model", err)
	}

	s.logger.Info("model created", zap.String("model", name), zap.Int("fields", len(fields)))
	return nil
}

// AddRecord validates payload against the named model (writing defaults
// into it), persists the row, and stages a data_creation audit transaction
// linked back to the row. It returns the new record id. A validation
// failure leaves no row and no staged transaction behind.
func (s *RecordStore) AddRecord(ctx context.Context, modelName string, payload map[string]any) (string, error) {
	model, ok := s.registry.Get(modelName)
	if !ok {
		return "", s.fail("add record", failure(KindUnknownModel, fmt.Errorf("model %q does not exist", modelName)))
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if err := schema.Validate(payload, model); err != nil {
		return "", s.fail("add record", translateSchema(err))
	}

	id := uuid.NewString()
	ts := nowSec()
	blob, err := json.Marshal(payload)
	if err != nil {
		return "", s.fail("add record", failure(KindTypeMismatch, fmt.Errorf("encode payload: %w", err)))
	}
	if err := s.storage.SaveRecord(ctx, &storage.RecordRow{
		ID:        id,
		ModelName: modelName,
		Data:      blob,
		CreatedAt: ts,
		UpdatedAt: ts,
	}); err != nil {
		return "", s.fail("add record", translateWrite(err))
	}

	txID, aerr := s.stageAudit(ctx, TxDataCreation, id, modelName, map[string]any{
		"record_id":  id,
		"model_name": modelName,
		"data":       payload,
		"created_at": ts,
	})
	if aerr != nil {
		return "", s.fail("add record", aerr)
	}
	if err := s.storage.SetRecordTransaction(ctx, id, txID); err != nil {
		return "", s.fail("add record", translateWrite(err))
	}

	s.logger.Info("record added",
		zap.String("model", modelName),
		zap.String("record_id", id),
		zap.String("transaction_id", txID),
	)
	return id, nil
}

// UpdateRecord replaces a record's payload wholesale: fields absent from
// newPayload are dropped even if present before. The audit transaction
// embeds both the previous and the new payload.
func (s *RecordStore) UpdateRecord(ctx context.Context, id string, newPayload map[string]any) error {
	row, err := s.storage.GetRecord(ctx, id)
	if err != nil {
		return s.fail("update record", translateRead(err))
	}
	var previous map[string]any
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &previous); err != nil {
			return s.fail("update record", failure(KindReadFailed, fmt.Errorf("decode record %s: %w", id, err)))
		}
	}
	if newPayload == nil {
		newPayload = map[string]any{}
	}

	// The model may have been defined in a session whose store we no longer
	// share; validate only when it is known.
	if model, ok := s.registry.Get(row.ModelName); ok {
		if err := schema.Validate(newPayload, model); err != nil {
			return s.fail("update record", translateSchema(err))
		}
	}

	ts := nowSec()
	blob, err := json.Marshal(newPayload)
	if err != nil {
		return s.fail("update record", failure(KindTypeMismatch, fmt.Errorf("encode payload: %w", err)))
	}
	if err := s.storage.UpdateRecordData(ctx, id, blob, ts); err != nil {
		return s.fail("update record", translateWrite(err))
	}

	if _, err := s.stageAudit(ctx, TxDataUpdate, id, row.ModelName, map[string]any{
		"record_id":     id,
		"model_name":    row.ModelName,
		"previous_data": previous,
		"new_data":      newPayload,
		"updated_at":    ts,
	}); err != nil {
		return s.fail("update record", err)
	}

	s.logger.Info("record updated", zap.String("record_id", id))
	return nil
}

// GetRecord returns a single record by id.
func (s *RecordStore) GetRecord(ctx context.Context, id string) (*Record, error) {
	row, err := s.storage.GetRecord(ctx, id)
	if err != nil {
		return nil, s.fail("get record", translateRead(err))
	}
	rec, err := recordFromRow(row)
	if err != nil {
		return nil, s.fail("get record", failure(KindReadFailed, err))
	}
	return rec, nil
}

// ListRecords returns all records in creation order, optionally restricted
// to one model.
func (s *RecordStore) ListRecords(ctx context.Context, modelName string) ([]*Record, error) {
	rows, err := s.storage.ListRecords(ctx, modelName)
	if err != nil {
		return nil, s.fail("list records", failure(KindReadFailed, err))
	}
	out := make([]*Record, 0, len(rows))
	for _, row := range rows {
		rec, err := recordFromRow(row)
		if err != nil {
			return nil, s.fail("list records", failure(KindReadFailed, err))
		}
		out = append(out, rec)
	}
	return out, nil
}

// Models returns the defined models in definition order.
func (s *RecordStore) Models() []*schema.Model { return s.registry.List() }

// stageAudit persists a ledger-transaction log row and stages the matching
// chain transaction. The log row is written first so that a storage failure
// stages nothing; the in-memory stage itself cannot fail.
func (s *RecordStore) stageAudit(ctx context.Context, txType, recordID, modelName string, data map[string]any) (string, *Error) {
	txID := uuid.NewString()
	ts := nowSec()

	envelope := map[string]any{
		"id":        txID,
		"type":      txType,
		"data":      data,
		"timestamp": ts,
		"sender":    ledger.SystemAddress,
		"recipient": ledger.SystemAddress,
		"amount":    0.0,
	}
	blob, err := json.Marshal(envelope)
	if err != nil {
		return "", failure(KindWriteFailed, fmt.Errorf("encode audit transaction: %w", err))
	}

	row := &storage.TransactionRow{
		ID:        txID,
		Type:      txType,
		Payload:   blob,
		Timestamp: ts,
	}
	if recordID != "" {
		row.RecordID = &recordID
	}
	if modelName != "" {
		row.ModelName = &modelName
	}
	if err := s.storage.SaveTransaction(ctx, row); err != nil {
		return "", failure(KindWriteFailed, err)
	}

	s.chain.Stage(ledger.SystemAddress, ledger.SystemAddress, 0, envelope)
	return txID, nil
}

// fail logs a diagnostic and returns err unchanged.
func (s *RecordStore) fail(op string, err *Error) *Error {
	s.logger.Warn(op+" failed",
		zap.String("kind", string(err.Kind)),
		zap.Error(err.Err),
	)
	return err
}

// asMap round-trips v through JSON into a generic map for embedding in an
// audit payload.
func asMap(v any) map[string]any {
	blob, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(blob, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// nowSec returns the current time as fractional unix seconds.
func nowSec() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
