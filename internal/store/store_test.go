package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperdb/hyperdb/internal/schema"
	"github.com/hyperdb/hyperdb/internal/storage"
	"github.com/hyperdb/hyperdb/internal/store"
)

var ctx = context.Background()

func boolPtr(b bool) *bool { return &b }

func newStore(t *testing.T, mem *storage.MemoryStore) *store.RecordStore {
	t.Helper()
	s, err := store.New(ctx, mem, 0, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func definePerson(t *testing.T, s *store.RecordStore) {
	t.Helper()
	err := s.CreateModel(ctx, "Person", []schema.FieldSpec{
		{Name: "name", Type: schema.TypeText},
		{Name: "age", Type: schema.TypeInteger},
		{Name: "email", Type: schema.TypeText, Required: boolPtr(false)},
	}, "people")
	if err != nil {
		t.Fatal(err)
	}
}

func TestCreateModel_stagesAuditTransaction(t *testing.T) {
	mem := storage.NewMemoryStore()
	s := newStore(t, mem)

	definePerson(t, s)

	if got := s.PendingCount(); got != 1 {
		t.Errorf("pending after model creation: got %d, want 1", got)
	}
	models := s.Models()
	if len(models) != 1 || models[0].Name != "Person" {
		t.Fatalf("registry wrong after create: %+v", models)
	}
}

func TestCreateModel_duplicateRejected(t *testing.T) {
	mem := storage.NewMemoryStore()
	s := newStore(t, mem)
	definePerson(t, s)

	err := s.CreateModel(ctx, "Person", []schema.FieldSpec{
		{Name: "x", Type: schema.TypeText},
	}, "")
	if store.KindOf(err) != store.KindModelExists {
		t.Errorf("expected model_exists, got %v", err)
	}
	if got := s.PendingCount(); got != 1 {
		t.Errorf("failed create must stage nothing: pending %d, want 1", got)
	}
	if len(s.Models()) != 1 {
		t.Errorf("registry grew on duplicate create")
	}
}

func TestCreateModel_invalidSpecs(t *testing.T) {
	s := newStore(t, storage.NewMemoryStore())
	err := s.CreateModel(ctx, "Bad", []schema.FieldSpec{{Name: "x", Type: "blob"}}, "")
	if store.KindOf(err) != store.KindInvalidModel {
		t.Errorf("expected invalid_model, got %v", err)
	}
	if s.PendingCount() != 0 {
		t.Error("invalid model staged a transaction")
	}
}

func TestAddRecord_success(t *testing.T) {
	mem := storage.NewMemoryStore()
	s := newStore(t, mem)
	definePerson(t, s)

	id, err := s.AddRecord(ctx, "Person", map[string]any{"name": "Anna", "age": 30})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("empty record id")
	}

	rec, err := s.GetRecord(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.ModelName != "Person" || rec.Data["name"] != "Anna" {
		t.Errorf("record wrong: %+v", rec)
	}
	if rec.TransactionID == "" {
		t.Error("record not linked to its staged transaction")
	}
	if rec.BlockIndex != nil {
		t.Error("block index set before mining")
	}
	// model_creation + data_creation
	if got := s.PendingCount(); got != 2 {
		t.Errorf("pending: got %d, want 2", got)
	}
}

func TestAddRecord_unknownModel(t *testing.T) {
	s := newStore(t, storage.NewMemoryStore())
	_, err := s.AddRecord(ctx, "Ghost", map[string]any{"x": 1})
	if store.KindOf(err) != store.KindUnknownModel {
		t.Errorf("expected unknown_model, got %v", err)
	}
}

func TestAddRecord_validationFailureLeavesNothing(t *testing.T) {
	mem := storage.NewMemoryStore()
	s := newStore(t, mem)
	if err := s.CreateModel(ctx, "Item", []schema.FieldSpec{
		{Name: "qty", Type: schema.TypeInteger},
	}, ""); err != nil {
		t.Fatal(err)
	}
	pendingBefore := s.PendingCount()

	_, err := s.AddRecord(ctx, "Item", map[string]any{})
	if store.KindOf(err) != store.KindMissingRequired {
		t.Fatalf("expected missing_required, got %v", err)
	}

	records, lerr := s.ListRecords(ctx, "Item")
	if lerr != nil {
		t.Fatal(lerr)
	}
	if len(records) != 0 {
		t.Errorf("row persisted despite validation failure: %+v", records)
	}
	if got := s.PendingCount(); got != pendingBefore {
		t.Errorf("pending changed on failed add: got %d, want %d", got, pendingBefore)
	}
}

func TestAddRecord_appliesDefaults(t *testing.T) {
	s := newStore(t, storage.NewMemoryStore())
	if err := s.CreateModel(ctx, "Task", []schema.FieldSpec{
		{Name: "title", Type: schema.TypeText},
		{Name: "done", Type: schema.TypeBoolean, Required: boolPtr(false), Default: false},
		{Name: "priority", Type: schema.TypeInteger, Required: boolPtr(false), Default: 3},
	}, ""); err != nil {
		t.Fatal(err)
	}

	id, err := s.AddRecord(ctx, "Task", map[string]any{"title": "ship it"})
	if err != nil {
		t.Fatal(err)
	}
	rec, err := s.GetRecord(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Data["done"] != false {
		t.Errorf("default for done not stored: %v", rec.Data["done"])
	}
	// The persisted payload round-trips through JSON, so the numeric
	// default comes back as float64.
	if rec.Data["priority"] != float64(3) {
		t.Errorf("default for priority not stored: %v", rec.Data["priority"])
	}
}

func TestUpdateRecord_fullReplace(t *testing.T) {
	s := newStore(t, storage.NewMemoryStore())
	if err := s.CreateModel(ctx, "Note", []schema.FieldSpec{
		{Name: "a", Type: schema.TypeText},
		{Name: "b", Type: schema.TypeText, Required: boolPtr(false)},
	}, ""); err != nil {
		t.Fatal(err)
	}

	id, err := s.AddRecord(ctx, "Note", map[string]any{"a": "one", "b": "two"})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateRecord(ctx, id, map[string]any{"a": "changed"}); err != nil {
		t.Fatal(err)
	}

	rec, err := s.GetRecord(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Data["a"] != "changed" {
		t.Errorf("a not updated: %v", rec.Data["a"])
	}
	if _, still := rec.Data["b"]; still {
		t.Error("update must replace wholesale; field b survived")
	}
	if rec.UpdatedAt < rec.CreatedAt {
		t.Error("updated_at regressed")
	}
}

func TestUpdateRecord_unknownID(t *testing.T) {
	s := newStore(t, storage.NewMemoryStore())
	err := s.UpdateRecord(ctx, "missing", map[string]any{"a": "x"})
	if store.KindOf(err) != store.KindUnknownRecord {
		t.Errorf("expected unknown_record, got %v", err)
	}
}

func TestUpdateRecord_revalidates(t *testing.T) {
	s := newStore(t, storage.NewMemoryStore())
	definePerson(t, s)
	id, err := s.AddRecord(ctx, "Person", map[string]any{"name": "Anna", "age": 30})
	if err != nil {
		t.Fatal(err)
	}

	err = s.UpdateRecord(ctx, id, map[string]any{"name": "Anna", "age": "old"})
	if store.KindOf(err) != store.KindTypeMismatch {
		t.Errorf("expected type_mismatch, got %v", err)
	}

	rec, _ := s.GetRecord(ctx, id)
	if rec.Data["age"] != float64(30) {
		t.Errorf("failed update modified the stored payload: %v", rec.Data)
	}
}

// failingTxStore rejects transaction-log writes, forcing the staging path
// to surface a write failure.
type failingTxStore struct {
	*storage.MemoryStore
}

func (f *failingTxStore) SaveTransaction(context.Context, *storage.TransactionRow) error {
	return errors.New("disk full")
}

func TestAddRecord_auditWriteFailure(t *testing.T) {
	mem := storage.NewMemoryStore()
	definePerson(t, newStore(t, mem))

	s, err := store.New(ctx, &failingTxStore{MemoryStore: mem}, 0, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.AddRecord(ctx, "Person", map[string]any{"name": "Anna", "age": 30})
	if store.KindOf(err) != store.KindWriteFailed {
		t.Fatalf("expected write_failed, got %v", err)
	}
	if got := s.PendingCount(); got != 0 {
		t.Errorf("failed audit write staged a transaction: pending %d", got)
	}
}

func TestMine_noPendingIsQuietNoop(t *testing.T) {
	s := newStore(t, storage.NewMemoryStore())
	summary, err := s.Mine(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if summary != nil {
		t.Errorf("expected nil summary, got %+v", summary)
	}
}

// Three add_record calls staged in one session, mined once: the block holds
// exactly those three transactions, the pending set collapses to the single
// reward transaction, and every record row gains the block index.
func TestMine_threeRecordsOneBlock(t *testing.T) {
	mem := storage.NewMemoryStore()

	// Define the model in a first session so its model_creation transaction
	// is not part of the set mined below.
	definePerson(t, newStore(t, mem))

	s := newStore(t, mem)
	if got := s.PendingCount(); got != 0 {
		t.Fatalf("fresh session inherited pending transactions: %d", got)
	}

	var ids []string
	for _, name := range []string{"Anna", "Ben", "Cleo"} {
		id, err := s.AddRecord(ctx, "Person", map[string]any{"name": name, "age": 30})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	if got := s.PendingCount(); got != 3 {
		t.Fatalf("pending: got %d, want 3", got)
	}

	summary, err := s.Mine(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if summary == nil {
		t.Fatal("expected a block summary")
	}
	if summary.TransactionCount != 3 {
		t.Errorf("block transaction count: got %d, want 3", summary.TransactionCount)
	}

	info := s.Info()
	if info.ChainLength != 2 {
		t.Errorf("chain length: got %d, want 2", info.ChainLength)
	}
	if info.PendingCount != 1 { // the reward transaction
		t.Errorf("pending after mine: got %d, want 1", info.PendingCount)
	}
	if !info.Valid {
		t.Error("chain invalid after mine")
	}

	for _, id := range ids {
		rec, err := s.GetRecord(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if rec.BlockIndex == nil || *rec.BlockIndex != summary.Index {
			t.Errorf("record %s block index: got %v, want %d", id, rec.BlockIndex, summary.Index)
		}
		row, ok := mem.GetTransaction(rec.TransactionID)
		if !ok {
			t.Fatalf("transaction log entry %s missing", rec.TransactionID)
		}
		if row.BlockIndex == nil || *row.BlockIndex != summary.Index {
			t.Errorf("transaction %s block index: got %v, want %d", rec.TransactionID, row.BlockIndex, summary.Index)
		}
	}
}

func TestSearchRecords(t *testing.T) {
	s := newStore(t, storage.NewMemoryStore())
	definePerson(t, s)

	for _, p := range []map[string]any{
		{"name": "Anna", "age": 30},
		{"name": "Annabel", "age": 31},
		{"name": "Ben", "age": 30},
	} {
		if _, err := s.AddRecord(ctx, "Person", p); err != nil {
			t.Fatal(err)
		}
	}

	// Case-insensitive substring on text/text.
	got, err := s.SearchRecords(ctx, "Person", map[string]any{"name": "ann"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("substring search: got %d matches, want 2", len(got))
	}

	// A string criterion never matches an integer value.
	got, err = s.SearchRecords(ctx, "Person", map[string]any{"age": "30"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("string-vs-integer search: got %d matches, want 0", len(got))
	}

	// A numeric criterion matches by value.
	got, err = s.SearchRecords(ctx, "Person", map[string]any{"age": 30})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("numeric search: got %d matches, want 2", len(got))
	}

	// Conjunction of criteria.
	got, err = s.SearchRecords(ctx, "Person", map[string]any{"name": "ann", "age": 30})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Data["name"] != "Anna" {
		t.Errorf("conjunctive search wrong: %+v", got)
	}

	// A missing key is a non-match.
	got, err = s.SearchRecords(ctx, "Person", map[string]any{"email": "x"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("missing-key search: got %d matches, want 0", len(got))
	}
}

func TestReload_restoresModelsAndChain(t *testing.T) {
	mem := storage.NewMemoryStore()

	s1 := newStore(t, mem)
	definePerson(t, s1)
	if _, err := s1.AddRecord(ctx, "Person", map[string]any{"name": "Anna", "age": 30}); err != nil {
		t.Fatal(err)
	}
	if _, err := s1.Mine(ctx); err != nil {
		t.Fatal(err)
	}

	s2 := newStore(t, mem)
	if len(s2.Models()) != 1 {
		t.Errorf("models not restored: %d", len(s2.Models()))
	}
	info := s2.Info()
	if info.ChainLength != 2 {
		t.Errorf("chain not restored: length %d, want 2", info.ChainLength)
	}
	if !info.Valid {
		t.Error("restored chain fails verification")
	}
	if info.PendingCount != 0 {
		t.Errorf("restored session has pending transactions: %d", info.PendingCount)
	}

	// Round-trip: the restored model keeps its ordered field list.
	m := s2.Models()[0]
	want := []string{"name", "age", "email"}
	for i, name := range want {
		if m.Fields[i].Name != name {
			t.Errorf("field %d: got %q, want %q", i, m.Fields[i].Name, name)
		}
	}
	if m.Fields[1].Type != schema.TypeInteger {
		t.Errorf("field type tag lost in round-trip: %s", m.Fields[1].Type)
	}
}

// Full session against the default embedded backend: define, add, mine,
// close, reopen, and check the restored chain verifies with the block index
// back-filled onto the row.
func TestReload_sqliteBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hyperdb.db")

	st1, err := storage.NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	s1, err := store.New(ctx, st1, 0, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	definePerson(t, s1)
	id, err := s1.AddRecord(ctx, "Person", map[string]any{"name": "Anna", "age": 30})
	if err != nil {
		t.Fatal(err)
	}
	summary, err := s1.Mine(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if summary == nil {
		t.Fatal("expected a block summary")
	}
	if err := st1.Close(); err != nil {
		t.Fatal(err)
	}

	st2, err := storage.NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer st2.Close()
	s2, err := store.New(ctx, st2, 0, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	info := s2.Info()
	if info.ChainLength != 2 {
		t.Errorf("chain length after reopen: got %d, want 2", info.ChainLength)
	}
	if !info.Valid {
		t.Error("restored chain fails verification")
	}
	if len(s2.Models()) != 1 {
		t.Errorf("models not restored: %d", len(s2.Models()))
	}
	rec, err := s2.GetRecord(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.BlockIndex == nil || *rec.BlockIndex != summary.Index {
		t.Errorf("record block index: got %v, want %d", rec.BlockIndex, summary.Index)
	}
}

func TestModelCreation_isAudited(t *testing.T) {
	mem := storage.NewMemoryStore()
	s := newStore(t, mem)
	definePerson(t, s)

	if _, err := s.Mine(ctx); err != nil {
		t.Fatal(err)
	}

	b, ok := s.ChainBlock(1)
	if !ok {
		t.Fatal("block 1 missing")
	}
	if len(b.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(b.Transactions))
	}
	if b.Transactions[0].Data["type"] != store.TxModelCreation {
		t.Errorf("audit type: got %v, want %s", b.Transactions[0].Data["type"], store.TxModelCreation)
	}
}

func TestExport_document(t *testing.T) {
	mem := storage.NewMemoryStore()
	s := newStore(t, mem)
	definePerson(t, s)
	if _, err := s.AddRecord(ctx, "Person", map[string]any{"name": "Anna", "age": 30}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Mine(ctx); err != nil {
		t.Fatal(err)
	}

	doc, err := s.Export(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Models) != 1 || len(doc.Records) != 1 {
		t.Errorf("export counts wrong: models=%d records=%d", len(doc.Models), len(doc.Records))
	}
	if doc.LedgerSummary.ChainLength != 2 || !doc.LedgerSummary.Valid {
		t.Errorf("export ledger summary wrong: %+v", doc.LedgerSummary)
	}
	if len(doc.Blocks) != 2 { // genesis + mined block
		t.Errorf("export blocks: got %d, want 2", len(doc.Blocks))
	}
}
