package ledger_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperdb/hyperdb/internal/ledger"
)

var ctx = context.Background()

func TestNew_genesisBlock(t *testing.T) {
	c := ledger.New(2)

	if c.Length() != 1 {
		t.Fatalf("expected chain of length 1, got %d", c.Length())
	}
	g := c.Latest()
	if g.Index != 0 {
		t.Errorf("genesis index: got %d, want 0", g.Index)
	}
	if g.PreviousHash != ledger.GenesisPreviousHash {
		t.Errorf("genesis previous hash: got %q, want %q", g.PreviousHash, ledger.GenesisPreviousHash)
	}
	if len(g.Transactions) != 0 {
		t.Errorf("genesis should carry no transactions, got %d", len(g.Transactions))
	}
	if g.Hash != g.CalculateHash() {
		t.Error("genesis hash does not match recomputation")
	}
	if c.PendingCount() != 0 {
		t.Errorf("expected empty pending set, got %d", c.PendingCount())
	}
}

func TestStage_advisoryIndex(t *testing.T) {
	c := ledger.New(0)

	idx := c.Stage("alice", "bob", 5, map[string]any{"note": "first"})
	if idx != 2 { // len(chain)+1 with only genesis present
		t.Errorf("advisory index: got %d, want 2", idx)
	}
	if c.PendingCount() != 1 {
		t.Errorf("pending count: got %d, want 1", c.PendingCount())
	}

	// The advisory index does not advance until a block is sealed.
	if idx2 := c.Stage("bob", "carol", 1, nil); idx2 != 2 {
		t.Errorf("second advisory index: got %d, want 2", idx2)
	}
}

func TestSeal_difficultyZeroSucceedsImmediately(t *testing.T) {
	c := ledger.New(0)
	c.Stage("alice", "bob", 5, nil)

	b, err := c.Seal(ctx, "miner-1")
	if err != nil {
		t.Fatal(err)
	}
	if b.Nonce != 0 {
		t.Errorf("difficulty 0 must seal at nonce 0, got %d", b.Nonce)
	}
}

func TestSeal_meetsDifficulty(t *testing.T) {
	c := ledger.New(2)
	c.Stage("alice", "bob", 5, map[string]any{"k": "v"})

	b, err := c.Seal(ctx, "miner-1")
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(b.Hash, "00") {
		t.Errorf("sealed hash %q does not meet difficulty 2", b.Hash)
	}
	if b.Index != 1 {
		t.Errorf("sealed block index: got %d, want 1", b.Index)
	}
	if b.PreviousHash == "" || b.PreviousHash == ledger.GenesisPreviousHash {
		t.Errorf("sealed block should link to genesis hash, got %q", b.PreviousHash)
	}
	if c.Length() != 2 {
		t.Errorf("chain length after seal: got %d, want 2", c.Length())
	}

	// Pending resets to exactly one reward transaction.
	pending := c.Pending()
	if len(pending) != 1 {
		t.Fatalf("pending after seal: got %d transactions, want 1", len(pending))
	}
	reward := pending[0]
	if reward.Sender != ledger.SystemAddress || reward.Recipient != "miner-1" {
		t.Errorf("reward transaction %s -> %s, want %s -> miner-1",
			reward.Sender, reward.Recipient, ledger.SystemAddress)
	}
	if reward.Amount != ledger.DefaultReward {
		t.Errorf("reward amount: got %v, want %v", reward.Amount, ledger.DefaultReward)
	}
}

func TestSeal_emptyPendingRejected(t *testing.T) {
	c := ledger.New(0)
	if _, err := c.Seal(ctx, "miner-1"); !errors.Is(err, ledger.ErrNothingToSeal) {
		t.Errorf("expected ErrNothingToSeal, got %v", err)
	}
}

func TestSeal_cancelledContext(t *testing.T) {
	c := ledger.New(16) // practically unreachable target
	c.Stage("alice", "bob", 1, nil)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Seal(cancelled, "miner-1"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if c.Length() != 1 {
		t.Errorf("aborted seal must not extend the chain, length %d", c.Length())
	}
	if c.PendingCount() != 1 {
		t.Errorf("aborted seal must not touch the pending set, count %d", c.PendingCount())
	}
}

func TestSeal_nonceCap(t *testing.T) {
	c := ledger.New(16, ledger.WithMaxNonce(100))
	c.Stage("alice", "bob", 1, nil)

	if _, err := c.Seal(ctx, "miner-1"); !errors.Is(err, ledger.ErrNonceExhausted) {
		t.Errorf("expected ErrNonceExhausted, got %v", err)
	}
}

func TestVerify_validChain(t *testing.T) {
	c := ledger.New(1)
	c.Stage("alice", "bob", 5, nil)
	if _, err := c.Seal(ctx, "miner-1"); err != nil {
		t.Fatal(err)
	}
	c.Stage("bob", "carol", 2, map[string]any{"memo": "x"})
	if _, err := c.Seal(ctx, "miner-1"); err != nil {
		t.Fatal(err)
	}

	if err := c.Verify(); err != nil {
		t.Errorf("Verify() failed on valid chain: %v", err)
	}
}

func TestVerify_detectsTamperedTransaction(t *testing.T) {
	c := ledger.New(0)
	c.Stage("alice", "bob", 5, nil)
	if _, err := c.Seal(ctx, "miner-1"); err != nil {
		t.Fatal(err)
	}

	b, ok := c.Block(1)
	if !ok {
		t.Fatal("block 1 missing")
	}
	b.Transactions[0].Amount = 5000

	if err := c.Verify(); err == nil {
		t.Error("Verify() passed on a tampered chain")
	}
}

func TestVerify_detectsBrokenLinkage(t *testing.T) {
	c := ledger.New(0)
	c.Stage("alice", "bob", 5, nil)
	if _, err := c.Seal(ctx, "miner-1"); err != nil {
		t.Fatal(err)
	}
	c.Stage("bob", "carol", 1, nil)
	if _, err := c.Seal(ctx, "miner-1"); err != nil {
		t.Fatal(err)
	}

	// Rewrite block 1 consistently with itself: its own hash matches its
	// fields, but block 2 no longer links to it.
	b, _ := c.Block(1)
	b.Timestamp++
	b.Hash = b.CalculateHash()

	if err := c.Verify(); err == nil {
		t.Error("Verify() passed on a chain with broken linkage")
	}
}

func TestBalanceOf(t *testing.T) {
	c := ledger.New(0)
	c.Stage("alice", "bob", 5, nil)
	if _, err := c.Seal(ctx, "miner-1"); err != nil {
		t.Fatal(err)
	}

	if got := c.BalanceOf("bob"); got != 5 {
		t.Errorf("bob balance: got %v, want 5", got)
	}
	if got := c.BalanceOf("alice"); got != -5 {
		t.Errorf("alice balance: got %v, want -5", got)
	}
	// The reward is only pending until a later block commits it.
	if got := c.BalanceOf("miner-1"); got != 0 {
		t.Errorf("miner balance before reward commit: got %v, want 0", got)
	}

	c.Stage("bob", "carol", 1, nil)
	if _, err := c.Seal(ctx, "miner-1"); err != nil {
		t.Fatal(err)
	}
	if got := c.BalanceOf("miner-1"); got != ledger.DefaultReward {
		t.Errorf("miner balance after reward commit: got %v, want %v", got, ledger.DefaultReward)
	}
}

func TestLoad_rebuildsPersistedChain(t *testing.T) {
	src := ledger.New(1)
	src.Stage("alice", "bob", 5, nil)
	if _, err := src.Seal(ctx, "miner-1"); err != nil {
		t.Fatal(err)
	}

	var blocks []*ledger.Block
	for i := 0; i < src.Length(); i++ {
		b, _ := src.Block(i)
		blocks = append(blocks, b)
	}

	restored, err := ledger.Load(1, blocks)
	if err != nil {
		t.Fatal(err)
	}
	if restored.Length() != 2 {
		t.Fatalf("restored chain length: got %d, want 2", restored.Length())
	}
	if err := restored.Verify(); err != nil {
		t.Errorf("Verify() failed after load: %v", err)
	}
	if restored.Latest().Hash != src.Latest().Hash {
		t.Error("restored tip differs from source tip")
	}
}

func TestLoad_rejectsGaps(t *testing.T) {
	if _, err := ledger.Load(0, nil); err == nil {
		t.Error("Load accepted an empty chain")
	}
	src := ledger.New(0)
	g, _ := src.Block(0)
	gapped := []*ledger.Block{g, {Index: 2}}
	if _, err := ledger.Load(0, gapped); err == nil {
		t.Error("Load accepted a gapped chain")
	}
}
