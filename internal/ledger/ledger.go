package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SystemAddress is the sender of every reward transaction.
const SystemAddress = "system"

// DefaultReward is the amount credited to the miner after each seal.
const DefaultReward = 10

var (
	// ErrNothingToSeal is returned by Seal when no transactions are staged.
	ErrNothingToSeal = errors.New("ledger: no pending transactions to seal")

	// ErrNonceExhausted is returned by Seal when a nonce cap was configured
	// and the search hit it without finding a hash below the target.
	ErrNonceExhausted = errors.New("ledger: nonce cap exhausted")
)

// Chain maintains an ordered chain of sealed blocks and the staging area of
// pending transactions. It is not safe for concurrent use.
type Chain struct {
	blocks     []*Block
	pending    []Transaction
	difficulty int
	reward     float64
	maxNonce   uint64 // 0 = unbounded search
}

// Option configures a Chain at construction time.
type Option func(*Chain)

// WithMaxNonce caps the proof-of-work search at n nonce increments.
// The default is an unbounded search.
func WithMaxNonce(n uint64) Option {
	return func(c *Chain) { c.maxNonce = n }
}

// WithReward overrides the miner reward amount.
func WithReward(amount float64) Option {
	return func(c *Chain) { c.reward = amount }
}

// New creates a chain holding only the genesis block. difficulty is the
// number of leading zero hex characters a sealed block's hash must carry;
// zero means every hash qualifies immediately.
func New(difficulty int, opts ...Option) *Chain {
	c := &Chain{
		difficulty: difficulty,
		reward:     DefaultReward,
	}
	for _, opt := range opts {
		opt(c)
	}
	genesis := &Block{
		Index:        0,
		Transactions: []Transaction{},
		Timestamp:    now(),
		PreviousHash: GenesisPreviousHash,
	}
	genesis.Hash = genesis.CalculateHash()
	c.blocks = append(c.blocks, genesis)
	return c
}

// Stage appends a transaction to the pending set. The returned index is an
// advisory guess at the block the transaction will land in; intervening
// stages or a skipped seal can change the real index, so callers must not
// treat it as authoritative.
func (c *Chain) Stage(sender, recipient string, amount float64, data map[string]any) int {
	if data == nil {
		data = map[string]any{}
	}
	c.pending = append(c.pending, Transaction{
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Data:      data,
		Timestamp: now(),
	})
	return len(c.blocks) + 1
}

// Seal builds a block from the current pending set and performs the
// proof-of-work search: the nonce is incremented from zero until the hash's
// first difficulty hex characters are all '0'. On success the block is
// appended and the pending set is replaced with a single reward transaction
// crediting miner.
//
// The search is CPU-bound with no upper bound unless a nonce cap was
// configured; ctx cancellation is checked periodically so callers can bound
// it themselves.
func (c *Chain) Seal(ctx context.Context, miner string) (*Block, error) {
	if len(c.pending) == 0 {
		return nil, ErrNothingToSeal
	}

	block := &Block{
		Index:        len(c.blocks),
		Transactions: append([]Transaction(nil), c.pending...),
		Timestamp:    now(),
		PreviousHash: c.Latest().Hash,
	}

	target := strings.Repeat("0", c.difficulty)
	block.Hash = block.CalculateHash()
	for !strings.HasPrefix(block.Hash, target) {
		if block.Nonce&0x3ff == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		if c.maxNonce > 0 && block.Nonce >= c.maxNonce {
			return nil, ErrNonceExhausted
		}
		block.Nonce++
		block.Hash = block.CalculateHash()
	}

	c.blocks = append(c.blocks, block)
	c.pending = []Transaction{{
		Sender:    SystemAddress,
		Recipient: miner,
		Amount:    c.reward,
		Data:      map[string]any{},
		Timestamp: now(),
	}}
	return block, nil
}

// Verify walks the chain and checks that every block's stored hash matches
// a recomputation from its stored fields, and that every block links to its
// predecessor's hash. It does not re-check that historical blocks satisfy
// the proof-of-work difficulty threshold; blocks sealed under an earlier
// difficulty remain valid.
func (c *Chain) Verify() error {
	for i := 1; i < len(c.blocks); i++ {
		curr, prev := c.blocks[i], c.blocks[i-1]
		if curr.Hash != curr.CalculateHash() {
			return fmt.Errorf("block %d has invalid hash", curr.Index)
		}
		if curr.PreviousHash != prev.Hash {
			return fmt.Errorf("hash chain broken at block %d", curr.Index)
		}
	}
	return nil
}

// BalanceOf scans every committed block, debiting address when it is the
// sender and crediting it when it is the recipient. Pending transactions do
// not count.
func (c *Chain) BalanceOf(address string) float64 {
	var balance float64
	for _, b := range c.blocks {
		for _, t := range b.Transactions {
			if t.Sender == address {
				balance -= t.Amount
			}
			if t.Recipient == address {
				balance += t.Amount
			}
		}
	}
	return balance
}

// Load rebuilds a chain from previously persisted blocks, trusting their
// stored hashes as-is. blocks must begin with the persisted genesis and be
// contiguous; establishing whether the restored chain is actually intact is
// the caller's job, via Verify.
func Load(difficulty int, blocks []*Block, opts ...Option) (*Chain, error) {
	if len(blocks) == 0 {
		return nil, errors.New("ledger: load requires at least the genesis block")
	}
	for i, b := range blocks {
		if b.Index != i {
			return nil, fmt.Errorf("ledger: load out of order: got block %d at position %d", b.Index, i)
		}
	}
	c := &Chain{
		difficulty: difficulty,
		reward:     DefaultReward,
		blocks:     append([]*Block(nil), blocks...),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Latest returns the most recent block; the chain always holds at least
// the genesis block.
func (c *Chain) Latest() *Block {
	return c.blocks[len(c.blocks)-1]
}

// Block returns the block at the given index.
func (c *Chain) Block(index int) (*Block, bool) {
	if index < 0 || index >= len(c.blocks) {
		return nil, false
	}
	return c.blocks[index], true
}

// Length returns the number of blocks including genesis.
func (c *Chain) Length() int { return len(c.blocks) }

// PendingCount returns the number of staged transactions.
func (c *Chain) PendingCount() int { return len(c.pending) }

// Pending returns a copy of the staged transactions.
func (c *Chain) Pending() []Transaction {
	return append([]Transaction(nil), c.pending...)
}

// Difficulty returns the configured proof-of-work difficulty.
func (c *Chain) Difficulty() int { return c.difficulty }

// now returns the current time as fractional unix seconds.
func now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
