package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// GenesisPreviousHash is the previous-hash value of the genesis block.
const GenesisPreviousHash = "0"

// Transaction is a single entry staged into the chain. Sender and Recipient
// are opaque address strings; Data is an opaque payload the ledger never
// inspects.
type Transaction struct {
	Sender    string         `json:"sender"`
	Recipient string         `json:"recipient"`
	Amount    float64        `json:"amount"`
	Data      map[string]any `json:"data"`
	Timestamp float64        `json:"timestamp"`
}

// Block is a sealed, hash-linked container of transactions at a fixed chain
// position. Hash covers every other field via CalculateHash.
type Block struct {
	Index        int           `json:"index"`
	Transactions []Transaction `json:"transactions"`
	Timestamp    float64       `json:"timestamp"`
	PreviousHash string        `json:"previous_hash"`
	Nonce        uint64        `json:"nonce"`
	Hash         string        `json:"hash"`
}

// canonical returns the transaction as a plain map so that json.Marshal
// emits its keys in sorted order.
func (t Transaction) canonical() map[string]any {
	data := t.Data
	if data == nil {
		data = map[string]any{}
	}
	return map[string]any{
		"sender":    t.Sender,
		"recipient": t.Recipient,
		"amount":    t.Amount,
		"data":      data,
		"timestamp": t.Timestamp,
	}
}

// CalculateHash computes the SHA-256 digest of the block's canonical form:
// a key-sorted JSON document over index, transactions, timestamp,
// previous_hash and nonce. The stored Hash field is not an input.
func (b *Block) CalculateHash() string {
	txs := make([]map[string]any, len(b.Transactions))
	for i, t := range b.Transactions {
		txs[i] = t.canonical()
	}
	// Transaction payloads are plain JSON values (maps, slices, strings,
	// numbers, bools), so Marshal cannot fail here.
	payload, _ := json.Marshal(map[string]any{
		"index":         b.Index,
		"transactions":  txs,
		"timestamp":     b.Timestamp,
		"previous_hash": b.PreviousHash,
		"nonce":         b.Nonce,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
