// Package ledger implements a proof-of-work sealed, hash-chained audit log.
//
// The chain begins with a genesis block at index 0 whose previous hash is
// the well-known constant "0". Genesis is constructed directly and is never
// subjected to the proof-of-work requirement. Every later block stores the
// hash of its predecessor, making any tampering detectable via Verify.
//
// The package knows nothing about schemas or records: transactions carry an
// opaque Data payload whose meaning belongs to the caller. A Chain is not
// safe for concurrent use; one writer at a time must be enforced externally.
package ledger
