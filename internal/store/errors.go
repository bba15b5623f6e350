package store

import (
	"errors"
	"fmt"

	"github.com/hyperdb/hyperdb/internal/schema"
	"github.com/hyperdb/hyperdb/internal/storage"
)

// ErrorKind discriminates the failures a RecordStore operation can report.
// Every error returned from the public surface is an *Error carrying one of
// these kinds; nothing from the validation or persistence layers escapes
// untranslated.
type ErrorKind string

const (
	// KindUnknownModel means the named model has never been defined.
	KindUnknownModel ErrorKind = "unknown_model"
	// KindModelExists means the model name is already taken.
	KindModelExists ErrorKind = "model_exists"
	// KindInvalidModel means the field specs themselves are malformed.
	KindInvalidModel ErrorKind = "invalid_model"
	// KindMissingRequired means a required field is absent after defaulting.
	KindMissingRequired ErrorKind = "missing_required"
	// KindTypeMismatch means a payload value does not match its field type.
	KindTypeMismatch ErrorKind = "type_mismatch"
	// KindUnknownRecord means no record exists under the given id.
	KindUnknownRecord ErrorKind = "unknown_record"
	// KindWriteFailed means the persistence adapter rejected a write.
	KindWriteFailed ErrorKind = "write_failed"
	// KindReadFailed means the persistence adapter failed a read.
	KindReadFailed ErrorKind = "read_failed"
	// KindMiningAborted means the proof-of-work search was cancelled or hit
	// its configured nonce cap before finding a valid hash.
	KindMiningAborted ErrorKind = "mining_aborted"
)

// Error is the discriminated failure type of the RecordStore boundary.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("store: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the error kind, or "" when err is nil or foreign.
func KindOf(err error) ErrorKind {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Kind
	}
	return ""
}

func failure(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// translateSchema maps a validation error onto the store taxonomy.
func translateSchema(err error) *Error {
	var serr *schema.Error
	if errors.As(err, &serr) && serr.Kind == schema.KindMissingRequired {
		return failure(KindMissingRequired, err)
	}
	return failure(KindTypeMismatch, err)
}

// translateWrite maps a persistence write error onto the store taxonomy.
func translateWrite(err error) *Error {
	if errors.Is(err, storage.ErrDuplicate) {
		return failure(KindModelExists, err)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return failure(KindUnknownRecord, err)
	}
	return failure(KindWriteFailed, err)
}

// translateRead maps a persistence read error onto the store taxonomy.
func translateRead(err error) *Error {
	if errors.Is(err, storage.ErrNotFound) {
		return failure(KindUnknownRecord, err)
	}
	return failure(KindReadFailed, err)
}
