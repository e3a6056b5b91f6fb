// Package domain defines the error taxonomy for the storage engine.
package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a StoreError per the propagation policy in §7: kind alone
// decides whether an error is retried, aborted, or surfaced verbatim to the
// caller.
type Kind string

const (
	// KindInternal is an unclassified internal failure.
	KindInternal Kind = "internal_error"

	// KindSerialize means encoding a value for storage failed. Fatal for the
	// write batch that produced it.
	KindSerialize Kind = "serialize_error"

	// KindDeserialize means decoding a stored value failed. On read paths a
	// garbled/missing snapshot is reclassified as KindDataCorruption.
	KindDeserialize Kind = "deserialize_error"

	// KindDataCorruption means the back-end returned data that violates an
	// invariant the write pipeline guarantees. Aborts the current operation;
	// never retried locally, since durability is assumed to be the back-end's
	// responsibility.
	KindDataCorruption Kind = "data_corruption"

	// KindNotFound means the requested entity does not exist.
	KindNotFound Kind = "not_found"

	// KindInvalidArgument means the caller supplied a malformed request.
	KindInvalidArgument Kind = "invalid_argument"
)

// StoreError is the structured error type returned by every core component.
type StoreError struct {
	Kind    Kind
	Op      string // component/operation that raised it, e.g. "store.Commit"
	Message string
	Cause   error
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

// Unwrap supports errors.Unwrap / errors.Is / errors.As over Cause.
func (e *StoreError) Unwrap() error { return e.Cause }

// Is matches another *StoreError with the same Kind, or a sentinel that
// wraps a matching Kind via errors.Is chaining.
func (e *StoreError) Is(target error) bool {
	var t *StoreError
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a StoreError of the given kind.
func New(kind Kind, op, message string) *StoreError {
	return &StoreError{Kind: kind, Op: op, Message: message}
}

// Wrap creates a StoreError of the given kind wrapping cause.
func Wrap(kind Kind, op, message string, cause error) *StoreError {
	return &StoreError{Kind: kind, Op: op, Message: message, Cause: cause}
}

// Is reports whether err is a StoreError of the given kind.
func Is(err error, kind Kind) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or KindInternal if err is not a
// StoreError.
func KindOf(err error) Kind {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// Sentinel errors used with errors.Is where no extra context is needed.
var (
	// ErrKeyNotFound is returned by KVEngine.Get for a missing key.
	ErrKeyNotFound = New(KindNotFound, "kv", "key not found")

	// ErrDocumentNotFound is returned by store/query read paths.
	ErrDocumentNotFound = New(KindNotFound, "store", "document not found")

	// ErrBlobNotFound is returned by blobstore.Get for an unknown blob key.
	ErrBlobNotFound = New(KindNotFound, "blobstore", "blob not found")

	// ErrNonContiguousBlobIndex flags a document builder contract violation:
	// blob indices referenced by StoreAsBlob must be dense, starting at 0.
	ErrNonContiguousBlobIndex = New(KindInvalidArgument, "document", "blob indices must be contiguous starting at 0")

	// ErrLockPoisoned is returned by the id assigner when its mutex was
	// poisoned by a prior panic; fatal for that (account, collection) per §7.
	ErrLockPoisoned = New(KindInternal, "idassign", "assigner lock poisoned")

	// ErrRaftLogDiverged is returned when a follower's local match disagrees
	// with the leader's reported matched index — fatal for that peer.
	ErrRaftLogDiverged = New(KindDataCorruption, "raft", "log diverged from leader")
)
