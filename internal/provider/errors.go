package provider

import (
	"errors"
	"fmt"
)

// Kind classifies an adapter failure for the caller's retry decision.
type Kind int

const (
	// KindRetryable covers timeouts, 5xx and rate limits. Adapters retry
	// these internally; if one escapes, the operation may be re-attempted.
	KindRetryable Kind = iota
	// KindPermanent covers 404/410/invalid requests. Never retried blindly.
	KindPermanent
	// KindConflict is an etag mismatch on update. Surfaced to the caller to
	// decide merge/overwrite/skip, never silently resolved.
	KindConflict
	// KindInvalidSyncToken means the incremental token expired; the cursor
	// must be invalidated and a full resync performed.
	KindInvalidSyncToken
	// KindUnsupported marks an operation the provider cannot do at all
	// (e.g. push channels on CalDAV).
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindRetryable:
		return "retryable"
	case KindPermanent:
		return "permanent"
	case KindConflict:
		return "conflict"
	case KindInvalidSyncToken:
		return "invalid_sync_token"
	case KindUnsupported:
		return "unsupported"
	}
	return "unknown"
}

// Error is the typed failure returned by adapters.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind and operation name.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the failure kind; non-adapter errors count as retryable so
// transport-level surprises are never mistaken for permanent failures.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindRetryable
}

// IsRetryable reports whether the operation may be safely re-attempted.
func IsRetryable(err error) bool { return KindOf(err) == KindRetryable }

// IsConflict reports an etag mismatch.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsInvalidSyncToken reports an expired incremental token.
func IsInvalidSyncToken(err error) bool { return KindOf(err) == KindInvalidSyncToken }

// IsNotFound reports a permanent missing-resource failure.
func IsNotFound(err error) bool { return KindOf(err) == KindPermanent }
