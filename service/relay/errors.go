package relay

import (
	"errors"
	"fmt"
)

var (
	// ErrTransferNotFound is returned by stores when no transfer matches
	// the given id or reference id.
	ErrTransferNotFound = errors.New("transfer not found")

	// ErrSigner wraps failures from the relay signer. The engine does not
	// inspect or retry them.
	ErrSigner = errors.New("signer failure")

	// ErrPersistence wraps store failures. When CreateTransfer fails after
	// a successful sign, the caller still holds valid signed transaction
	// bytes with no corresponding durable record; ErrPersistence is
	// distinct so callers can decide whether to discard or recover them.
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError describes a malformed transfer request. It is always
// reported before any chain interaction and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func validationErr(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
