package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidMaterial = errors.New("invalid material")
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrDuplicateScan   = errors.New("duplicate scan")
	ErrNegativeBalance = errors.New("negative balance")
	ErrUnknownMaterial = errors.New("unknown material")
	ErrOperationFailed = errors.New("operation failed")
	ErrInvalidName     = errors.New("invalid name")
	ErrInvalidPhone    = errors.New("invalid phone")
	ErrVersionConflict = errors.New("version conflict")
	ErrEventNotFound   = errors.New("event not found")
)

// LedgerError is the structured error returned to callers of the ledger and
// registration services. Kind is one of the sentinels above, Field names the
// offending input when there is one.
type LedgerError struct {
	Kind    error
	Message string
	Field   string
	Err     error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *LedgerError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func newError(kind error, field, msg string) *LedgerError {
	return &LedgerError{Kind: kind, Field: field, Message: msg}
}

func NotFound(msg string) *LedgerError {
	return newError(ErrUserNotFound, "", msg)
}

func Invalid(kind error, field, msg string) *LedgerError {
	return newError(kind, field, msg)
}

// OperationFailed wraps a storage, lock or cancellation failure. Callers may retry.
func OperationFailed(err error) *LedgerError {
	return &LedgerError{Kind: ErrOperationFailed, Message: "operation failed, please retry", Err: err}
}

// AsLedgerError returns err as a *LedgerError when it is one.
func AsLedgerError(err error) (*LedgerError, bool) {
	var le *LedgerError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
