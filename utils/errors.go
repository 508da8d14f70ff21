package utils

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by lookups that found no row.
var ErrNotFound = errors.New("not found")

// ValidationError rejects a single write. Invariant names the rule that would
// have been broken, e.g. "table/branch mismatch". Callers must fix the input;
// these are never retried.
type ValidationError struct {
	Invariant string
	Message   string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return e.Invariant
	}
	return fmt.Sprintf("%s: %s", e.Invariant, e.Message)
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(invariant, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Invariant: invariant, Message: fmt.Sprintf(format, args...)}
}

// TransactionError is a store failure inside a transaction that has been
// rolled back in full. The whole operation is safe to retry.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// Retryable is always true: the transaction left nothing behind.
func (e *TransactionError) Retryable() bool { return true }

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsTransaction(err error) bool {
	var te *TransactionError
	return errors.As(err, &te)
}

// conflictInvariants are rejections of well-formed input that collides with
// rows already stored.
var conflictInvariants = map[string]bool{
	"duplicate label in tenant": true,
	"table not available":       true,
	"group is closed":           true,
	"order is not open":         true,
}

func IsConflict(err error) bool {
	return conflictInvariants[InvariantOf(err)]
}

// InvariantOf returns the violated invariant of a ValidationError, or "".
func InvariantOf(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Invariant
	}
	return ""
}
