package carbon

import (
	"errors"
	"fmt"
)

// Sentinel errors for ledger operations. Operations wrap these with detail,
// so match them with errors.Is.
var (
	// Operation errors
	ErrInsufficientBalance = errors.New("carbon: insufficient balance")
	ErrNotFound            = errors.New("carbon: not found")
	ErrUnauthorized        = errors.New("carbon: unauthorized")
	ErrInvalidPrice        = errors.New("carbon: invalid price")
	ErrInvalidAmount       = errors.New("carbon: invalid amount")
	ErrSettlementFailed    = errors.New("carbon: settlement failed")

	// Engine errors
	ErrNotStarted      = errors.New("carbon: ledger not started")
	ErrCorruptState    = errors.New("carbon: stored state violates conservation")
	ErrStaleChangeSet  = errors.New("carbon: change set was planned against an older state")
	ErrInvalidSnapshot = errors.New("carbon: invalid snapshot")

	// Store errors
	ErrAlreadyExists     = errors.New("carbon: already exists")
	ErrStoreNotReady     = errors.New("carbon: store not ready")
	ErrStoreClosed       = errors.New("carbon: store is closed")
	ErrTransactionFailed = errors.New("carbon: transaction failed")
	ErrMigrationFailed   = errors.New("carbon: migration failed")
)

// ErrorKind names the failure class of an operation error.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindInsufficientBalance ErrorKind = "insufficient_balance"
	KindNotFound            ErrorKind = "not_found"
	KindUnauthorized        ErrorKind = "unauthorized"
	KindInvalidPrice        ErrorKind = "invalid_price"
	KindInvalidAmount       ErrorKind = "invalid_amount"
	KindSettlementFailed    ErrorKind = "settlement_failed"
	KindInternal            ErrorKind = "internal"
)

// Kind classifies err. It returns KindNone for a nil error and KindInternal
// for errors outside the operation taxonomy. A failed write is internal even
// when the store's cause matches a rejection sentinel.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrTransactionFailed):
		return KindInternal
	case errors.Is(err, ErrInsufficientBalance):
		return KindInsufficientBalance
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrInvalidPrice):
		return KindInvalidPrice
	case errors.Is(err, ErrInvalidAmount):
		return KindInvalidAmount
	case errors.Is(err, ErrSettlementFailed):
		return KindSettlementFailed
	default:
		return KindInternal
	}
}

// ConservationError reports a credit whose balances and retirements do not
// add up to its issued amount.
type ConservationError struct {
	CreditID uint64
	Issued   int64
	Held     int64
	Retired  int64
}

func (e ConservationError) Error() string {
	return fmt.Sprintf("carbon: credit %d: held %d + retired %d != issued %d",
		e.CreditID, e.Held, e.Retired, e.Issued)
}

// Unwrap lets errors.Is match ErrCorruptState.
func (e ConservationError) Unwrap() error { return ErrCorruptState }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "carbon: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("carbon: %d errors occurred (first: %v)", len(e.Errors), e.Errors[0])
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ErrOrNil returns e if it holds any errors, nil otherwise.
func (e MultiError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRejection returns true if the ledger refused the operation without
// changing state because a precondition failed.
func IsRejection(err error) bool {
	switch Kind(err) {
	case KindInsufficientBalance, KindNotFound, KindUnauthorized,
		KindInvalidPrice, KindInvalidAmount, KindSettlementFailed:
		return true
	}
	return false
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed) ||
		errors.Is(err, ErrSettlementFailed)
}
