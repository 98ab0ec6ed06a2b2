package orders

import (
	"errors"
	"fmt"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrCapacityExceeded       = errors.New("draft order capacity exceeded")
	ErrOrderLocked            = errors.New("order is locked for checkout")
	ErrOrderNotFound          = errors.New("order not found")
	ErrNoActiveOrder          = errors.New("no order selected")
	ErrBackendUnavailable     = errors.New("order backend unavailable")
	ErrReconciliationConflict = errors.New("reconciliation conflict")
	ErrGatewayAmbiguous       = errors.New("payment outcome not confirmed by backend")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrInvalidSignature       = errors.New("invalid gateway signature")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid is shorthand for &ValidationError{field, reason}.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransitionError reports a status change outside the transition table.
type TransitionError struct {
	OrderID int64
	From    Status
	To      Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %d: cannot move from %s to %s", e.OrderID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// ConflictError is returned when a callback disagrees with an already final
// verdict. It is never resolved automatically.
type ConflictError struct {
	TxnRef   string
	Existing Verdict
	Incoming Verdict
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("txn %s already finalized as %s, callback says %s", e.TxnRef, e.Existing, e.Incoming)
}

func (e *ConflictError) Is(target error) bool { return target == ErrReconciliationConflict }

// Unavailable wraps a transport or service failure as ErrBackendUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrBackendUnavailable, err)
}

// IsBusiness reports whether err is a business-rule outcome that retrying
// cannot change.
func IsBusiness(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrOrderLocked) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrReconciliationConflict) ||
		errors.Is(err, ErrCapacityExceeded)
}
