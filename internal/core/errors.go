package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrBalanceOverflow       = errors.New("balance out of range")
	ErrInvalidRate           = errors.New("invalid fx rate")
	ErrInvalidCurrency       = errors.New("invalid currency")
	ErrInvalidWeight         = errors.New("invalid participant weight")
	ErrEmptyParticipantID    = errors.New("empty participant id")
	ErrDuplicateParticipant  = errors.New("duplicate participant")
	ErrUnknownParticipant    = errors.New("unknown participant")
	ErrEmptyExpenseID        = errors.New("empty expense id")
	ErrEmptyParticipantSet   = errors.New("expense has no split participants")
	ErrSelfPayment           = errors.New("payment to self")
	ErrInvalidPaymentStatus  = errors.New("invalid payment status")
	ErrDuplicateBudget       = errors.New("duplicate budget category")
	ErrInvalidSplit          = errors.New("invalid split")
	ErrConservationViolation = errors.New("conservation of money violated")
)

// InvalidSplitError reports an expense whose split policy does not reconcile
// with its total. It is the one error callers are expected to surface to users.
type InvalidSplitError struct {
	ExpenseID string
	Reason    string
}

func (e *InvalidSplitError) Error() string {
	return fmt.Sprintf("invalid split for expense %s: %s", e.ExpenseID, e.Reason)
}

// Unwrap lets errors.Is(err, ErrInvalidSplit) match.
func (e *InvalidSplitError) Unwrap() error {
	return ErrInvalidSplit
}

// NewInvalidSplit builds an InvalidSplitError with a formatted reason.
func NewInvalidSplit(expenseID, format string, args ...any) *InvalidSplitError {
	return &InvalidSplitError{ExpenseID: expenseID, Reason: fmt.Sprintf(format, args...)}
}

// ConservationViolation is raised (as a panic value) when signed ledger
// amounts stop netting to zero. It always indicates a programming error.
type ConservationViolation struct {
	Stage     string
	ExpenseID string
	Residual  int64
}

func (e *ConservationViolation) Error() string {
	if e.ExpenseID == "" {
		return fmt.Sprintf("%s: %s: residual %d minor units", ErrConservationViolation, e.Stage, e.Residual)
	}
	return fmt.Sprintf("%s: %s (expense %s): residual %d minor units", ErrConservationViolation, e.Stage, e.ExpenseID, e.Residual)
}

func (e *ConservationViolation) Unwrap() error {
	return ErrConservationViolation
}

// AssertConserved panics with a ConservationViolation when residual is not zero.
func AssertConserved(stage, expenseID string, residual int64) {
	if residual != 0 {
		panic(&ConservationViolation{Stage: stage, ExpenseID: expenseID, Residual: residual})
	}
}
