package models

import (
	"errors"
	"fmt"
)

// Business failures returned by the ledger and loan engine. Callers render
// these directly; anything else bubbling out of a service is treated as an
// infrastructure failure.
var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrAccountNotFound      = errors.New("account not found")
	ErrRecipientGone        = errors.New("recipient account no longer exists")
	ErrLoanNotFound         = errors.New("loan not found")
	ErrNotBorrower          = errors.New("only the borrower can perform this action")
	ErrNotLender            = errors.New("only the lender can perform this action")
	ErrAmountOutOfRange     = errors.New("amount out of range")
	ErrConfirmationRequired = errors.New("high-interest loan requires explicit confirmation")
	ErrPendingOfferExists   = errors.New("a pending loan offer between these users already exists")
)

// InvalidStateError indicates a loan transition attempted from the wrong state
type InvalidStateError struct {
	Expected LoanStatus
	Actual   LoanStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid loan state: expected %s, got %s", e.Expected, e.Actual)
}

// LimitExceededError indicates a withdrawal quota would be exceeded
type LimitExceededError struct {
	Scope     LimitScope
	Remaining int64
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s withdrawal limit exceeded: %d remaining this week", e.Scope, e.Remaining)
}

// IsBusinessError reports whether err is an expected business condition
// rather than an infrastructure failure.
func IsBusinessError(err error) bool {
	if errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrRecipientGone) ||
		errors.Is(err, ErrLoanNotFound) ||
		errors.Is(err, ErrNotBorrower) ||
		errors.Is(err, ErrNotLender) ||
		errors.Is(err, ErrAmountOutOfRange) ||
		errors.Is(err, ErrConfirmationRequired) ||
		errors.Is(err, ErrPendingOfferExists) {
		return true
	}
	var invalidState *InvalidStateError
	var limitExceeded *LimitExceededError
	return errors.As(err, &invalidState) || errors.As(err, &limitExceeded)
}
