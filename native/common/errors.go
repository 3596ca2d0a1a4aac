package common

import "errors"

// Ledger error kinds. Engines wrap these with operation context; callers
// match them with errors.Is.
var (
	ErrNotInitialized      = errors.New("not initialized")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoActiveLoan        = errors.New("no active loan")
	ErrAlreadyApproved     = errors.New("already approved")
	ErrNothingToRedeem     = errors.New("nothing to redeem")

	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidAmount = errors.New("invalid amount")
)
