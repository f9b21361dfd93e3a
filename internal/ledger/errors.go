package ledger

import (
	"errors"
	"strings"
)

var (
	// ErrValidation marks malformed or out-of-range input. It never accompanies a mutation.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound occurs when a referenced account or transfer is absent.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an account with the requested id is already registered.
	ErrAlreadyExists = errors.New("account already exists")

	// ErrInsufficientFunds occurs when a debit exceeds the available balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount is returned by credit and debit for negative amounts.
	ErrInvalidAmount = errors.New("amount cannot be negative")

	// ErrInjectedFailure is the synthetic failure raised after both mutations
	// when a transfer requests it.
	ErrInjectedFailure = errors.New("injected failure after mutation")
)

// ValidationError collects every problem found in a request.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + strings.Join(e.Problems, ", ")
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func newValidationError(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}
