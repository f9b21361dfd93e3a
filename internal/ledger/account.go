package ledger

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// maxScale caps the fractional digits of any balance or amount.
	maxScale = 18
	// maxIntegerDigits caps the digits left of the decimal point.
	maxIntegerDigits = 30
)

// withinBounds reports whether d fits maxScale fractional digits and
// maxIntegerDigits integer digits. The exponent is checked first so huge
// exponents are rejected before any digit counting.
func withinBounds(d decimal.Decimal) bool {
	exp := int(d.Exponent())
	if exp < -maxScale || exp > maxIntegerDigits {
		return false
	}
	return d.NumDigits()+exp <= maxIntegerDigits
}

// CreateAccountInput captures the data required to open an account.
// A nil InitialBalance opens the account at zero.
type CreateAccountInput struct {
	ID             string
	InitialBalance *decimal.Decimal
}

// AccountSnapshot is a read-only projection of an account.
type AccountSnapshot struct {
	ID        string          `json:"id"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Account is an independently lockable balance record. Its balance never
// goes below zero and changes only through Credit and Debit.
type Account struct {
	id        string
	createdAt time.Time
	now       func() time.Time

	mu        sync.Mutex
	balance   decimal.Decimal
	updatedAt time.Time
}

// ValidateAccount reports every problem with the input as a *ValidationError.
func ValidateAccount(input CreateAccountInput) error {
	var problems []string
	if strings.TrimSpace(input.ID) == "" {
		problems = append(problems, "account id is required")
	}
	if input.InitialBalance != nil {
		switch {
		case input.InitialBalance.IsNegative():
			problems = append(problems, "initial balance must be a non-negative number")
		case !withinBounds(*input.InitialBalance):
			problems = append(problems, "initial balance is out of range")
		}
	}
	return newValidationError(problems)
}

// NewAccount validates the input and opens an account.
func NewAccount(input CreateAccountInput, now func() time.Time) (*Account, error) {
	if err := ValidateAccount(input); err != nil {
		return nil, err
	}
	if now == nil {
		now = utcNow
	}
	balance := decimal.Zero
	if input.InitialBalance != nil {
		balance = *input.InitialBalance
	}
	ts := now()
	return &Account{
		id:        input.ID,
		createdAt: ts,
		now:       now,
		balance:   balance,
		updatedAt: ts,
	}, nil
}

// ID returns the immutable account identifier.
func (a *Account) ID() string {
	return a.id
}

// HasSufficientFunds reports whether the balance covers amount.
func (a *Account) HasSufficientFunds(amount decimal.Decimal) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance.GreaterThanOrEqual(amount)
}

// Credit adds amount and returns the resulting balance. A non-nil error
// means the balance was not touched.
func (a *Account) Credit(amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Decimal{}, ErrInvalidAmount
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance = a.balance.Add(amount)
	a.updatedAt = a.now()
	return a.balance, nil
}

// Debit removes amount and returns the resulting balance. The funds check
// and the update happen under the same lock; a non-nil error means the
// balance was not touched.
func (a *Account) Debit(amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Decimal{}, ErrInvalidAmount
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.balance.LessThan(amount) {
		return decimal.Decimal{}, ErrInsufficientFunds
	}
	a.balance = a.balance.Sub(amount)
	a.updatedAt = a.now()
	return a.balance, nil
}

// Snapshot returns the current field values.
func (a *Account) Snapshot() AccountSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AccountSnapshot{
		ID:        a.id,
		Balance:   a.balance,
		CreatedAt: a.createdAt,
		UpdatedAt: a.updatedAt,
	}
}

func utcNow() time.Time {
	return time.Now().UTC()
}
