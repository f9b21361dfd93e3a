package ledger

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// TransferStatus is the lifecycle state of a transfer record.
type TransferStatus string

const (
	// StatusPending is the state of a record between creation and its terminal transition.
	StatusPending TransferStatus = "pending"
	// StatusCompleted marks a transfer whose debit and credit both applied.
	StatusCompleted TransferStatus = "completed"
	// StatusFailed marks a transfer whose applied mutations were compensated.
	StatusFailed TransferStatus = "failed"
)

// TransferInput captures a request to move funds between two accounts.
type TransferInput struct {
	FromAccountID string
	ToAccountID   string
	Amount        decimal.Decimal
	Description   string

	// FailAfterMutation forces the transfer to fail once both mutations
	// applied, exercising compensation.
	FailAfterMutation bool
}

// TransferSnapshot is a read-only projection of a transfer record.
type TransferSnapshot struct {
	ID            string          `json:"id"`
	FromAccountID string          `json:"fromAccountId"`
	ToAccountID   string          `json:"toAccountId"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	Status        TransferStatus  `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	CompletedAt   *time.Time      `json:"completedAt"`
}

// Transfer records one transfer attempt. Everything but the status and
// completion time is fixed at creation.
type Transfer struct {
	id            string
	fromAccountID string
	toAccountID   string
	amount        decimal.Decimal
	description   string
	createdAt     time.Time

	mu          sync.Mutex
	status      TransferStatus
	completedAt *time.Time
}

// ValidateTransfer checks the input without consulting any account and
// reports all violations at once.
func ValidateTransfer(input TransferInput) error {
	var problems []string
	from := strings.TrimSpace(input.FromAccountID)
	to := strings.TrimSpace(input.ToAccountID)
	if from == "" {
		problems = append(problems, "source account id is required")
	}
	if to == "" {
		problems = append(problems, "destination account id is required")
	}
	if from != "" && input.FromAccountID == input.ToAccountID {
		problems = append(problems, "source and destination accounts cannot be the same")
	}
	switch {
	case !input.Amount.IsPositive():
		problems = append(problems, "amount must be a positive number")
	case !withinBounds(input.Amount):
		problems = append(problems, "amount is out of range")
	}
	return newValidationError(problems)
}

func newTransfer(id string, input TransferInput, createdAt time.Time) *Transfer {
	return &Transfer{
		id:            id,
		fromAccountID: input.FromAccountID,
		toAccountID:   input.ToAccountID,
		amount:        input.Amount,
		description:   input.Description,
		createdAt:     createdAt,
		status:        StatusPending,
	}
}

// ID returns the engine-generated identifier.
func (t *Transfer) ID() string {
	return t.id
}

// MarkCompleted moves a pending transfer to completed. It reports false
// when the transfer already reached a terminal state.
func (t *Transfer) MarkCompleted(at time.Time) bool {
	return t.finish(StatusCompleted, at)
}

// MarkFailed moves a pending transfer to failed. It reports false when the
// transfer already reached a terminal state.
func (t *Transfer) MarkFailed(at time.Time) bool {
	return t.finish(StatusFailed, at)
}

func (t *Transfer) finish(status TransferStatus, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusPending {
		return false
	}
	t.status = status
	t.completedAt = &at
	return true
}

// Status returns the current lifecycle state.
func (t *Transfer) Status() TransferStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Snapshot returns the current field values.
func (t *Transfer) Snapshot() TransferSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := TransferSnapshot{
		ID:            t.id,
		FromAccountID: t.fromAccountID,
		ToAccountID:   t.toAccountID,
		Amount:        t.amount,
		Description:   t.description,
		Status:        t.status,
		CreatedAt:     t.createdAt,
	}
	if t.completedAt != nil {
		completed := *t.completedAt
		snap.CompletedAt = &completed
	}
	return snap
}
