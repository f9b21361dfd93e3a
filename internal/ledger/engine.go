package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/ledgercore/internal/audit"
)

// Stats summarises the engine state.
type Stats struct {
	Accounts  int `json:"accounts"`
	Transfers int `json:"transfers"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger used for transfer failures and sink errors.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithAuditSink mirrors every audit entry to sink in addition to the
// in-memory trail.
func WithAuditSink(sink audit.Sink) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithIDGenerator overrides how transfer identifiers are allocated.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// Engine owns every account, transfer record and the audit trail. The maps
// are guarded by mu; balances are guarded by each account's own lock, and the
// engine never holds more than one account lock at a time.
type Engine struct {
	mu            sync.RWMutex
	accounts      map[string]*Account
	accountOrder  []*Account
	transfers     map[string]*Transfer
	transferOrder []*Transfer

	trail  *audit.Log
	sink   audit.Sink
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	// afterMutations runs between the mutation pair and the outcome check.
	afterMutations func(from, to *Account)
}

// NewEngine constructs an empty ledger.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		accounts:  make(map[string]*Account),
		transfers: make(map[string]*Transfer),
		trail:     audit.NewLog(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       utcNow,
		newID:     newTransferID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func newTransferID() string {
	return "txn_" + uuid.NewString()
}

// CreateAccount opens an account and returns its snapshot.
func (e *Engine) CreateAccount(_ context.Context, input CreateAccountInput) (AccountSnapshot, error) {
	account, err := NewAccount(input, e.now)
	if err != nil {
		return AccountSnapshot{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.accounts[input.ID]; exists {
		return AccountSnapshot{}, fmt.Errorf("account %s: %w", input.ID, ErrAlreadyExists)
	}
	e.accounts[input.ID] = account
	e.accountOrder = append(e.accountOrder, account)
	return account.Snapshot(), nil
}

// GetAccount returns the snapshot of one account.
func (e *Engine) GetAccount(_ context.Context, id string) (AccountSnapshot, error) {
	account, ok := e.account(id)
	if !ok {
		return AccountSnapshot{}, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	return account.Snapshot(), nil
}

// GetAccounts returns every account in creation order. It never fails; an
// empty ledger yields an empty slice.
func (e *Engine) GetAccounts(_ context.Context) []AccountSnapshot {
	e.mu.RLock()
	accounts := make([]*Account, len(e.accountOrder))
	copy(accounts, e.accountOrder)
	e.mu.RUnlock()

	out := make([]AccountSnapshot, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.Snapshot())
	}
	return out
}

// GetTransfer returns the snapshot of one transfer record.
func (e *Engine) GetTransfer(_ context.Context, id string) (TransferSnapshot, error) {
	e.mu.RLock()
	t, ok := e.transfers[id]
	e.mu.RUnlock()
	if !ok {
		return TransferSnapshot{}, fmt.Errorf("transfer %s: %w", id, ErrNotFound)
	}
	return t.Snapshot(), nil
}

// ListTransfers returns every transfer record in creation order.
func (e *Engine) ListTransfers(_ context.Context) []TransferSnapshot {
	return e.collectTransfers(func(*Transfer) bool { return true })
}

// AccountTransfers returns the transfers where the account is the source or
// the destination, in creation order.
func (e *Engine) AccountTransfers(_ context.Context, accountID string) ([]TransferSnapshot, error) {
	if _, ok := e.account(accountID); !ok {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	return e.collectTransfers(func(t *Transfer) bool {
		return t.fromAccountID == accountID || t.toAccountID == accountID
	}), nil
}

// AuditTrail returns a copy of every audit entry in append order.
func (e *Engine) AuditTrail() []audit.Entry {
	return e.trail.Entries()
}

// TransferAudit returns the audit entries of one transfer.
func (e *Engine) TransferAudit(transferID string) []audit.Entry {
	return e.trail.ForTransfer(transferID)
}

// Stats counts accounts and transfers by status.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	transfers := make([]*Transfer, len(e.transferOrder))
	copy(transfers, e.transferOrder)
	stats := Stats{Accounts: len(e.accounts), Transfers: len(transfers)}
	e.mu.RUnlock()

	for _, t := range transfers {
		switch t.Status() {
		case StatusPending:
			stats.Pending++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats
}

// CreateTransfer validates the request, debits the source, credits the
// destination and finalises the record. When any step after the record is
// stored fails, the mutations that applied are reversed in reverse order,
// the record is marked failed and the triggering error is returned
// unchanged alongside the failed snapshot.
//
// Validation and account resolution failures return before any record is
// created or any balance touched.
func (e *Engine) CreateTransfer(ctx context.Context, input TransferInput) (TransferSnapshot, error) {
	if err := ValidateTransfer(input); err != nil {
		return TransferSnapshot{}, err
	}

	from, ok := e.account(input.FromAccountID)
	if !ok {
		return TransferSnapshot{}, fmt.Errorf("source account %s: %w", input.FromAccountID, ErrNotFound)
	}
	to, ok := e.account(input.ToAccountID)
	if !ok {
		return TransferSnapshot{}, fmt.Errorf("destination account %s: %w", input.ToAccountID, ErrNotFound)
	}

	t := newTransfer(e.newID(), input, e.now())
	e.mu.Lock()
	e.transfers[t.id] = t
	e.transferOrder = append(e.transferOrder, t)
	e.mu.Unlock()
	e.record(ctx, t, audit.ActionCreated, "")

	amount := input.Amount
	var debited, credited bool

	_, cause := from.Debit(amount)
	if cause == nil {
		debited = true
		_, cause = to.Credit(amount)
		credited = cause == nil
	}
	if e.afterMutations != nil {
		e.afterMutations(from, to)
	}
	if cause == nil && input.FailAfterMutation {
		cause = ErrInjectedFailure
	}

	if cause == nil {
		t.MarkCompleted(e.now())
		e.record(ctx, t, audit.ActionCompleted, "")
		return t.Snapshot(), nil
	}

	detail := cause.Error()
	if err := e.compensate(from, to, amount, debited, credited); err != nil {
		e.logger.Error("transfer compensation failed, ledger invariant violated",
			slog.String("transfer_id", t.id),
			slog.String("from_account_id", from.ID()),
			slog.String("to_account_id", to.ID()),
			slog.String("amount", amount.String()),
			slog.Any("cause", cause),
			slog.Any("error", err),
		)
		detail += "; compensation: " + err.Error()
	}

	t.MarkFailed(e.now())
	e.record(ctx, t, audit.ActionFailed, detail)
	e.logger.Warn("transfer failed",
		slog.String("transfer_id", t.id),
		slog.String("from_account_id", from.ID()),
		slog.String("to_account_id", to.ID()),
		slog.String("amount", amount.String()),
		slog.Bool("debit_reversed", debited),
		slog.Bool("credit_reversed", credited),
		slog.Any("error", cause),
	)
	return t.Snapshot(), cause
}

// compensate reverses the applied mutations, credit first.
func (e *Engine) compensate(from, to *Account, amount decimal.Decimal, debited, credited bool) error {
	var errs []error
	if credited {
		if _, err := to.Debit(amount); err != nil {
			errs = append(errs, fmt.Errorf("reverse credit on %s: %w", to.ID(), err))
		}
	}
	if debited {
		if _, err := from.Credit(amount); err != nil {
			errs = append(errs, fmt.Errorf("reverse debit on %s: %w", from.ID(), err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) account(id string) (*Account, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.accounts[id]
	return a, ok
}

func (e *Engine) collectTransfers(keep func(*Transfer) bool) []TransferSnapshot {
	e.mu.RLock()
	transfers := make([]*Transfer, len(e.transferOrder))
	copy(transfers, e.transferOrder)
	e.mu.RUnlock()

	out := make([]TransferSnapshot, 0, len(transfers))
	for _, t := range transfers {
		if keep(t) {
			out = append(out, t.Snapshot())
		}
	}
	return out
}

func (e *Engine) record(ctx context.Context, t *Transfer, action audit.Action, detail string) {
	entry := audit.Entry{
		ID:            uuid.NewString(),
		TransferID:    t.id,
		FromAccountID: t.fromAccountID,
		ToAccountID:   t.toAccountID,
		Action:        action,
		Amount:        t.amount,
		Timestamp:     e.now(),
		Error:         detail,
	}
	e.trail.Append(entry)

	if e.sink == nil {
		return
	}
	if err := e.sink.Record(ctx, entry); err != nil {
		e.logger.Warn("audit sink rejected entry",
			slog.String("audit_id", entry.ID),
			slog.String("transfer_id", entry.TransferID),
			slog.Any("error", err),
		)
	}
}
