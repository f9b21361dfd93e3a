package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/ledgercore/internal/audit"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	return NewEngine(append([]Option{WithClock(newStepClock().Now)}, opts...)...)
}

func mustCreateAccount(t *testing.T, e *Engine, id, balance string) {
	t.Helper()
	if _, err := e.CreateAccount(context.Background(), CreateAccountInput{ID: id, InitialBalance: decPtr(t, balance)}); err != nil {
		t.Fatalf("create account %s: %v", id, err)
	}
}

func balanceOf(t *testing.T, e *Engine, id string) decimal.Decimal {
	t.Helper()
	snap, err := e.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("get account %s: %v", id, err)
	}
	return snap.Balance
}

func TestEngine_TransferCompletes(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	mustCreateAccount(t, e, "A", "100")
	mustCreateAccount(t, e, "B", "0")

	res, err := e.CreateTransfer(ctx, TransferInput{FromAccountID: "A", ToAccountID: "B", Amount: dec(t, "40"), Description: "lunch"})
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}

	if res.Status != StatusCompleted {
		t.Fatalf("expected status completed, got %s", res.Status)
	}
	if res.CompletedAt == nil {
		t.Fatalf("expected completedAt to be set")
	}
	assertAmount(t, "60", balanceOf(t, e, "A"))
	assertAmount(t, "40", balanceOf(t, e, "B"))

	stored, err := e.GetTransfer(ctx, res.ID)
	if err != nil {
		t.Fatalf("get transfer: %v", err)
	}
	if stored.Status != StatusCompleted || stored.Description != "lunch" {
		t.Fatalf("unexpected stored transfer: %+v", stored)
	}

	entries := e.TransferAudit(res.ID)
	if len(entries) != 2 || entries[0].Action != audit.ActionCreated || entries[1].Action != audit.ActionCompleted {
		t.Fatalf("unexpected audit entries: %+v", entries)
	}
}

func TestEngine_InsufficientFundsFailsWithoutMutation(t *testing.T) {
	e := newTestEngine(t)
	mustCreateAccount(t, e, "A", "100")
	mustCreateAccount(t, e, "B", "0")

	res, err := e.CreateTransfer(context.Background(), TransferInput{FromAccountID: "A", ToAccountID: "B", Amount: dec(t, "150")})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if res.Status != StatusFailed {
		t.Fatalf("expected status failed, got %s", res.Status)
	}
	assertAmount(t, "100", balanceOf(t, e, "A"))
	assertAmount(t, "0", balanceOf(t, e, "B"))

	stored, err := e.GetTransfer(context.Background(), res.ID)
	if err != nil {
		t.Fatalf("failed transfer should be retained: %v", err)
	}
	if stored.Status != StatusFailed {
		t.Fatalf("expected stored status failed, got %s", stored.Status)
	}

	entries := e.TransferAudit(res.ID)
	if len(entries) != 2 || entries[1].Action != audit.ActionFailed || entries[1].Error != ErrInsufficientFunds.Error() {
		t.Fatalf("unexpected audit entries: %+v", entries)
	}
}

func TestEngine_InjectedFailureCompensates(t *testing.T) {
	e := newTestEngine(t)
	mustCreateAccount(t, e, "A", "100")
	mustCreateAccount(t, e, "B", "0")

	res, err := e.CreateTransfer(context.Background(), TransferInput{
		FromAccountID:     "A",
		ToAccountID:       "B",
		Amount:            dec(t, "30"),
		FailAfterMutation: true,
	})
	if err != ErrInjectedFailure {
		t.Fatalf("expected the injected failure unchanged, got %v", err)
	}
	if res.Status != StatusFailed {
		t.Fatalf("expected status failed, got %s", res.Status)
	}
	assertAmount(t, "100", balanceOf(t, e, "A"))
	assertAmount(t, "0", balanceOf(t, e, "B"))
}

func TestEngine_FailedCompensationKeepsOriginalError(t *testing.T) {
	var logs bytes.Buffer
	e := newTestEngine(t, WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))))
	mustCreateAccount(t, e, "A", "100")
	mustCreateAccount(t, e, "B", "0")

	// Move the credited funds out of B before the reverse debit runs.
	e.afterMutations = func(_, to *Account) {
		drain := to.Snapshot().Balance
		if _, err := to.Debit(drain); err != nil {
			t.Errorf("drain destination: %v", err)
		}
	}

	res, err := e.CreateTransfer(context.Background(), TransferInput{
		FromAccountID:     "A",
		ToAccountID:       "B",
		Amount:            dec(t, "30"),
		FailAfterMutation: true,
	})
	if err != ErrInjectedFailure {
		t.Fatalf("expected the injected failure unchanged, got %v", err)
	}
	if res.Status != StatusFailed {
		t.Fatalf("expected status failed, got %s", res.Status)
	}

	stored, err := e.GetTransfer(context.Background(), res.ID)
	if err != nil || stored.Status != StatusFailed {
		t.Fatalf("expected stored failed record, got %+v, %v", stored, err)
	}

	entries := e.TransferAudit(res.ID)
	last := entries[len(entries)-1]
	if last.Action != audit.ActionFailed {
		t.Fatalf("expected last audit action failed, got %s", last.Action)
	}
	if !strings.HasPrefix(last.Error, ErrInjectedFailure.Error()) || !strings.Contains(last.Error, "compensation:") {
		t.Fatalf("expected audit error to carry cause and compensation failure, got %q", last.Error)
	}

	// The source debit was still reversed; only the drained credit is lost.
	assertAmount(t, "100", balanceOf(t, e, "A"))
	assertAmount(t, "0", balanceOf(t, e, "B"))

	if !strings.Contains(logs.String(), `"level":"ERROR"`) || !strings.Contains(logs.String(), "ledger invariant violated") {
		t.Fatalf("expected an invariant violation logged at error, got %s", logs.String())
	}
}

func TestEngine_DuplicateAccount(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	if _, err := e.CreateAccount(ctx, CreateAccountInput{ID: "A"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := e.CreateAccount(ctx, CreateAccountInput{ID: "A"}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}
	if got := len(e.GetAccounts(ctx)); got != 1 {
		t.Fatalf("expected 1 account, got %d", got)
	}
}

func TestEngine_CreateAccountValidation(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.CreateAccount(context.Background(), CreateAccountInput{InitialBalance: decPtr(t, "-1")})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := len(e.GetAccounts(context.Background())); got != 0 {
		t.Fatalf("expected no accounts, got %d", got)
	}
}

func TestEngine_MissingAccountCreatesNoRecord(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	mustCreateAccount(t, e, "A", "100")

	_, err := e.CreateTransfer(ctx, TransferInput{FromAccountID: "A", ToAccountID: "ghost", Amount: dec(t, "10")})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err.Error() != "destination account ghost: not found" {
		t.Fatalf("expected error naming the destination, got %q", err.Error())
	}

	_, err = e.CreateTransfer(ctx, TransferInput{FromAccountID: "ghost", ToAccountID: "A", Amount: dec(t, "10")})
	if err == nil || err.Error() != "source account ghost: not found" {
		t.Fatalf("expected error naming the source, got %v", err)
	}

	if got := len(e.ListTransfers(ctx)); got != 0 {
		t.Fatalf("expected no transfer records, got %d", got)
	}
	if got := len(e.AuditTrail()); got != 0 {
		t.Fatalf("expected empty audit trail, got %d", got)
	}
	assertAmount(t, "100", balanceOf(t, e, "A"))
}

func TestEngine_SameAccountRejected(t *testing.T) {
	e := newTestEngine(t)
	mustCreateAccount(t, e, "A", "100")

	_, err := e.CreateTransfer(context.Background(), TransferInput{FromAccountID: "A", ToAccountID: "A", Amount: dec(t, "1")})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := len(e.ListTransfers(context.Background())); got != 0 {
		t.Fatalf("expected no transfer records, got %d", got)
	}
}

func TestEngine_LookupsAreIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	mustCreateAccount(t, e, "A", "10")
	mustCreateAccount(t, e, "B", "0")
	res, err := e.CreateTransfer(ctx, TransferInput{FromAccountID: "A", ToAccountID: "B", Amount: dec(t, "1")})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	first, _ := e.GetAccount(ctx, "A")
	second, _ := e.GetAccount(ctx, "A")
	if !first.Balance.Equal(second.Balance) || first.UpdatedAt != second.UpdatedAt {
		t.Fatalf("repeated account reads differ: %+v vs %+v", first, second)
	}

	t1, _ := e.GetTransfer(ctx, res.ID)
	t2, _ := e.GetTransfer(ctx, res.ID)
	if t1.Status != t2.Status || *t1.CompletedAt != *t2.CompletedAt {
		t.Fatalf("repeated transfer reads differ: %+v vs %+v", t1, t2)
	}

	if _, err := e.GetTransfer(ctx, "txn_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := e.GetAccount(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEngine_GetAccountsEmptyAndOrdered(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	accounts := e.GetAccounts(ctx)
	if accounts == nil || len(accounts) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", accounts)
	}

	for _, id := range []string{"c", "a", "b"} {
		mustCreateAccount(t, e, id, "0")
	}
	accounts = e.GetAccounts(ctx)
	for i, want := range []string{"c", "a", "b"} {
		if accounts[i].ID != want {
			t.Fatalf("expected account %d to be %s, got %s", i, want, accounts[i].ID)
		}
	}
}

func TestEngine_AccountTransfers(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	mustCreateAccount(t, e, "A", "100")
	mustCreateAccount(t, e, "B", "0")
	mustCreateAccount(t, e, "C", "0")

	for _, in := range []TransferInput{
		{FromAccountID: "A", ToAccountID: "B", Amount: dec(t, "10")},
		{FromAccountID: "A", ToAccountID: "C", Amount: dec(t, "10")},
		{FromAccountID: "B", ToAccountID: "C", Amount: dec(t, "5")},
	} {
		if _, err := e.CreateTransfer(ctx, in); err != nil {
			t.Fatalf("transfer %+v: %v", in, err)
		}
	}

	history, err := e.AccountTransfers(ctx, "B")
	if err != nil {
		t.Fatalf("account transfers: %v", err)
	}
	if len(history) != 2 || history[0].ToAccountID != "B" || history[1].FromAccountID != "B" {
		t.Fatalf("unexpected history for B: %+v", history)
	}

	if _, err := e.AccountTransfers(ctx, "Z"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	stats := e.Stats()
	if stats.Accounts != 3 || stats.Transfers != 3 || stats.Completed != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestEngine_AuditSinkReceivesEveryEntry(t *testing.T) {
	var mu sync.Mutex
	var got []audit.Entry
	sink := audit.SinkFunc(func(_ context.Context, entry audit.Entry) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, entry)
		return errors.New("sink unavailable")
	})

	e := newTestEngine(t, WithAuditSink(sink))
	mustCreateAccount(t, e, "A", "5")
	mustCreateAccount(t, e, "B", "0")
	if _, err := e.CreateTransfer(context.Background(), TransferInput{FromAccountID: "A", ToAccountID: "B", Amount: dec(t, "5")}); err != nil {
		t.Fatalf("sink errors must not fail a transfer: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	trail := e.AuditTrail()
	if len(got) != len(trail) || len(trail) != 2 {
		t.Fatalf("expected sink and trail to hold 2 entries, got %d and %d", len(got), len(trail))
	}
	for i := range trail {
		if got[i].ID != trail[i].ID {
			t.Fatalf("sink entry %d differs from trail", i)
		}
	}
}

func TestEngine_CustomIDGenerator(t *testing.T) {
	n := 0
	e := newTestEngine(t, WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("t-%d", n)
	}))
	mustCreateAccount(t, e, "A", "5")
	mustCreateAccount(t, e, "B", "0")

	res, err := e.CreateTransfer(context.Background(), TransferInput{FromAccountID: "A", ToAccountID: "B", Amount: dec(t, "1")})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if res.ID != "t-1" {
		t.Fatalf("expected id t-1, got %s", res.ID)
	}
}

func TestEngine_ConcurrentTransfersConserveTotal(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	mustCreateAccount(t, e, "A", "1000")
	mustCreateAccount(t, e, "B", "1000")

	const workers = 50
	amount := decimal.NewFromInt(7)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := TransferInput{FromAccountID: "A", ToAccountID: "B", Amount: amount}
			if i%2 == 1 {
				in.FromAccountID, in.ToAccountID = "B", "A"
			}
			if i%5 == 0 {
				in.FailAfterMutation = true
			}
			_, err := e.CreateTransfer(ctx, in)
			if err != nil && !errors.Is(err, ErrInjectedFailure) {
				t.Errorf("transfer %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	total := balanceOf(t, e, "A").Add(balanceOf(t, e, "B"))
	assertAmount(t, "2000", total)

	stats := e.Stats()
	if stats.Transfers != workers || stats.Pending != 0 || stats.Failed != workers/5 {
		t.Fatalf("unexpected stats after concurrency: %+v", stats)
	}
}

func TestEngine_ConcurrentDrainNeverOverdraws(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	mustCreateAccount(t, e, "A", "100")
	mustCreateAccount(t, e, "B", "0")

	const workers = 40
	var wg sync.WaitGroup
	var mu sync.Mutex
	completed := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.CreateTransfer(ctx, TransferInput{FromAccountID: "A", ToAccountID: "B", Amount: decimal.NewFromInt(10)})
			if err == nil {
				mu.Lock()
				completed++
				mu.Unlock()
			} else if !errors.Is(err, ErrInsufficientFunds) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if completed != 10 {
		t.Fatalf("expected exactly 10 completed transfers, got %d", completed)
	}
	assertAmount(t, "0", balanceOf(t, e, "A"))
	assertAmount(t, "100", balanceOf(t, e, "B"))
}
