package ledger

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// stepClock advances one second on every reading so timestamps are ordered.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func decPtr(t *testing.T, s string) *decimal.Decimal {
	t.Helper()
	d := dec(t, s)
	return &d
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	if !got.Equal(dec(t, want)) {
		t.Fatalf("expected amount %s, got %s", want, got.String())
	}
}
