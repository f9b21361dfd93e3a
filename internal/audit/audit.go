// Package audit holds the append-only trail of actions taken against the
// ledger and the sinks that mirror it to other systems.
package audit

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Action identifies what happened to a transfer.
type Action string

const (
	ActionCreated   Action = "created"
	ActionCompleted Action = "completed"
	ActionFailed    Action = "failed"
)

// Entry is one audit record. Entries are never mutated once appended.
type Entry struct {
	ID            string          `json:"id"`
	TransferID    string          `json:"transferId"`
	FromAccountID string          `json:"fromAccountId"`
	ToAccountID   string          `json:"toAccountId"`
	Action        Action          `json:"action"`
	Amount        decimal.Decimal `json:"amount"`
	Timestamp     time.Time       `json:"timestamp"`
	Error         string          `json:"error,omitempty"`
}

// Log is a concurrency-safe append-only sequence of entries.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{}
}

// Append adds the entry at the end of the log.
func (l *Log) Append(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Entries returns a copy of every entry in append order.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// ForTransfer returns the entries recorded for one transfer, in append order.
func (l *Log) ForTransfer(transferID string) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, 0, 3)
	for _, e := range l.entries {
		if e.TransferID == transferID {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
