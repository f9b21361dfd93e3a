package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS ledger_audit (
        id              TEXT PRIMARY KEY,
        transfer_id     TEXT NOT NULL,
        from_account_id TEXT NOT NULL,
        to_account_id   TEXT NOT NULL,
        action          TEXT NOT NULL,
        amount          NUMERIC NOT NULL,
        error           TEXT,
        recorded_at     TIMESTAMPTZ NOT NULL
    )`

	createIndexSQL = `CREATE INDEX IF NOT EXISTS ledger_audit_transfer_idx ON ledger_audit (transfer_id)`

	insertEntrySQL = `INSERT INTO ledger_audit
        (id, transfer_id, from_account_id, to_account_id, action, amount, error, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7, $8)
        ON CONFLICT (id) DO NOTHING`
)

// Execer is the subset of *pgxpool.Pool the Postgres sink needs.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PostgresSink copies audit entries into the ledger_audit table. The table is
// an export for observability; the ledger never reads it back.
type PostgresSink struct {
	db Execer
}

// NewPostgresSink constructs a sink writing through db.
func NewPostgresSink(db Execer) *PostgresSink {
	return &PostgresSink{db: db}
}

// EnsureSchema creates the audit table and its index when missing.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create audit table: %w", err)
	}
	if _, err := s.db.Exec(ctx, createIndexSQL); err != nil {
		return fmt.Errorf("create audit index: %w", err)
	}
	return nil
}

// Record inserts the entry. Replays of the same entry id are ignored.
func (s *PostgresSink) Record(ctx context.Context, entry Entry) error {
	var errText *string
	if entry.Error != "" {
		errText = &entry.Error
	}
	_, err := s.db.Exec(ctx, insertEntrySQL,
		entry.ID,
		entry.TransferID,
		entry.FromAccountID,
		entry.ToAccountID,
		string(entry.Action),
		entry.Amount.String(),
		errText,
		entry.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry %s: %w", entry.ID, err)
	}
	return nil
}
