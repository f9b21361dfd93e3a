package audit

import (
	"context"
	"errors"
	"log/slog"
)

// Sink mirrors audit entries to a downstream system.
type Sink interface {
	Record(ctx context.Context, entry Entry) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, entry Entry) error

// Record calls f.
func (f SinkFunc) Record(ctx context.Context, entry Entry) error {
	return f(ctx, entry)
}

// LoggerSink writes entries to a structured logger.
type LoggerSink struct {
	logger *slog.Logger
}

// NewLoggerSink constructs a sink that logs each entry at info level.
func NewLoggerSink(logger *slog.Logger) *LoggerSink {
	return &LoggerSink{logger: logger}
}

// Record writes the entry to the logger.
func (s *LoggerSink) Record(ctx context.Context, entry Entry) error {
	if s == nil || s.logger == nil {
		return nil
	}
	attrs := []slog.Attr{
		slog.String("audit_id", entry.ID),
		slog.String("transfer_id", entry.TransferID),
		slog.String("from_account_id", entry.FromAccountID),
		slog.String("to_account_id", entry.ToAccountID),
		slog.String("action", string(entry.Action)),
		slog.String("amount", entry.Amount.String()),
	}
	if entry.Error != "" {
		attrs = append(attrs, slog.String("error", entry.Error))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "ledger.audit", attrs...)
	return nil
}

// MultiSink fans an entry out to every sink and joins their errors.
type MultiSink []Sink

// Record forwards the entry to each non-nil sink.
func (m MultiSink) Record(ctx context.Context, entry Entry) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
