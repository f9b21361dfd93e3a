package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const deliveryTimeout = 5 * time.Second

var (
	// ErrSinkClosed is returned by AsyncSink.Record after Close.
	ErrSinkClosed = errors.New("audit sink closed")

	// ErrBufferFull is returned when an entry is dropped because the buffer is full.
	ErrBufferFull = errors.New("audit buffer full")
)

// AsyncSink delivers entries to another sink from a background goroutine so
// slow downstream systems never stall the caller.
type AsyncSink struct {
	next   Sink
	logger *slog.Logger

	mu      sync.RWMutex
	closed  bool
	entries chan Entry

	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Int64
}

// NewAsyncSink starts the delivery goroutine. buffer bounds the number of
// entries waiting for delivery.
func NewAsyncSink(next Sink, buffer int, logger *slog.Logger) *AsyncSink {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &AsyncSink{
		next:    next,
		logger:  logger,
		entries: make(chan Entry, buffer),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Record enqueues the entry without blocking.
func (s *AsyncSink) Record(_ context.Context, entry Entry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.entries <- entry:
		return nil
	default:
		s.dropped.Add(1)
		return ErrBufferFull
	}
}

// Dropped returns how many entries were discarded because the buffer was full.
func (s *AsyncSink) Dropped() int64 {
	return s.dropped.Load()
}

// Close stops accepting entries and waits until the queued ones are delivered
// or ctx expires.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.entries)
		s.mu.Unlock()
	})
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for entry := range s.entries {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		if err := s.next.Record(ctx, entry); err != nil {
			s.logger.Warn("audit delivery failed",
				slog.String("audit_id", entry.ID),
				slog.String("transfer_id", entry.TransferID),
				slog.Any("error", err),
			)
		}
		cancel()
	}
}
