package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/untoldecay/LoomLog/internal/storage"
)

// writeAttempts bounds retries for statements that hit a transient lock.
const writeAttempts = 3

// writeBackoff is the initial sleep between attempts; it doubles each retry.
const writeBackoff = 25 * time.Millisecond

// writeOp is one queued write intent. The writer sends exactly one result
// on done.
type writeOp struct {
	fn   func(db *sql.DB) error
	done chan error
}

// enqueue pushes a write intent onto the queue and waits for the writer to
// execute it. Cancellation is honored both while the queue is full and while
// waiting for completion; a canceled waiter does not cancel the intent
// itself once queued.
func (s *SQLiteStorage) enqueue(ctx context.Context, fn func(db *sql.DB) error) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}

	op := writeOp{fn: fn, done: make(chan error, 1)}
	select {
	case s.queue <- op:
	case <-s.quit:
		return storage.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-op.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runWriter drains the write queue until Close. On shutdown it flushes
// whatever is already queued so accepted intents are not lost.
func (s *SQLiteStorage) runWriter() {
	defer close(s.writerDone)
	for {
		select {
		case op := <-s.queue:
			op.done <- s.execWrite(op.fn)
		case <-s.quit:
			for {
				select {
				case op := <-s.queue:
					op.done <- s.execWrite(op.fn)
				default:
					return
				}
			}
		}
	}
}

// execWrite runs one write intent, retrying lock conflicts with exponential
// backoff. Non-transient errors return immediately.
func (s *SQLiteStorage) execWrite(fn func(db *sql.DB) error) error {
	var err error
	for attempt := 0; attempt < writeAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(writeBackoff << (attempt - 1))
		}
		err = fn(s.db)
		if !isBusyError(err) {
			return err
		}
		s.warnf("write retry %d after lock conflict: %v", attempt+1, err)
	}
	return err
}
