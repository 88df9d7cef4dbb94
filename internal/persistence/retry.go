package persistence

import (
	"context"
	"log"
	"time"

	"github.com/whiteboard/realtime/internal/document"
)

// backoffSchedule is the save retry schedule: exponential backoff
// 1s → 2s → 4s → 8s, capped at 4 retries.
var backoffSchedule = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}

// DefaultLoadTimeout is the cold-load timeout; a load that exceeds it is
// treated as a PersistenceLoadFailure.
const DefaultLoadTimeout = 5 * time.Second

// DefaultSaveTimeout bounds a single save attempt (not the whole retry
// sequence).
const DefaultSaveTimeout = 10 * time.Second

// RetryingSaver wraps an Adapter and retries Save on failure with the
// backoff schedule above before giving up and logging a save failure.
// Room state is never rolled back on exhaustion
// — the caller continues operating, and the room's next mutation marks
// it dirty so a later tick saves again.
type RetryingSaver struct {
	adapter Adapter
	logger  *log.Logger
}

// NewRetryingSaver wraps adapter with the standard retry schedule.
func NewRetryingSaver(adapter Adapter, logger *log.Logger) *RetryingSaver {
	if logger == nil {
		logger = log.Default()
	}
	return &RetryingSaver{adapter: adapter, logger: logger}
}

// Save attempts adapter.Save up to len(backoffSchedule)+1 times, sleeping
// the corresponding backoff between attempts. It returns the last error
// if every attempt failed; the caller logs that as a permanent
// PersistenceSaveFailure and continues — Room state is never rolled back.
func (s *RetryingSaver) Save(ctx context.Context, roomID string, doc document.Document) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		saveCtx, cancel := context.WithTimeout(ctx, DefaultSaveTimeout)
		err := s.adapter.Save(saveCtx, roomID, doc)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt >= len(backoffSchedule) {
			return lastErr
		}
		s.logger.Printf("persistence: save %s failed (attempt %d), retrying in %v: %v",
			roomID, attempt+1, backoffSchedule[attempt], err)

		select {
		case <-time.After(backoffSchedule[attempt]):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Load delegates to the wrapped adapter with a bounded timeout. A
// timeout or any other error is the caller's signal to treat this as a
// PersistenceLoadFailure: proceed with an empty document and refuse
// saves until cleared (see the cold-load open question).
func (s *RetryingSaver) Load(ctx context.Context, roomID string) (document.Document, error) {
	loadCtx, cancel := context.WithTimeout(ctx, DefaultLoadTimeout)
	defer cancel()
	return s.adapter.Load(loadCtx, roomID)
}
