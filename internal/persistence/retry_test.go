package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/whiteboard/realtime/internal/document"
)

type flakyAdapter struct {
	failuresBeforeSuccess int
	calls                 int
}

func (f *flakyAdapter) Load(ctx context.Context, roomID string) (document.Document, error) {
	return document.Empty(), nil
}

func (f *flakyAdapter) Save(ctx context.Context, roomID string, doc document.Document) error {
	f.calls++
	if f.calls <= f.failuresBeforeSuccess {
		return errors.New("transient failure")
	}
	return nil
}

func TestRetryingSaverSucceedsWithoutRetry(t *testing.T) {
	adapter := &flakyAdapter{}
	saver := NewRetryingSaver(adapter, nil)

	if err := saver.Save(context.Background(), "room-1", document.Empty()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if adapter.calls != 1 {
		t.Fatalf("adapter.calls = %d, want 1", adapter.calls)
	}
}

// TestRetryingSaverAbortsOnContextCancellation checks that a cancelled
// context short-circuits the backoff wait rather than sleeping out the
// full schedule, without needing to wait for the schedule itself.
func TestRetryingSaverAbortsOnContextCancellation(t *testing.T) {
	adapter := &flakyAdapter{failuresBeforeSuccess: 99}
	saver := NewRetryingSaver(adapter, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := saver.Save(ctx, "room-1", document.Empty())
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Save() with an always-failing adapter: got nil error, want error")
	}
	if elapsed > 1*time.Second {
		t.Fatalf("Save() took %v to abort on a cancelled context, want well under the 1s backoff step", elapsed)
	}
}
