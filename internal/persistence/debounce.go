package persistence

import (
	"context"
	"log"
	"sync"

	"github.com/whiteboard/realtime/internal/document"
)

// DebouncedSaver enforces a write-coalescing rule: at most one save
// per room in flight at a time. If a second Enqueue arrives for a
// room whose save is still running, its document replaces any already-
// pending snapshot rather than starting a second concurrent save; once
// the in-flight save resolves, the most recent pending snapshot (if
// any) is saved next.
type DebouncedSaver struct {
	saver  *RetryingSaver
	logger *log.Logger

	mu       sync.Mutex
	inFlight map[string]bool
	pending  map[string]document.Document
}

// NewDebouncedSaver wraps saver with per-room coalescing.
func NewDebouncedSaver(saver *RetryingSaver, logger *log.Logger) *DebouncedSaver {
	if logger == nil {
		logger = log.Default()
	}
	return &DebouncedSaver{
		saver:    saver,
		logger:   logger,
		inFlight: make(map[string]bool),
		pending:  make(map[string]document.Document),
	}
}

// Enqueue schedules doc to be saved for roomID. It returns immediately;
// the save (and any retries) run on a background goroutine.
func (d *DebouncedSaver) Enqueue(ctx context.Context, roomID string, doc document.Document) {
	d.mu.Lock()
	if d.inFlight[roomID] {
		d.pending[roomID] = doc
		d.mu.Unlock()
		return
	}
	d.inFlight[roomID] = true
	d.mu.Unlock()

	go d.run(ctx, roomID, doc)
}

func (d *DebouncedSaver) run(ctx context.Context, roomID string, doc document.Document) {
	for {
		if err := d.saver.Save(ctx, roomID, doc); err != nil {
			d.logger.Printf("persistence: giving up on save for room %s after retries: %v", roomID, err)
		}

		d.mu.Lock()
		next, ok := d.pending[roomID]
		if ok {
			delete(d.pending, roomID)
			d.mu.Unlock()
			doc = next
			continue
		}
		d.inFlight[roomID] = false
		d.mu.Unlock()
		return
	}
}
