// Package registry owns the mapping from room id to live Room: it
// creates a Room on first join (triggering cold-load), hands the same
// instance back to every concurrent caller, and destroys a Room once
// its member set goes empty.
package registry

import (
	"context"
	"log"
	"sync"

	"github.com/whiteboard/realtime/internal/document"
	"github.com/whiteboard/realtime/internal/persistence"
	"github.com/whiteboard/realtime/internal/room"
	"github.com/whiteboard/realtime/internal/roomerr"
	"github.com/whiteboard/realtime/internal/wire"
)

// entry tracks one room slot: the Room becomes non-nil and ready is
// closed only once cold-load has resolved. Concurrent GetOrCreate calls
// for a brand-new room id all block on ready rather than each starting
// their own cold-load: one load serves every joiner that arrives before
// it resolves.
type entry struct {
	ready chan struct{}
	room  *room.Room
}

// Registry is the single authority over which Rooms are currently live.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*entry

	saver     *persistence.RetryingSaver
	debounced *persistence.DebouncedSaver
	hMax      int
	logger    *log.Logger
}

// Config bundles the tunables the registry needs to seed new Rooms.
type Config struct {
	HistoryMax int
	Logger     *log.Logger
}

// New creates a Registry backed by the given persistence adapter.
func New(adapter persistence.Adapter, cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	saver := persistence.NewRetryingSaver(adapter, cfg.Logger)
	return &Registry{
		rooms:     make(map[string]*entry),
		saver:     saver,
		debounced: persistence.NewDebouncedSaver(saver, cfg.Logger),
		hMax:      cfg.HistoryMax,
		logger:    cfg.Logger,
	}
}

// GetOrCreate returns the live Room for id, creating and cold-loading
// it if this is the first caller to ask for it.
func (reg *Registry) GetOrCreate(ctx context.Context, id string) *room.Room {
	reg.mu.Lock()
	if e, ok := reg.rooms[id]; ok {
		reg.mu.Unlock()
		<-e.ready
		return e.room
	}

	e := &entry{ready: make(chan struct{})}
	reg.rooms[id] = e
	reg.mu.Unlock()

	seed, loadFailed := reg.coldLoad(ctx, id)
	e.room = room.New(id, seed, reg.hMax, loadFailed, reg.logger)
	close(e.ready)
	return e.room
}

// coldLoad fetches the persisted document for id. A clean "not found"
// (nothing ever saved) yields an empty document and is not a failure.
// Any other error — including a timeout — is a PersistenceLoadFailure:
// it yields an empty document too, but the room is marked never-loaded
// so a first save cannot silently overwrite data that may still exist.
func (reg *Registry) coldLoad(ctx context.Context, id string) (document.Document, bool) {
	doc, err := reg.saver.Load(ctx, id)
	if err == nil {
		return doc, false
	}
	if err == roomerr.NotFound {
		return document.Empty(), false
	}
	reg.logger.Printf("registry: cold-load failed for room %s, starting empty and refusing saves: %v", id, err)
	return document.Empty(), true
}

// Get returns the live Room for id without creating one, or nil.
func (reg *Registry) Get(id string) *room.Room {
	reg.mu.Lock()
	e, ok := reg.rooms[id]
	reg.mu.Unlock()
	if !ok {
		return nil
	}
	<-e.ready
	return e.room
}

// Release removes sessionID from room id's member set. If that empties
// the room, a final save is scheduled (best effort) and the room is
// removed from the registry.
func (reg *Registry) Release(ctx context.Context, id, sessionID string) {
	reg.mu.Lock()
	e, ok := reg.rooms[id]
	reg.mu.Unlock()
	if !ok {
		return
	}
	<-e.ready

	empty, _ := e.room.Leave(sessionID)
	if !empty {
		return
	}

	if doc, ok := e.room.DirtySnapshot(); ok {
		reg.debounced.Enqueue(ctx, id, doc)
	}

	reg.mu.Lock()
	delete(reg.rooms, id)
	reg.mu.Unlock()
}

// HandleExternalDelete relays a delete notification from the persistence
// layer to every member of the room, then tears the
// room down without a final save (the document is gone on the store
// side already). It is a no-op if the room is not currently live.
func (reg *Registry) HandleExternalDelete(id string) {
	reg.mu.Lock()
	e, ok := reg.rooms[id]
	if ok {
		delete(reg.rooms, id)
	}
	reg.mu.Unlock()
	if !ok {
		return
	}
	<-e.ready

	payload, err := wire.Encode(wire.KindRoomDeleted, id)
	if err != nil {
		reg.logger.Printf("registry: encode room-deleted for %s: %v", id, err)
		return
	}
	e.room.Broadcast(payload)
}

// RoomIDs returns the ids of every currently-live room, for the
// periodic persistence tick (internal/compaction) to scan for dirty
// snapshots.
func (reg *Registry) RoomIDs() []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	ids := make([]string, 0, len(reg.rooms))
	for id, e := range reg.rooms {
		select {
		case <-e.ready:
			ids = append(ids, id)
		default:
			// still cold-loading; skip it this tick
		}
	}
	return ids
}

// SaveDirty takes a dirty snapshot of room id (if any) and schedules it
// through the debounced saver. It is the periodic tick's per-room call.
func (reg *Registry) SaveDirty(ctx context.Context, id string) {
	r := reg.Get(id)
	if r == nil {
		return
	}
	if doc, ok := r.DirtySnapshot(); ok {
		reg.debounced.Enqueue(ctx, id, doc)
	}
}

// RoomCount reports how many rooms are currently live, for /health.
func (reg *Registry) RoomCount() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// EvictEmpty tears down any currently-live room that has zero members,
// scheduling a final save first. Release already does this on the leave
// that empties a room; this is the safety net for a room left behind by
// a leave that never resolved (a crashed transport that skipped
// Disconnect) and is meant to be called from the periodic tick
// alongside SaveDirty, not from the request path.
func (reg *Registry) EvictEmpty(ctx context.Context) {
	reg.mu.Lock()
	ids := make([]string, 0, len(reg.rooms))
	for id, e := range reg.rooms {
		select {
		case <-e.ready:
			ids = append(ids, id)
		default:
		}
	}
	reg.mu.Unlock()

	for _, id := range ids {
		reg.mu.Lock()
		e, ok := reg.rooms[id]
		reg.mu.Unlock()
		if !ok {
			continue
		}
		if e.room.MemberCount() != 0 {
			continue
		}

		if doc, ok := e.room.DirtySnapshot(); ok {
			reg.debounced.Enqueue(ctx, id, doc)
		}

		reg.mu.Lock()
		delete(reg.rooms, id)
		reg.mu.Unlock()
	}
}
