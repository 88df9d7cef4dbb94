// Package room holds the authoritative per-room state: the current
// document, a bounded history stack for undo/redo, the member set, and
// the serialization lock that makes every operation linearizable.
//
// Sessions never touch a Room's history or members directly — they
// submit intent through the methods below, each of which runs under
// the Room's exclusive lock, then publishes the result to every member.
// Each Room owns a single exclusive lock, and every operation here runs
// under it: a cursor into a bounded stack of immutable Document frames.
package room

import (
	"log"
	"sync"
	"time"

	"github.com/whiteboard/realtime/internal/document"
	"github.com/whiteboard/realtime/internal/idgen"
	"github.com/whiteboard/realtime/internal/roomerr"
	"github.com/whiteboard/realtime/internal/wire"
)

// Member is the subset of session.Session a Room needs: an id to key
// the member set by, a non-blocking Send used for every broadcast, and
// a Disconnect a Room can call when Send reports overflow.
type Member interface {
	ID() string
	Send(msg []byte) bool
	Disconnect()
}

// DefaultHistoryMax is H_MAX, the cap on retained history frames.
const DefaultHistoryMax = 100

// Room is the authoritative state container for one whiteboard.
type Room struct {
	id string

	mu          sync.Mutex
	history     []document.Document
	cursor      int
	members     map[string]Member
	dirtySince  *time.Time
	neverLoaded bool
	counter     int64
	hMax        int

	logger *log.Logger
}

// New creates a Room seeded with the given frame (the result of a
// cold-load, or an empty Document if the load failed or nothing was on
// record). loadFailed marks the room as never-loaded so a later save
// cannot silently overwrite data that may exist.
func New(id string, seed document.Document, hMax int, loadFailed bool, logger *log.Logger) *Room {
	if hMax < 1 {
		hMax = DefaultHistoryMax
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Room{
		id:          id,
		history:     []document.Document{seed},
		cursor:      0,
		members:     make(map[string]Member),
		neverLoaded: loadFailed,
		hMax:        hMax,
		logger:      logger,
	}
}

// ID returns the room's stable identifier.
func (r *Room) ID() string { return r.id }

// Join adds session to the member set and returns the current document
// plus undo/redo flags the joining client needs, and the full member
// list for the presence "members" broadcast. Join itself sends the
// members broadcast to everyone; the snapshot+flags are handed back for
// the router to address to the joining session alone.
func (r *Room) Join(m Member) (snapshot document.Document, canUndo, canRedo bool, members []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.members[m.ID()] = m
	snapshot = r.history[r.cursor]
	canUndo, canRedo = r.undoRedoFlags()
	members = r.memberIDsLocked()

	r.broadcastMembersLocked()
	return snapshot, canUndo, canRedo, members
}

// Leave removes session from the member set. It returns whether the
// room is now empty (the registry should schedule a final save and
// destroy it) and the remaining member list for the presence broadcast.
func (r *Room) Leave(sessionID string) (empty bool, members []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[sessionID]; !ok {
		return len(r.members) == 0, r.memberIDsLocked()
	}
	delete(r.members, sessionID)
	r.broadcastMembersLocked()
	return len(r.members) == 0, r.memberIDsLocked()
}

// Broadcast sends an already-encoded payload to every current member.
// It exists for the registry to relay a room-deleted notification
// without reaching into Room internals.
func (r *Room) Broadcast(payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, m := range r.members {
		if !m.Send(payload) {
			r.logger.Printf("room %s: member %s outbound queue overflow, disconnecting", r.id, id)
			m.Disconnect()
		}
	}
}

// MemberCount reports how many sessions currently belong to this room.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// CreateElement assigns a server id and a monotonic created_at to spec,
// appends it to the current document, pushes the result as a new
// history frame (truncating any redo tail first), and broadcasts the
// new state to every member including the author. author is always the
// creating session's own id, never supplied by the client.
func (r *Room) CreateElement(spec document.CreateSpec, author string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counter++
	createdAt := r.counter
	id := idgen.New()

	switch spec.Kind {
	case document.KindStroke:
		s := *spec.Stroke
		s.ID, s.Author, s.CreatedAt = id, author, createdAt
		spec.Stroke = &s
	case document.KindShape:
		s := *spec.Shape
		s.ID, s.Author, s.CreatedAt = id, author, createdAt
		spec.Shape = &s
	case document.KindText:
		t := *spec.Text
		t.ID, t.Author, t.CreatedAt = id, author, createdAt
		spec.Text = &t
	}

	next, err := document.AddElement(r.history[r.cursor], spec)
	if err != nil {
		// AddElement only fails on a duplicate id, which cannot happen
		// for a freshly-minted uuid; treat it as the mutation-failed
		// case anyway and refuse to push a frame.
		return err
	}

	r.pushFrameLocked(next)
	r.broadcastStateLocked()
	return nil
}

// DeleteElement removes the element of the given id from the current
// document. Deleting an id that is not present is a no-op: no new
// frame is pushed and nothing is broadcast.
func (r *Room) DeleteElement(elementID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, changed := document.RemoveElement(r.history[r.cursor], elementID)
	if !changed {
		return
	}
	r.pushFrameLocked(next)
	r.broadcastStateLocked()
}

// Undo moves the cursor back one frame if possible. It never truncates
// history — a following Redo can always restore the frame undone here.
func (r *Room) Undo() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cursor == 0 {
		return
	}
	r.cursor--
	r.markDirtyLocked()
	r.broadcastStateLocked()
}

// Redo moves the cursor forward one frame if a redo tail exists.
func (r *Room) Redo() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cursor >= len(r.history)-1 {
		return
	}
	r.cursor++
	r.markDirtyLocked()
	r.broadcastStateLocked()
}

// RelayCursor forwards a presence cursor update to every member except
// the sender. It never touches history or the dirty flag. If sender is
// not currently a member, the update is dropped silently.
func (r *Room) RelayCursor(sender string, x, y float64, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[sender]; !ok {
		return
	}
	payload, err := wire.Encode(wire.KindRemoteCursor, wire.RemoteCursorData{
		SessionID: sender, X: x, Y: y, Label: label,
	})
	if err != nil {
		r.logger.Printf("room %s: encode remote-cursor: %v", r.id, err)
		return
	}
	r.sendToOthersLocked(sender, payload)
}

// RelayCursorLeave tells every other member that sender's cursor is gone.
func (r *Room) RelayCursorLeave(sender string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[sender]; !ok {
		return
	}
	payload, err := wire.Encode(wire.KindRemoteCursorLeave, wire.RemoteCursorLeaveData{SessionID: sender})
	if err != nil {
		r.logger.Printf("room %s: encode remote-cursor-leave: %v", r.id, err)
		return
	}
	r.sendToOthersLocked(sender, payload)
}

// DirtySnapshot returns the current frame and true if the room has
// mutated since the last snapshot DirtySnapshot handed out and is
// allowed to save (it has not been flagged never-loaded). The dirty
// flag is cleared as part of taking the snapshot, not when the write
// succeeds: a failed save is retried by the persistence adapter itself
// (internal/persistence), and a save that still fails after those
// retries is not attempted again until the room mutates again.
func (r *Room) DirtySnapshot() (document.Document, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dirtySince == nil {
		return document.Document{}, false
	}
	if r.neverLoaded {
		r.logger.Printf("room %s: %v", r.id, roomerr.SaveRefused)
		return document.Document{}, false
	}
	snapshot := r.history[r.cursor]
	r.dirtySince = nil
	return snapshot, true
}

// MarkSaveRefused flags a room as never-loaded, so DirtySnapshot refuses
// to hand out snapshots to save until ClearSaveRefusal is called. It
// sets the same flag that New's loadFailed argument sets when a
// cold-load fails, so an empty in-memory document can never silently
// overwrite data that may still exist in the store.
func (r *Room) MarkSaveRefused() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.neverLoaded = true
}

// ClearSaveRefusal is the operator escape hatch for a room stuck in
// save-refused state after a transient cold-load failure. It is a
// Go-level call only; nothing on the wire exposes it.
func (r *Room) ClearSaveRefusal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.neverLoaded = false
}

// HistoryLen reports how many frames are currently retained. Exposed
// for tests asserting the 1 ≤ len ≤ H_MAX invariant.
func (r *Room) HistoryLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history)
}

// Cursor reports the current cursor position, for tests.
func (r *Room) Cursor() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// pushFrameLocked implements the history discipline: discard the redo
// tail, append next, move the cursor to it, then trim from the front if
// the cap was exceeded. Callers must hold r.mu.
func (r *Room) pushFrameLocked(next document.Document) {
	r.history = append(r.history[:r.cursor+1:r.cursor+1], next)
	r.cursor = len(r.history) - 1

	if len(r.history) > r.hMax {
		r.history = r.history[1:]
		r.cursor--
	}
	r.markDirtyLocked()
}

func (r *Room) markDirtyLocked() {
	now := time.Now()
	r.dirtySince = &now
}

func (r *Room) undoRedoFlags() (canUndo, canRedo bool) {
	return r.cursor > 0, r.cursor < len(r.history)-1
}

func (r *Room) memberIDsLocked() []string {
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return ids
}

// broadcastStateLocked sends the state-update payload to every member,
// including whoever triggered the mutation, so all members converge on
// the same visible state. A member whose queue is full is disconnected;
// the operation itself never fails because of it.
func (r *Room) broadcastStateLocked() {
	canUndo, canRedo := r.undoRedoFlags()
	payload, err := wire.Encode(wire.KindStateUpdate, wire.StateUpdateData{
		Document: r.history[r.cursor],
		CanUndo:  canUndo,
		CanRedo:  canRedo,
	})
	if err != nil {
		r.logger.Printf("room %s: encode state-update: %v", r.id, err)
		return
	}
	for id, m := range r.members {
		if !m.Send(payload) {
			r.logger.Printf("room %s: member %s outbound queue overflow, disconnecting", r.id, id)
			m.Disconnect()
		}
	}
}

func (r *Room) broadcastMembersLocked() {
	payload, err := wire.Encode(wire.KindMembers, wire.MembersData{Members: r.memberIDsLocked()})
	if err != nil {
		r.logger.Printf("room %s: encode members: %v", r.id, err)
		return
	}
	for id, m := range r.members {
		if !m.Send(payload) {
			r.logger.Printf("room %s: member %s outbound queue overflow, disconnecting", r.id, id)
			m.Disconnect()
		}
	}
}

func (r *Room) sendToOthersLocked(sender string, payload []byte) {
	for id, m := range r.members {
		if id == sender {
			continue
		}
		if !m.Send(payload) {
			r.logger.Printf("room %s: member %s outbound queue overflow, disconnecting", r.id, id)
			m.Disconnect()
		}
	}
}
