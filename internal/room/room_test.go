package room

import (
	"encoding/json"
	"testing"

	"github.com/whiteboard/realtime/internal/document"
	"github.com/whiteboard/realtime/internal/wire"
)

type fakeMember struct {
	id         string
	received   [][]byte
	disconnect int
	reject     bool
}

func newFakeMember(id string) *fakeMember {
	return &fakeMember{id: id}
}

func (m *fakeMember) ID() string { return m.id }

func (m *fakeMember) Send(msg []byte) bool {
	if m.reject {
		return false
	}
	m.received = append(m.received, msg)
	return true
}

func (m *fakeMember) Disconnect() { m.disconnect++ }

func (m *fakeMember) lastEnvelope(t *testing.T) wire.Envelope {
	t.Helper()
	if len(m.received) == 0 {
		t.Fatalf("member %s received no messages", m.id)
	}
	var env wire.Envelope
	if err := json.Unmarshal(m.received[len(m.received)-1], &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestJoinReturnsSnapshotAndFlags(t *testing.T) {
	r := New("room-1", document.Empty(), 10, false, nil)
	m := newFakeMember("alice")

	snapshot, canUndo, canRedo, members := r.Join(m)

	if !document.Equal(snapshot, document.Empty()) {
		t.Errorf("Join() snapshot = %v, want empty document", snapshot)
	}
	if canUndo || canRedo {
		t.Errorf("Join() on fresh room: canUndo=%v canRedo=%v, want false, false", canUndo, canRedo)
	}
	if len(members) != 1 || members[0] != "alice" {
		t.Errorf("Join() members = %v, want [alice]", members)
	}
}

func TestCreateElementBroadcastsToAllMembers(t *testing.T) {
	r := New("room-1", document.Empty(), 10, false, nil)
	alice := newFakeMember("alice")
	bob := newFakeMember("bob")
	r.Join(alice)
	r.Join(bob)

	err := r.CreateElement(document.CreateSpec{
		Kind:   document.KindStroke,
		Stroke: &document.Stroke{Color: "red"},
	}, "alice")
	if err != nil {
		t.Fatalf("CreateElement() error: %v", err)
	}

	for _, m := range []*fakeMember{alice, bob} {
		env := m.lastEnvelope(t)
		if env.Kind != wire.KindStateUpdate {
			t.Errorf("member %s last envelope kind = %s, want %s", m.id, env.Kind, wire.KindStateUpdate)
		}
	}
}

func TestDeleteUnknownElementIsNoop(t *testing.T) {
	r := New("room-1", document.Empty(), 10, false, nil)
	m := newFakeMember("alice")
	r.Join(m)
	before := len(m.received)

	r.DeleteElement("does-not-exist")

	if len(m.received) != before {
		t.Errorf("DeleteElement() with unknown id broadcast a message: got %d messages, want %d", len(m.received), before)
	}
	if r.HistoryLen() != 1 {
		t.Errorf("DeleteElement() with unknown id pushed a frame: HistoryLen() = %d, want 1", r.HistoryLen())
	}
}

func TestUndoRedoMovesCursorWithoutTruncatingHistory(t *testing.T) {
	r := New("room-1", document.Empty(), 10, false, nil)
	m := newFakeMember("alice")
	r.Join(m)

	r.CreateElement(document.CreateSpec{Kind: document.KindStroke, Stroke: &document.Stroke{}}, "alice")
	r.CreateElement(document.CreateSpec{Kind: document.KindStroke, Stroke: &document.Stroke{}}, "alice")

	if r.Cursor() != 2 {
		t.Fatalf("Cursor() after 2 creates = %d, want 2", r.Cursor())
	}

	r.Undo()
	if r.Cursor() != 1 {
		t.Fatalf("Cursor() after undo = %d, want 1", r.Cursor())
	}
	if r.HistoryLen() != 3 {
		t.Fatalf("HistoryLen() after undo = %d, want 3 (undo keeps the tail)", r.HistoryLen())
	}

	r.Redo()
	if r.Cursor() != 2 {
		t.Fatalf("Cursor() after redo = %d, want 2", r.Cursor())
	}
}

func TestCreateElementAfterUndoTruncatesRedoTail(t *testing.T) {
	r := New("room-1", document.Empty(), 10, false, nil)
	m := newFakeMember("alice")
	r.Join(m)

	r.CreateElement(document.CreateSpec{Kind: document.KindStroke, Stroke: &document.Stroke{}}, "alice")
	r.CreateElement(document.CreateSpec{Kind: document.KindStroke, Stroke: &document.Stroke{}}, "alice")
	r.Undo()

	if canRedo := r.Cursor() < r.HistoryLen()-1; !canRedo {
		t.Fatal("expected a redo tail to exist before the new create")
	}

	r.CreateElement(document.CreateSpec{Kind: document.KindStroke, Stroke: &document.Stroke{}}, "alice")

	if r.Cursor() != r.HistoryLen()-1 {
		t.Fatalf("after create following undo: cursor = %d, historyLen = %d, want cursor at tail", r.Cursor(), r.HistoryLen())
	}
	if r.HistoryLen() != 3 {
		t.Fatalf("HistoryLen() after create-after-undo = %d, want 3 (old redo tail discarded)", r.HistoryLen())
	}
}

func TestHistoryBoundedByHMax(t *testing.T) {
	const hMax = 5
	r := New("room-1", document.Empty(), hMax, false, nil)
	m := newFakeMember("alice")
	r.Join(m)

	for i := 0; i < 20; i++ {
		r.CreateElement(document.CreateSpec{Kind: document.KindStroke, Stroke: &document.Stroke{}}, "alice")
	}

	if r.HistoryLen() != hMax {
		t.Fatalf("HistoryLen() after exceeding H_MAX = %d, want %d", r.HistoryLen(), hMax)
	}
	if r.Cursor() != hMax-1 {
		t.Fatalf("Cursor() after exceeding H_MAX = %d, want %d", r.Cursor(), hMax-1)
	}
}

func TestLeaveReportsEmptyRoom(t *testing.T) {
	r := New("room-1", document.Empty(), 10, false, nil)
	m := newFakeMember("alice")
	r.Join(m)

	empty, members := r.Leave("alice")
	if !empty {
		t.Errorf("Leave() last member: empty = false, want true")
	}
	if len(members) != 0 {
		t.Errorf("Leave() members = %v, want empty", members)
	}
}

func TestRelayCursorDropsNonMemberSilently(t *testing.T) {
	r := New("room-1", document.Empty(), 10, false, nil)
	alice := newFakeMember("alice")
	r.Join(alice)
	before := len(alice.received)

	r.RelayCursor("ghost", 1, 1, "ghost")

	if len(alice.received) != before {
		t.Error("RelayCursor() from a non-member was broadcast, want silent drop")
	}
}

func TestRelayCursorReachesOtherMembersNotSender(t *testing.T) {
	r := New("room-1", document.Empty(), 10, false, nil)
	alice := newFakeMember("alice")
	bob := newFakeMember("bob")
	r.Join(alice)
	r.Join(bob)

	aliceBefore := len(alice.received)
	r.RelayCursor("alice", 10, 20, "Alice")

	if len(alice.received) != aliceBefore {
		t.Error("RelayCursor() sent the cursor update back to its own sender")
	}
	env := bob.lastEnvelope(t)
	if env.Kind != wire.KindRemoteCursor {
		t.Errorf("bob's last envelope kind = %s, want %s", env.Kind, wire.KindRemoteCursor)
	}
}

func TestDirtySnapshotClearsAfterRead(t *testing.T) {
	r := New("room-1", document.Empty(), 10, false, nil)
	m := newFakeMember("alice")
	r.Join(m)
	r.CreateElement(document.CreateSpec{Kind: document.KindStroke, Stroke: &document.Stroke{}}, "alice")

	_, ok := r.DirtySnapshot()
	if !ok {
		t.Fatal("DirtySnapshot() after a mutation: ok = false, want true")
	}

	_, ok = r.DirtySnapshot()
	if ok {
		t.Fatal("DirtySnapshot() called twice in a row: second call ok = true, want false")
	}
}

func TestDirtySnapshotRefusedWhenNeverLoaded(t *testing.T) {
	r := New("room-1", document.Empty(), 10, true, nil)
	m := newFakeMember("alice")
	r.Join(m)
	r.CreateElement(document.CreateSpec{Kind: document.KindStroke, Stroke: &document.Stroke{}}, "alice")

	_, ok := r.DirtySnapshot()
	if ok {
		t.Fatal("DirtySnapshot() on a never-loaded room: ok = true, want false (saves refused)")
	}

	r.ClearSaveRefusal()
	r.CreateElement(document.CreateSpec{Kind: document.KindStroke, Stroke: &document.Stroke{}}, "alice")
	_, ok = r.DirtySnapshot()
	if !ok {
		t.Fatal("DirtySnapshot() after ClearSaveRefusal(): ok = false, want true")
	}
}

func TestBroadcastDisconnectsMemberOnOverflow(t *testing.T) {
	r := New("room-1", document.Empty(), 10, false, nil)
	m := newFakeMember("alice")
	m.reject = true
	r.Join(m)

	r.CreateElement(document.CreateSpec{Kind: document.KindStroke, Stroke: &document.Stroke{}}, "system")

	if m.disconnect == 0 {
		t.Error("expected member to be disconnected after a failed Send")
	}
}
