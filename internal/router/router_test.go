package router

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/whiteboard/realtime/internal/document"
	"github.com/whiteboard/realtime/internal/registry"
	"github.com/whiteboard/realtime/internal/roomerr"
	"github.com/whiteboard/realtime/internal/session"
	"github.com/whiteboard/realtime/internal/wire"
)

type fakeAdapter struct{}

func (fakeAdapter) Load(ctx context.Context, roomID string) (document.Document, error) {
	return document.Document{}, roomerr.NotFound
}

func (fakeAdapter) Save(ctx context.Context, roomID string, doc document.Document) error {
	return nil
}

func newTestRouter() *Router {
	reg := registry.New(fakeAdapter{}, registry.Config{HistoryMax: 10})
	return New(reg, nil)
}

func drainEnvelope(t *testing.T, sess *session.Session) wire.Envelope {
	t.Helper()
	select {
	case raw := <-sess.Outbound():
		var env wire.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		return env
	default:
		t.Fatal("expected a message on the session's outbound queue, found none")
		return wire.Envelope{}
	}
}

func TestHandleJoinSendsInitialStateToJoinerOnly(t *testing.T) {
	rt := newTestRouter()
	ctx := context.Background()
	sess := session.New("sess-1", "alice", 16)

	raw, _ := wire.Encode(wire.KindJoinRoom, wire.JoinRoomData{RoomID: "room-1"})
	rt.Dispatch(ctx, sess, raw)

	// Room.Join broadcasts the member list to every member, the joiner
	// included, before the router queues the joiner's initial state.
	env := drainEnvelope(t, sess)
	if env.Kind != wire.KindMembers {
		t.Fatalf("joiner's first message kind = %s, want %s", env.Kind, wire.KindMembers)
	}
	env = drainEnvelope(t, sess)
	if env.Kind != wire.KindStateUpdate {
		t.Fatalf("joiner's message kind = %s, want %s", env.Kind, wire.KindStateUpdate)
	}
	if sess.CurrentRoom() != "room-1" {
		t.Fatalf("CurrentRoom() after join = %q, want room-1", sess.CurrentRoom())
	}
}

func TestCreateElementRequiresMembership(t *testing.T) {
	rt := newTestRouter()
	ctx := context.Background()
	sess := session.New("sess-1", "alice", 16)
	// never joined any room

	payload, _ := json.Marshal(wire.LinePayload{Color: "red"})
	body := wire.CreateElementData{RoomID: "room-1", Type: "line", Payload: payload}
	raw, _ := wire.Encode(wire.KindCreateElement, body)
	rt.Dispatch(ctx, sess, raw)

	select {
	case <-sess.Outbound():
		t.Fatal("create-element from a non-member produced a message, want silent drop")
	default:
	}
}

func TestCreateElementAfterJoinBroadcastsStateUpdate(t *testing.T) {
	rt := newTestRouter()
	ctx := context.Background()
	sess := session.New("sess-1", "alice", 16)

	joinRaw, _ := wire.Encode(wire.KindJoinRoom, wire.JoinRoomData{RoomID: "room-1"})
	rt.Dispatch(ctx, sess, joinRaw)
	drainEnvelope(t, sess) // members broadcast from join
	drainEnvelope(t, sess) // initial state-update from join

	payload, _ := json.Marshal(wire.LinePayload{Color: "red"})
	createBody := wire.CreateElementData{RoomID: "room-1", Type: "line", Payload: payload}
	raw, _ := wire.Encode(wire.KindCreateElement, createBody)
	rt.Dispatch(ctx, sess, raw)

	env := drainEnvelope(t, sess)
	if env.Kind != wire.KindStateUpdate {
		t.Fatalf("after create-element, message kind = %s, want %s", env.Kind, wire.KindStateUpdate)
	}
}

func TestDispatchDropsMalformedFrame(t *testing.T) {
	rt := newTestRouter()
	ctx := context.Background()
	sess := session.New("sess-1", "alice", 16)

	rt.Dispatch(ctx, sess, []byte(`not json at all`))

	select {
	case <-sess.Outbound():
		t.Fatal("malformed frame produced a response, want silent drop")
	default:
	}
}

func TestDisconnectLeavesCurrentRoom(t *testing.T) {
	rt := newTestRouter()
	ctx := context.Background()
	sess := session.New("sess-1", "alice", 16)

	joinRaw, _ := wire.Encode(wire.KindJoinRoom, wire.JoinRoomData{RoomID: "room-1"})
	rt.Dispatch(ctx, sess, joinRaw)
	drainEnvelope(t, sess)

	rt.Disconnect(ctx, sess)

	if sess.CurrentRoom() != "" {
		t.Fatalf("CurrentRoom() after Disconnect() = %q, want empty", sess.CurrentRoom())
	}
}
