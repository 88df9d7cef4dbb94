// Package router is the event router: it decodes inbound client
// messages, validates their shape, and dispatches valid ones to Room
// operations. It never touches a Room's internals directly — everything
// it does is a method call on the Room the registry hands back.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/whiteboard/realtime/internal/document"
	"github.com/whiteboard/realtime/internal/registry"
	"github.com/whiteboard/realtime/internal/room"
	"github.com/whiteboard/realtime/internal/roomerr"
	"github.com/whiteboard/realtime/internal/session"
	"github.com/whiteboard/realtime/internal/wire"
)

// Router dispatches one session's inbound frames to Room operations.
type Router struct {
	registry *registry.Registry
	logger   *log.Logger
}

// New creates a Router over the given registry.
func New(reg *registry.Registry, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.Default()
	}
	return &Router{registry: reg, logger: logger}
}

// Dispatch handles one raw inbound frame from sess. A malformed frame
// is logged and dropped — the connection stays
// open; the caller (internal/ws) is responsible for rate-limiting
// repeat offenders before a frame even reaches Dispatch.
func (rt *Router) Dispatch(ctx context.Context, sess *session.Session, raw []byte) {
	env, err := wire.Decode(raw)
	if err != nil {
		rt.logger.Printf("router: session %s: %v: %v", sess.ID(), roomerr.MalformedMessage, err)
		return
	}

	switch env.Kind {
	case wire.KindJoinRoom:
		rt.handleJoin(ctx, sess, env.Data)
	case wire.KindLeaveRoom:
		rt.handleLeave(ctx, sess)
	case wire.KindCreateElement:
		rt.handleCreateElement(sess, env.Data)
	case wire.KindDeleteElement:
		rt.handleDeleteElement(sess, env.Data)
	case wire.KindUndo:
		rt.handleUndo(sess, env.Data)
	case wire.KindRedo:
		rt.handleRedo(sess, env.Data)
	case wire.KindCursorMove:
		rt.handleCursorMove(sess, env.Data)
	case wire.KindCursorLeave:
		rt.handleCursorLeave(sess, env.Data)
	default:
		rt.logger.Printf("router: session %s sent unknown kind %q", sess.ID(), env.Kind)
	}
}

// Disconnect handles transport-level disconnect: automatic leave from
// whatever room the session currently belongs to.
func (rt *Router) Disconnect(ctx context.Context, sess *session.Session) {
	roomID := sess.CurrentRoom()
	if roomID == "" {
		return
	}
	rt.registry.Release(ctx, roomID, sess.ID())
	sess.SetCurrentRoom("")
}

func (rt *Router) handleJoin(ctx context.Context, sess *session.Session, data json.RawMessage) {
	var body wire.JoinRoomData
	if err := json.Unmarshal(data, &body); err != nil || body.RoomID == "" {
		rt.malformed(sess, "join-room", err)
		return
	}

	r := rt.registry.GetOrCreate(ctx, body.RoomID)
	sess.SetCurrentRoom(body.RoomID)

	snapshot, canUndo, canRedo, _ := r.Join(sess)

	payload, err := wire.Encode(wire.KindStateUpdate, wire.StateUpdateData{
		Document: snapshot, CanUndo: canUndo, CanRedo: canRedo,
	})
	if err != nil {
		rt.logger.Printf("router: encode initial state-update for %s: %v", sess.ID(), err)
		return
	}
	if !sess.Send(payload) {
		sess.Disconnect()
	}
}

func (rt *Router) handleLeave(ctx context.Context, sess *session.Session) {
	rt.Disconnect(ctx, sess)
}

// roomFor returns the live Room for the sender's current room, but only
// if sess is actually a member of roomID — otherwise it returns
// roomerr.NotMember and the caller drops the message.
func (rt *Router) roomFor(sess *session.Session, roomID string) (*room.Room, error) {
	if roomID == "" || sess.CurrentRoom() != roomID {
		return nil, roomerr.NotMember
	}
	r := rt.registry.Get(roomID)
	if r == nil {
		return nil, roomerr.NotMember
	}
	return r, nil
}

func (rt *Router) handleCreateElement(sess *session.Session, data json.RawMessage) {
	var body wire.CreateElementData
	if err := json.Unmarshal(data, &body); err != nil {
		rt.malformed(sess, "create-element", err)
		return
	}
	r, err := rt.roomFor(sess, body.RoomID)
	if err != nil {
		rt.logger.Printf("router: session %s: %v", sess.ID(), err)
		return
	}

	spec, err := decodeCreateSpec(body.Type, body.Payload)
	if err != nil {
		rt.malformed(sess, "create-element", err)
		return
	}

	if err := r.CreateElement(spec, sess.ID()); err != nil {
		rt.logger.Printf("router: create-element for session %s: %v", sess.ID(), err)
	}
}

func decodeCreateSpec(elementType string, payload json.RawMessage) (document.CreateSpec, error) {
	switch elementType {
	case "line":
		var p wire.LinePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return document.CreateSpec{}, err
		}
		return document.CreateSpec{
			Kind: document.KindStroke,
			Stroke: &document.Stroke{
				Points:      p.Points,
				Color:       p.Color,
				StrokeWidth: p.StrokeWidth,
				Mode:        p.Mode,
			},
		}, nil
	case "shape":
		var p wire.ShapePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return document.CreateSpec{}, err
		}
		return document.CreateSpec{
			Kind: document.KindShape,
			Shape: &document.Shape{
				Kind:        p.Kind,
				From:        p.From,
				To:          p.To,
				Color:       p.Color,
				StrokeWidth: p.StrokeWidth,
				Fill:        p.Fill,
			},
		}, nil
	case "text":
		var p wire.TextPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return document.CreateSpec{}, err
		}
		return document.CreateSpec{
			Kind: document.KindText,
			Text: &document.Text{
				Anchor:     p.Anchor,
				Payload:    p.Payload,
				FontSize:   p.FontSize,
				FontFamily: p.FontFamily,
				Color:      p.Color,
			},
		}, nil
	default:
		return document.CreateSpec{}, fmt.Errorf("unknown element type %q", elementType)
	}
}

func (rt *Router) handleDeleteElement(sess *session.Session, data json.RawMessage) {
	var body wire.DeleteElementData
	if err := json.Unmarshal(data, &body); err != nil || body.ElementID == "" {
		rt.malformed(sess, "delete-element", err)
		return
	}
	r, err := rt.roomFor(sess, body.RoomID)
	if err != nil {
		rt.logger.Printf("router: session %s: %v", sess.ID(), err)
		return
	}
	r.DeleteElement(body.ElementID)
}

func (rt *Router) handleUndo(sess *session.Session, data json.RawMessage) {
	var body wire.RoomIDData
	if err := json.Unmarshal(data, &body); err != nil {
		rt.malformed(sess, "undo", err)
		return
	}
	r, err := rt.roomFor(sess, body.RoomID)
	if err != nil {
		rt.logger.Printf("router: session %s: %v", sess.ID(), err)
		return
	}
	r.Undo()
}

func (rt *Router) handleRedo(sess *session.Session, data json.RawMessage) {
	var body wire.RoomIDData
	if err := json.Unmarshal(data, &body); err != nil {
		rt.malformed(sess, "redo", err)
		return
	}
	r, err := rt.roomFor(sess, body.RoomID)
	if err != nil {
		rt.logger.Printf("router: session %s: %v", sess.ID(), err)
		return
	}
	r.Redo()
}

func (rt *Router) handleCursorMove(sess *session.Session, data json.RawMessage) {
	var body wire.CursorMoveData
	if err := json.Unmarshal(data, &body); err != nil {
		rt.malformed(sess, "cursor-move", err)
		return
	}
	r, err := rt.roomFor(sess, body.RoomID)
	if err != nil {
		rt.logger.Printf("router: session %s: %v", sess.ID(), err)
		return
	}
	r.RelayCursor(sess.ID(), body.X, body.Y, body.Label)
}

func (rt *Router) handleCursorLeave(sess *session.Session, data json.RawMessage) {
	var body wire.RoomIDData
	if err := json.Unmarshal(data, &body); err != nil {
		rt.malformed(sess, "cursor-leave", err)
		return
	}
	r, err := rt.roomFor(sess, body.RoomID)
	if err != nil {
		rt.logger.Printf("router: session %s: %v", sess.ID(), err)
		return
	}
	r.RelayCursorLeave(sess.ID())
}

func (rt *Router) malformed(sess *session.Session, kind string, err error) {
	rt.logger.Printf("router: session %s sent %s payload: %v: %v", sess.ID(), kind, roomerr.MalformedMessage, err)
}
