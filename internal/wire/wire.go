// Package wire defines the client↔server message envelope and the
// payload shapes for every message kind the protocol carries. Nothing
// here holds state; it is pure encoding/decoding.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/whiteboard/realtime/internal/document"
)

// Envelope is the outer frame every message carries: { kind, data }.
type Envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Client → server kinds.
const (
	KindJoinRoom      = "join-room"
	KindLeaveRoom     = "leave-room"
	KindCreateElement = "create-element"
	KindDeleteElement = "delete-element"
	KindUndo          = "undo"
	KindRedo          = "redo"
	KindCursorMove    = "cursor-move"
	KindCursorLeave   = "cursor-leave"
)

// Server → client kinds.
const (
	KindStateUpdate       = "state-update"
	KindMembers           = "members"
	KindRemoteCursor      = "remote-cursor"
	KindRemoteCursorLeave = "remote-cursor-leave"
	KindRoomDeleted       = "room-deleted"
)

// Encode wraps data in an Envelope and marshals the whole thing.
func Encode(kind string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s payload: %w", kind, err)
	}
	return json.Marshal(Envelope{Kind: kind, Data: raw})
}

// Decode splits a raw inbound frame into its kind and raw data.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("wire: decode envelope: %w", err)
	}
	if env.Kind == "" {
		return Envelope{}, fmt.Errorf("wire: missing kind")
	}
	return env, nil
}

// --- inbound payloads ---

type JoinRoomData struct {
	RoomID string `json:"room_id"`
}

type CreateElementData struct {
	RoomID  string          `json:"room_id"`
	Type    string          `json:"type"` // "line" | "shape" | "text"
	Payload json.RawMessage `json:"payload"`
}

// LinePayload is the create-element payload shape when Type == "line".
type LinePayload struct {
	Points      []document.Point `json:"points"`
	Color       string           `json:"color"`
	StrokeWidth float64          `json:"stroke_width"`
	Mode        document.Mode    `json:"mode"`
}

// ShapePayload is the create-element payload shape when Type == "shape".
type ShapePayload struct {
	Kind        document.ShapeKind `json:"kind"`
	From        document.Point     `json:"from"`
	To          document.Point     `json:"to"`
	Color       string             `json:"color"`
	StrokeWidth float64            `json:"stroke_width"`
	Fill        *string            `json:"fill,omitempty"`
}

// TextPayload is the create-element payload shape when Type == "text".
type TextPayload struct {
	Anchor     document.Point `json:"anchor"`
	Payload    string         `json:"payload"`
	FontSize   float64        `json:"font_size"`
	FontFamily string         `json:"font_family"`
	Color      string         `json:"color"`
}

type DeleteElementData struct {
	RoomID    string `json:"room_id"`
	ElementID string `json:"element_id"`
}

type RoomIDData struct {
	RoomID string `json:"room_id"`
}

type CursorMoveData struct {
	RoomID string  `json:"room_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Label  string  `json:"label"`
}

// --- outbound payloads ---

type StateUpdateData struct {
	Document document.Document `json:"document"`
	CanUndo  bool              `json:"can_undo"`
	CanRedo  bool              `json:"can_redo"`
}

type MembersData struct {
	Members []string `json:"members"`
}

type RemoteCursorData struct {
	SessionID string  `json:"session_id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Label     string  `json:"label"`
}

type RemoteCursorLeaveData struct {
	SessionID string `json:"session_id"`
}
