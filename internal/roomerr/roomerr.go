// Package roomerr carries the error taxonomy shared by the room,
// registry, router, and persistence packages so callers can branch with
// errors.Is instead of string matching.
package roomerr

import "errors"

var (
	// DuplicateID is returned by document.AddElement when the caller
	// supplied an element id that already exists in the Document.
	DuplicateID = errors.New("element id already exists")

	// NotMember is returned when a session attempts to mutate a room
	// it is not currently a member of.
	NotMember = errors.New("session is not a member of this room")

	// NotFound is returned by a persistence adapter when no document
	// is on record for a room id.
	NotFound = errors.New("no document on record for this room")

	// SaveRefused is logged by Room.DirtySnapshot when a room's
	// cold-load failed and it is refusing writes until an operator
	// clears the flag (see the cold-load-vs-first-save open question).
	SaveRefused = errors.New("room never loaded successfully; refusing to overwrite persisted state")

	// MalformedMessage marks a client message that failed shape
	// validation before it reached a Room operation.
	MalformedMessage = errors.New("malformed client message")
)
