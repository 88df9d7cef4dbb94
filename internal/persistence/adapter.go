// Package persistence is the server's view of the external document
// store. The store itself — CRUD, listing, thumbnails, any admin HTTP
// surface — is out of scope; this package only consumes the two
// operations the server actually needs: read-document-by-id and
// write-document-by-id.
//
// Adapter is transport-agnostic: an HTTP-based adapter satisfying the
// same interface could replace SQLiteAdapter without any change to
// internal/room or internal/registry.
package persistence

import (
	"context"

	"github.com/whiteboard/realtime/internal/document"
)

// Adapter is the backing store's contract.
type Adapter interface {
	// Load returns the last-persisted document for roomID, or
	// roomerr.NotFound if nothing has ever been saved for it.
	Load(ctx context.Context, roomID string) (document.Document, error)

	// Save durably records doc as the latest state for roomID.
	Save(ctx context.Context, roomID string, doc document.Document) error
}
