package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/whiteboard/realtime/internal/document"
	"github.com/whiteboard/realtime/internal/roomerr"
)

// SQLiteAdapter is the reference Adapter implementation: one row per
// room holding the latest persisted Document as a JSON blob. The server
// keeps its own bounded undo/redo history in memory (internal/room) and
// only needs the store to remember the current document across
// restarts, so a single latest-snapshot row per room is all this needs.
type SQLiteAdapter struct {
	db *sql.DB
}

// NewSQLiteAdapter opens (creating if necessary) a sqlite database at
// path and ensures its schema exists.
func NewSQLiteAdapter(path string) (*SQLiteAdapter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("persistence: create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("persistence: open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: enable WAL: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS room_documents (
		room_id TEXT PRIMARY KEY,
		document_json TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistence: create schema: %w", err)
	}

	return &SQLiteAdapter{db: db}, nil
}

// Close releases the underlying database handle.
func (a *SQLiteAdapter) Close() error {
	return a.db.Close()
}

// Load implements Adapter.
func (a *SQLiteAdapter) Load(ctx context.Context, roomID string) (document.Document, error) {
	var raw string
	err := a.db.QueryRowContext(ctx,
		"SELECT document_json FROM room_documents WHERE room_id = ?", roomID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return document.Document{}, roomerr.NotFound
	}
	if err != nil {
		return document.Document{}, fmt.Errorf("persistence: load %s: %w", roomID, err)
	}

	var doc document.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return document.Document{}, fmt.Errorf("persistence: decode %s: %w", roomID, err)
	}
	return doc, nil
}

// Save implements Adapter.
func (a *SQLiteAdapter) Save(ctx context.Context, roomID string, doc document.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("persistence: encode %s: %w", roomID, err)
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO room_documents (room_id, document_json, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(room_id) DO UPDATE SET
			document_json = excluded.document_json,
			updated_at = CURRENT_TIMESTAMP
	`, roomID, string(raw))
	if err != nil {
		return fmt.Errorf("persistence: save %s: %w", roomID, err)
	}
	return nil
}

// DocumentSize returns the byte length of the persisted JSON blob for
// roomID, used by the /api/stats diagnostic endpoint. It returns 0,
// nil if nothing has been saved yet.
func (a *SQLiteAdapter) DocumentSize(ctx context.Context, roomID string) (int, error) {
	var raw string
	err := a.db.QueryRowContext(ctx,
		"SELECT document_json FROM room_documents WHERE room_id = ?", roomID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return len(raw), nil
}

// RoomCount returns how many rooms currently have a persisted document.
func (a *SQLiteAdapter) RoomCount(ctx context.Context) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM room_documents").Scan(&n)
	return n, err
}
