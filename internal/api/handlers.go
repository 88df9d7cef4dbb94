// Package api is the diagnostic HTTP surface: /health and /api/stats.
// A full Room/Version CRUD admin surface over the document store is out
// of scope (see DESIGN.md); only the two read-only diagnostic endpoints
// live here, backed by the hub's connection count and the registry's
// and persistence adapter's room accounting.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/whiteboard/realtime/internal/persistence"
	"github.com/whiteboard/realtime/internal/registry"
	"github.com/whiteboard/realtime/internal/ws"
)

// API serves the diagnostic endpoints.
type API struct {
	hub      *ws.Hub
	registry *registry.Registry
	store    *persistence.SQLiteAdapter
	logger   *log.Logger
}

// New creates an API over the given connection hub, room registry, and
// backing store. store may be nil if /api/stats should skip persisted
// totals (e.g. under test with an in-memory adapter that doesn't expose
// them).
func New(hub *ws.Hub, reg *registry.Registry, store *persistence.SQLiteAdapter, logger *log.Logger) *API {
	if logger == nil {
		logger = log.Default()
	}
	return &API{hub: hub, registry: reg, store: store, logger: logger}
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("api: error encoding JSON response: %v", err)
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// HealthHandler reports liveness plus the two headline gauges an
// operator watches: how many sockets are open and how many rooms are
// currently live.
func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"connections": a.hub.ConnectionCount(),
		"rooms":       a.registry.RoomCount(),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

// StatsHandler reports the same live gauges as /health plus, when a
// backing store is wired, the number of rooms with a persisted document
// and a human-readable total of persisted document bytes for the rooms
// that are currently live.
func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats := map[string]interface{}{
		"connections": a.hub.ConnectionCount(),
		"live_rooms":  a.registry.RoomCount(),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}

	if a.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if persisted, err := a.store.RoomCount(ctx); err == nil {
			stats["persisted_rooms"] = persisted
		} else {
			a.logger.Printf("api: stats: room count: %v", err)
		}

		var totalBytes int
		for _, id := range a.registry.RoomIDs() {
			if n, err := a.store.DocumentSize(ctx, id); err == nil {
				totalBytes += n
			}
		}
		stats["live_rooms_persisted_size"] = humanize.Bytes(uint64(totalBytes))
	}

	jsonResponse(w, http.StatusOK, stats)
}
