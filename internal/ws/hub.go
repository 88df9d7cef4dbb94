// Package ws is the websocket transport. internal/room, internal/router
// and internal/registry know nothing about gorilla/websocket — this
// package is the only place a *websocket.Conn appears.
package ws

import "sync"

// Hub tracks every currently-connected session for the health/stats
// endpoints. Room membership and fan-out live on Room itself
// (internal/room, broadcastStateLocked); Hub only counts connections.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]struct{}
}

// NewHub creates an empty connection registry.
func NewHub() *Hub {
	return &Hub{sessions: make(map[string]struct{})}
}

// Register records a newly-connected session.
func (h *Hub) Register(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[sessionID] = struct{}{}
}

// Unregister removes a session on disconnect.
func (h *Hub) Unregister(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sessionID)
}

// ConnectionCount reports how many sessions are currently connected.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}
