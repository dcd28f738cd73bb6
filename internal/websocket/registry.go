package websocket

import (
	"log"
	"sync"

	"pointcast/pkg/types"
)

// Registry tracks live connections and which session each one observes. It is
// the process's Broadcast Gateway: room-scoped multicast, point-to-point
// unicast and the connection-to-session bookkeeping all live here.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection            // connID -> connection
	rooms       map[string]map[string]*Connection // sessionID -> connID -> connection
	memberships map[string]string                 // connID -> sessionID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		rooms:       make(map[string]map[string]*Connection),
		memberships: make(map[string]string),
	}
}

// Register adds a connection to the registry.
func (r *Registry) Register(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections[conn.ID()] = conn
	return nil
}

// Unregister removes a connection and any room membership it still holds.
// Idempotent; only removes the exact instance that is registered, so a stale
// connection cannot unregister its replacement.
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	connID := conn.ID()
	if registered, exists := r.connections[connID]; !exists || registered != conn {
		return
	}

	delete(r.connections, connID)
	r.leaveRoomLocked(connID)
}

// JoinRoom records that a connection observes a session. A connection
// observes at most one session; joining another leaves the previous one.
func (r *Registry) JoinRoom(connID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, exists := r.connections[connID]
	if !exists {
		return
	}

	r.leaveRoomLocked(connID)

	if r.rooms[sessionID] == nil {
		r.rooms[sessionID] = make(map[string]*Connection)
	}
	r.rooms[sessionID][connID] = conn
	r.memberships[connID] = sessionID
}

// LeaveRoom clears a connection's session membership.
func (r *Registry) LeaveRoom(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveRoomLocked(connID)
}

func (r *Registry) leaveRoomLocked(connID string) {
	sessionID, exists := r.memberships[connID]
	if !exists {
		return
	}

	delete(r.memberships, connID)
	if room, ok := r.rooms[sessionID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(r.rooms, sessionID)
		}
	}
}

// RoomOf reports which session a connection currently observes.
func (r *Registry) RoomOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessionID, exists := r.memberships[connID]
	return sessionID, exists
}

// Unicast sends an event to one connection.
func (r *Registry) Unicast(connID string, event *types.Event) {
	r.mu.RLock()
	conn, exists := r.connections[connID]
	r.mu.RUnlock()

	if !exists {
		return
	}
	if err := conn.WriteJSON(event); err != nil {
		log.Printf("Failed to deliver %s to %s: %v", event.Event, connID, err)
	}
}

// Broadcast sends an event to every observer of a session.
func (r *Registry) Broadcast(sessionID string, event *types.Event) {
	r.broadcast(sessionID, "", event)
}

// BroadcastExcept sends an event to every observer of a session except one.
func (r *Registry) BroadcastExcept(sessionID, exceptConnID string, event *types.Event) {
	r.broadcast(sessionID, exceptConnID, event)
}

func (r *Registry) broadcast(sessionID, exceptConnID string, event *types.Event) {
	r.mu.RLock()
	room := r.rooms[sessionID]
	recipients := make([]*Connection, 0, len(room))
	for connID, conn := range room {
		if connID == exceptConnID {
			continue
		}
		recipients = append(recipients, conn)
	}
	r.mu.RUnlock()

	// Delivery continues past individual failures.
	for _, conn := range recipients {
		if err := conn.WriteJSON(event); err != nil {
			log.Printf("Failed to deliver %s to %s: %v", event.Event, conn.ID(), err)
		}
	}
}

// Stats reports registry counters for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.connections),
		"active_rooms":      len(r.rooms),
	}
}
