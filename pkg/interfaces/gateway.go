package interfaces

import "pointcast/pkg/types"

// Gateway delivers events to connected observers and tracks which session a
// connection is observing. Delivery is best-effort: a slow or dead connection
// never fails the command that triggered the event.
type Gateway interface {
	// Unicast sends an event to a single connection.
	Unicast(connID string, event *types.Event)

	// Broadcast sends an event to every observer of a session.
	Broadcast(sessionID string, event *types.Event)

	// BroadcastExcept sends an event to every observer of a session except one,
	// typically the command's originator.
	BroadcastExcept(sessionID, exceptConnID string, event *types.Event)

	// JoinRoom records that a connection observes a session.
	JoinRoom(connID, sessionID string)

	// LeaveRoom clears a connection's session membership.
	LeaveRoom(connID string)

	// RoomOf reports which session a connection currently observes.
	RoomOf(connID string) (string, bool)
}
