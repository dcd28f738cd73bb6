package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"pointcast/internal/presence"
	"pointcast/internal/session"
	"pointcast/pkg/interfaces"
	"pointcast/pkg/types"
)

// In-memory SessionStore for hub testing.
type memoryStore struct {
	mu       sync.Mutex
	sessions map[string]*types.Session
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: make(map[string]*types.Session)}
}

func (m *memoryStore) Create(ctx context.Context, s *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.ID]; exists {
		return interfaces.ErrSessionExists
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *memoryStore) Get(ctx context.Context, sessionID string) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, exists := m.sessions[sessionID]
	if !exists {
		return nil, interfaces.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *memoryStore) Replace(ctx context.Context, s *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, sessionID)
	return nil
}

// recordingGateway implements interfaces.Gateway with room bookkeeping and a
// log of everything delivered.
type recordingGateway struct {
	mu          sync.Mutex
	rooms       map[string]string // connID -> sessionID
	unicasts    map[string][]*types.Event
	broadcasts  []*types.Event
	exceptSends []*types.Event
}

func newRecordingGateway() *recordingGateway {
	return &recordingGateway{
		rooms:    make(map[string]string),
		unicasts: make(map[string][]*types.Event),
	}
}

func (g *recordingGateway) Unicast(connID string, event *types.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unicasts[connID] = append(g.unicasts[connID], event)
}

func (g *recordingGateway) Broadcast(sessionID string, event *types.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.broadcasts = append(g.broadcasts, event)
}

func (g *recordingGateway) BroadcastExcept(sessionID, exceptConnID string, event *types.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.exceptSends = append(g.exceptSends, event)
}

func (g *recordingGateway) JoinRoom(connID, sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rooms[connID] = sessionID
}

func (g *recordingGateway) LeaveRoom(connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rooms, connID)
}

func (g *recordingGateway) RoomOf(connID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sessionID, exists := g.rooms[connID]
	return sessionID, exists
}

func (g *recordingGateway) lastUnicast(connID string) *types.Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	events := g.unicasts[connID]
	if len(events) == 0 {
		return nil
	}
	return events[len(events)-1]
}

func (g *recordingGateway) lastBroadcast() *types.Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.broadcasts) == 0 {
		return nil
	}
	return g.broadcasts[len(g.broadcasts)-1]
}

func newTestHub() (*Hub, *recordingGateway) {
	gateway := newRecordingGateway()
	service := session.NewService(newMemoryStore(), gateway, presence.NewTracker())
	return NewHub(service, gateway), gateway
}

func dispatch(t *testing.T, h *Hub, connID string, cmd types.Command) {
	t.Helper()
	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("Failed to marshal command: %v", err)
	}
	h.Dispatch(context.Background(), connID, data)
}

// createTestSession drives the real create flow and returns the session id
// the hub put the creator's connection into.
func createTestSession(t *testing.T, h *Hub, gateway *recordingGateway, connID string) string {
	t.Helper()
	dispatch(t, h, connID, types.Command{
		Type:        types.CommandCreateSession,
		SessionName: "Sprint Planning",
		UserName:    "Alice",
	})

	event := gateway.lastUnicast(connID)
	if event == nil || event.Event != types.EventSessionCreated {
		t.Fatalf("Expected sessionCreated unicast, got %+v", event)
	}
	return event.SessionID
}

func TestDispatch_CreateSession(t *testing.T) {
	h, gateway := newTestHub()

	sessionID := createTestSession(t, h, gateway, "conn-1")

	if room, _ := gateway.RoomOf("conn-1"); room != sessionID {
		t.Errorf("Creator must be placed into room %s, got %s", sessionID, room)
	}

	event := gateway.lastUnicast("conn-1")
	if event.SessionID != sessionID || event.Session == nil {
		t.Error("sessionCreated must carry the session id and snapshot")
	}
	if event.Session.HostID != "conn-1" {
		t.Errorf("Creator must be host, got %s", event.Session.HostID)
	}
}

func TestDispatch_JoinSession(t *testing.T) {
	h, gateway := newTestHub()

	sessionID := createTestSession(t, h, gateway, "conn-1")
	dispatch(t, h, "conn-2", types.Command{
		Type:      types.CommandJoinSession,
		SessionID: sessionID,
		UserName:  "Bob",
	})

	joined := gateway.lastUnicast("conn-2")
	if joined == nil || joined.Event != types.EventSessionJoined {
		t.Fatalf("Expected sessionJoined unicast, got %+v", joined)
	}
	if room, _ := gateway.RoomOf("conn-2"); room != sessionID {
		t.Error("Joiner must be placed into the session room")
	}

	// The rest of the room hears a sessionUpdate, not a sessionJoined.
	gateway.mu.Lock()
	exceptCount := len(gateway.exceptSends)
	var lastExcept *types.Event
	if exceptCount > 0 {
		lastExcept = gateway.exceptSends[exceptCount-1]
	}
	gateway.mu.Unlock()
	if lastExcept == nil || lastExcept.Event != types.EventSessionUpdate {
		t.Errorf("Expected sessionUpdate to other participants, got %+v", lastExcept)
	}
}

func TestDispatch_InvalidJSON(t *testing.T) {
	h, gateway := newTestHub()

	h.Dispatch(context.Background(), "conn-1", []byte("{not json"))

	event := gateway.lastUnicast("conn-1")
	if event == nil || event.Event != types.EventError || event.Message != "Invalid command format" {
		t.Errorf("Expected invalid-format error event, got %+v", event)
	}
}

func TestDispatch_UnknownCommand(t *testing.T) {
	h, gateway := newTestHub()

	dispatch(t, h, "conn-1", types.Command{Type: "selfDestruct"})

	event := gateway.lastUnicast("conn-1")
	if event == nil || event.Message != "Unknown command" {
		t.Errorf("Expected unknown-command error, got %+v", event)
	}
}

func TestDispatch_ValidationRejectsBeforeService(t *testing.T) {
	h, gateway := newTestHub()

	dispatch(t, h, "conn-1", types.Command{
		Type:        types.CommandCreateSession,
		SessionName: "Sprint Planning",
		UserName:    "A", // too short
	})

	event := gateway.lastUnicast("conn-1")
	if event == nil || event.Event != types.EventError {
		t.Fatalf("Expected validation error event, got %+v", event)
	}
	if _, exists := gateway.RoomOf("conn-1"); exists {
		t.Error("A rejected create must not place the caller in a room")
	}
}

func TestDispatch_JoinRejectsMalformedSessionID(t *testing.T) {
	h, gateway := newTestHub()

	dispatch(t, h, "conn-1", types.Command{
		Type:      types.CommandJoinSession,
		SessionID: "not-a-real-id-at-all",
		UserName:  "Bob",
	})

	event := gateway.lastUnicast("conn-1")
	if event == nil || event.Event != types.EventError {
		t.Errorf("Expected error event for malformed session id, got %+v", event)
	}
}

func TestDispatch_JoinUnknownSession(t *testing.T) {
	h, gateway := newTestHub()

	dispatch(t, h, "conn-1", types.Command{
		Type:      types.CommandJoinSession,
		SessionID: "happy-cat-42",
		UserName:  "Bob",
	})

	event := gateway.lastUnicast("conn-1")
	if event == nil || event.Message != "Session not found" {
		t.Errorf("Expected 'Session not found', got %+v", event)
	}
}

func TestDispatch_VoteBroadcastsUpdate(t *testing.T) {
	h, gateway := newTestHub()

	sessionID := createTestSession(t, h, gateway, "conn-1")
	dispatch(t, h, "conn-1", types.Command{
		Type:      types.CommandCastVote,
		SessionID: sessionID,
		Vote:      "8",
	})

	event := gateway.lastBroadcast()
	if event == nil || event.Event != types.EventVoteUpdate {
		t.Fatalf("Expected voteUpdate broadcast, got %+v", event)
	}
	vote := event.Session.Participants["conn-1"].Vote
	if vote == nil || *vote != "8" {
		t.Error("Broadcast snapshot must carry the new vote")
	}
}

func TestDispatch_InvalidVoteValue(t *testing.T) {
	h, gateway := newTestHub()

	sessionID := createTestSession(t, h, gateway, "conn-1")
	dispatch(t, h, "conn-1", types.Command{
		Type:      types.CommandCastVote,
		SessionID: sessionID,
		Vote:      "7", // not in the deck
	})

	event := gateway.lastUnicast("conn-1")
	if event == nil || event.Event != types.EventError {
		t.Errorf("Expected error event for off-deck vote, got %+v", event)
	}
}

func TestDispatch_NonHostRevealRejected(t *testing.T) {
	h, gateway := newTestHub()

	sessionID := createTestSession(t, h, gateway, "conn-1")
	dispatch(t, h, "conn-2", types.Command{
		Type:      types.CommandJoinSession,
		SessionID: sessionID,
		UserName:  "Bob",
	})

	dispatch(t, h, "conn-2", types.Command{
		Type:      types.CommandRevealVotes,
		SessionID: sessionID,
	})

	event := gateway.lastUnicast("conn-2")
	if event == nil || event.Message != "Only host can reveal votes" {
		t.Errorf("Expected host-only rejection, got %+v", event)
	}
}

func TestDispatch_HostRoundFlow(t *testing.T) {
	h, gateway := newTestHub()

	sessionID := createTestSession(t, h, gateway, "conn-1")

	steps := []struct {
		cmd   string
		event string
	}{
		{types.CommandUpdateStory, types.EventStoryUpdate},
		{types.CommandRevealVotes, types.EventVotesRevealed},
		{types.CommandHideVotes, types.EventVotesHidden},
		{types.CommandResetVotes, types.EventVotesReset},
	}

	for _, step := range steps {
		dispatch(t, h, "conn-1", types.Command{
			Type:      step.cmd,
			SessionID: sessionID,
			Story:     "Checkout flow",
		})
		broadcast := gateway.lastBroadcast()
		if broadcast == nil || broadcast.Event != step.event {
			t.Errorf("%s: expected %s broadcast, got %+v", step.cmd, step.event, broadcast)
		}
	}
}

func TestDispatch_RateLimitsCreate(t *testing.T) {
	h, gateway := newTestHub()

	for i := 0; i < createLimit; i++ {
		dispatch(t, h, "conn-1", types.Command{
			Type:        types.CommandCreateSession,
			SessionName: fmt.Sprintf("Sprint %d", i),
			UserName:    "Alice",
		})
	}

	dispatch(t, h, "conn-1", types.Command{
		Type:        types.CommandCreateSession,
		SessionName: "One too many",
		UserName:    "Alice",
	})

	event := gateway.lastUnicast("conn-1")
	if event == nil || event.Message != "Too many sessions created. Please wait a moment." {
		t.Errorf("Expected create rate limit rejection, got %+v", event)
	}
}

func TestDispatch_RateLimitIsPerConnection(t *testing.T) {
	h, gateway := newTestHub()

	for i := 0; i < createLimit; i++ {
		createTestSession(t, h, gateway, "conn-1")
	}

	// A different connection still has a full budget.
	sessionID := createTestSession(t, h, gateway, "conn-2")
	if sessionID == "" {
		t.Error("Second connection must not share the first one's budget")
	}
}

func TestHandleDisconnect(t *testing.T) {
	h, gateway := newTestHub()

	sessionID := createTestSession(t, h, gateway, "conn-1")
	dispatch(t, h, "conn-2", types.Command{
		Type:      types.CommandJoinSession,
		SessionID: sessionID,
		UserName:  "Bob",
	})

	h.HandleDisconnect(context.Background(), "conn-2")

	if _, exists := gateway.RoomOf("conn-2"); exists {
		t.Error("Disconnected connection must leave its room")
	}

	gateway.mu.Lock()
	last := gateway.exceptSends[len(gateway.exceptSends)-1]
	gateway.mu.Unlock()
	if last.Event != types.EventUserDisconnected {
		t.Errorf("Expected userDisconnected to remaining participants, got %+v", last)
	}
	if last.Session.Participants["conn-2"].Connected {
		t.Error("Snapshot must show the participant as disconnected")
	}
}

func TestHandleDisconnect_UnknownConnectionIsNoop(t *testing.T) {
	h, gateway := newTestHub()

	h.HandleDisconnect(context.Background(), "conn-ghost")

	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	if len(gateway.broadcasts) != 0 || len(gateway.exceptSends) != 0 {
		t.Error("A connection without a room must not trigger any event")
	}
}

func TestHubStartStop(t *testing.T) {
	h, _ := newTestHub()
	ctx := context.Background()

	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := h.Start(ctx); err != ErrHubAlreadyRunning {
		t.Errorf("Second start: expected ErrHubAlreadyRunning, got %v", err)
	}
	if err := h.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := h.Stop(); err != ErrHubNotRunning {
		t.Errorf("Second stop: expected ErrHubNotRunning, got %v", err)
	}
}
